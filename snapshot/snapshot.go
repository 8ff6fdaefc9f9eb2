// Package snapshot writes rendered frames to disk as PNG or lossless WebP.
package snapshot

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/draw"
)

// Format is an output image encoding.
type Format int

const (
	PNG Format = iota
	WebP
)

func (f Format) String() string {
	switch f {
	case PNG:
		return "png"
	case WebP:
		return "webp"
	}
	return "unknown"
}

// ErrUnknownFormat is returned for file extensions with no encoder.
var ErrUnknownFormat = errors.New("snapshot: unknown image format")

// FormatFromPath selects the encoding from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return PNG, nil
	case ".webp":
		return WebP, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
}

// Encode writes img to w in the given format.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case PNG:
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		return enc.Encode(w, img)
	case WebP:
		return nativewebp.Encode(w, img, nil)
	}
	return fmt.Errorf("%w: %v", ErrUnknownFormat, f)
}

// Save encodes img into path, choosing the format from its extension.
func Save(path string, img image.Image) (err error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	if err := Encode(out, img, f); err != nil {
		return fmt.Errorf("snapshot: encode %s: %w", f, err)
	}
	return nil
}

// Downsample shrinks a supersampled frame by factor with Catmull-Rom
// filtering. Frames are opaque, so no alpha premultiplication is needed.
// A factor below 2 returns img unchanged.
func Downsample(img *image.RGBA, factor int) *image.RGBA {
	if factor < 2 {
		return img
	}
	b := img.Bounds()
	w, h := max(b.Dx()/factor, 1), max(b.Dy()/factor, 1)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
