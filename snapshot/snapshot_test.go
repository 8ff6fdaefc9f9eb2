package snapshot

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/webp"
)

func checker(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			c := color.RGBA{A: 0xff}
			if (x+y)%2 == 0 {
				c = color.RGBA{R: 0xff, G: 0x80, B: 0x20, A: 0xff}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"out.png", PNG},
		{"dir/OUT.PNG", PNG},
		{"frame.webp", WebP},
	}
	for _, tt := range tests {
		got, err := FormatFromPath(tt.path)
		if err != nil || got != tt.want {
			t.Errorf("FormatFromPath(%q) = %v, %v; want %v", tt.path, got, err, tt.want)
		}
	}

	for _, path := range []string{"out.jpg", "noext"} {
		if _, err := FormatFromPath(path); !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("FormatFromPath(%q) error = %v, want ErrUnknownFormat", path, err)
		}
	}
}

func TestEncodeLossless(t *testing.T) {
	src := checker(9, 7)

	decoders := map[Format]func(*bytes.Buffer) (image.Image, error){
		PNG:  func(b *bytes.Buffer) (image.Image, error) { return png.Decode(b) },
		WebP: func(b *bytes.Buffer) (image.Image, error) { return webp.Decode(b) },
	}
	for f, decode := range decoders {
		t.Run(f.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, src, f); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := decode(&buf)
			if err != nil {
				t.Fatalf("decode error = %v", err)
			}
			if got.Bounds() != src.Bounds() {
				t.Fatalf("bounds = %v, want %v", got.Bounds(), src.Bounds())
			}
			for _, p := range []image.Point{{0, 0}, {1, 0}, {8, 6}} {
				r, g, b, _ := got.At(p.X, p.Y).RGBA()
				want := src.RGBAAt(p.X, p.Y)
				if uint8(r>>8) != want.R || uint8(g>>8) != want.G || uint8(b>>8) != want.B {
					t.Errorf("pixel %v = (%d, %d, %d), want %v", p, r>>8, g>>8, b>>8, want)
				}
			}
		})
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "frame.png")
	if err := Save(path, checker(4, 4)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Errorf("saved file is not a PNG: %v", err)
	}

	if err := Save(filepath.Join(dir, "frame.bmp"), checker(1, 1)); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Save(.bmp) error = %v, want ErrUnknownFormat", err)
	}
}

func TestDownsample(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for i := range img.Pix {
		img.Pix[i] = 0xc0
	}

	got := Downsample(img, 2)
	if got.Bounds() != image.Rect(0, 0, 4, 3) {
		t.Fatalf("bounds = %v, want 4x3", got.Bounds())
	}
	if c := got.RGBAAt(2, 1); c != (color.RGBA{R: 0xc0, G: 0xc0, B: 0xc0, A: 0xc0}) {
		t.Errorf("uniform image resampled to %v", c)
	}

	if Downsample(img, 1) != img {
		t.Error("factor 1 did not return the source image")
	}
}
