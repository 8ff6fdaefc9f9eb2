package backend

import (
	"errors"
	"image"
	"log/slog"

	"github.com/gogpu/mandelbrot"
	"github.com/gogpu/mandelbrot/frame"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrClosed is returned when a surface is used after Close.
	ErrClosed = errors.New("backend: surface closed")

	// ErrForeignTarget is returned when a target from another surface is passed in.
	ErrForeignTarget = errors.New("backend: target not acquired from this surface")
)

// Surface is an offscreen compute surface.
//
// It implements frame.Surface. Presented frames are delivered through
// Config.OnPresent after the GPU has finished writing them.
type Surface interface {
	frame.Surface

	// Name returns the backend identifier (e.g., "software", "gpu").
	Name() string

	// Close releases all surface resources.
	// The surface should not be used after Close is called.
	Close()
}

// PresentFunc receives a presented frame. The image is owned by the surface
// and is only valid for the duration of the call.
type PresentFunc func(frameNo uint64, img *image.RGBA)

// Config configures an offscreen surface.
type Config struct {
	// OnPresent is called with every presented frame. May be nil.
	OnPresent PresentFunc

	// Logger receives backend lifecycle messages. Nil means mandelbrot.Logger.
	Logger *slog.Logger
}

// Log returns the configured logger or the package default.
func (c Config) Log() *slog.Logger {
	if c.Logger == nil {
		return mandelbrot.Logger()
	}
	return c.Logger
}
