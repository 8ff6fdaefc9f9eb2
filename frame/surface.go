// Package frame drives the render loop: one compute dispatch per iteration,
// strictly serialized with the CPU.
//
// Each iteration publishes the viewport into the uniform buffer, acquires a
// presentable target, encodes and submits the kernel dispatch, requests
// presentation and then blocks until the GPU reports completion. Input is
// polled only after that wait, so at most one frame of GPU work is ever
// outstanding and a single uniform buffer is never written while the kernel
// may still read it.
package frame

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/mandelbrot/uniform"
	"github.com/gogpu/mandelbrot/viewport"
)

// Common frame errors.
var (
	// ErrTargetUnavailable reports a transient acquire failure, such as a
	// minimized window or an outdated swapchain. The scheduler skips the frame.
	ErrTargetUnavailable = errors.New("frame: target unavailable")

	// ErrTooManySkippedFrames is returned when the skip back-off gives up.
	ErrTooManySkippedFrames = errors.New("frame: too many skipped frames")

	// ErrInvalidSize is returned for non-positive target dimensions.
	ErrInvalidSize = errors.New("frame: invalid target size")
)

// Size is a target size in physical pixels.
type Size struct {
	Width  int
	Height int
}

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool { return s.Width > 0 && s.Height > 0 }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// Extent is a three-dimensional thread or group count.
type Extent struct {
	X, Y, Z int
}

// Dispatch describes one kernel launch: one thread per output pixel in Grid,
// grouped into Group-sized thread groups.
type Dispatch struct {
	Grid  Extent
	Group Extent
}

// Workgroups returns the number of groups needed to cover Grid along each axis.
func (d Dispatch) Workgroups() Extent {
	return Extent{
		X: ceilDiv(d.Grid.X, d.Group.X),
		Y: ceilDiv(d.Grid.Y, d.Group.Y),
		Z: ceilDiv(d.Grid.Z, d.Group.Z),
	}
}

func ceilDiv(n, d int) int {
	if d <= 0 {
		d = 1
	}
	return (n + d - 1) / d
}

// NewDispatch returns a dispatch covering target with width×1×1 thread groups.
func NewDispatch(target Size, maxThreadsPerGroup int) Dispatch {
	if maxThreadsPerGroup < 1 {
		maxThreadsPerGroup = 1
	}
	return Dispatch{
		Grid:  Extent{X: target.Width, Y: target.Height, Z: 1},
		Group: Extent{X: maxThreadsPerGroup, Y: 1, Z: 1},
	}
}

// Target is a presentable image acquired for exactly one frame.
type Target interface {
	Size() Size
}

// Submission is GPU work handed to the queue.
type Submission interface {
	// Wait blocks until the GPU has finished the submitted work.
	Wait(ctx context.Context) error
}

// Surface is a GPU compute surface: a device, queue, compiled kernel and
// parameter buffer bound to a presentation target.
//
// Slot 0 of the kernel receives the target image, slot 1 the uniform buffer.
type Surface interface {
	// AcquireTarget obtains the next presentable target of the given size.
	// Transient failures wrap ErrTargetUnavailable.
	AcquireTarget(size Size) (Target, error)

	// EncodeAndDispatch binds the pipeline, the target and the uniform buffer,
	// encodes the dispatch and submits it.
	EncodeAndDispatch(target Target, d Dispatch) (Submission, error)

	// Present schedules target for presentation once the submitted kernel completes.
	Present(target Target) error

	// MaxThreadsPerGroup is the pipeline's maximum thread count per group.
	MaxThreadsPerGroup() int

	// UniformBuffer returns the single parameter buffer bound at slot 1.
	UniformBuffer() uniform.Buffer
}

// Events is the result of one input poll.
type Events struct {
	// Quit is set when the user asked to close the window.
	Quit bool

	// Resized is set when the surface size changed; Size holds the new size.
	Resized bool
	Size    Size

	// Keys is the navigation key state at poll time.
	Keys viewport.Keys
}

// Input polls the window system once per frame.
type Input interface {
	Poll() Events
}

// InputFunc adapts a function to Input.
type InputFunc func() Events

// Poll calls f.
func (f InputFunc) Poll() Events { return f() }
