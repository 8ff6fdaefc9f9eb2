package backend

import (
	"context"
	"fmt"
	"image"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/mandelbrot/frame"
	"github.com/gogpu/mandelbrot/kernel"
	"github.com/gogpu/mandelbrot/uniform"
)

// Backend name constants.
const (
	// BackendSoftware is the name of the CPU-based software backend.
	BackendSoftware = "software"
	// BackendGPU is the name of the GPU backend built on gogpu/wgpu HAL.
	BackendGPU = "gpu"
)

// SoftwareSurface runs the kernel on the CPU.
//
// Dispatch executes asynchronously on a bounded pool of goroutines, one task
// per workgroup row, so the scheduler observes the same submit-then-wait
// ordering as on a GPU. The parameter record is read from the uniform buffer
// when the dispatch is submitted.
type SoftwareSurface struct {
	cfg     Config
	params  *uniform.HostBuffer
	img     *image.RGBA
	workers int
	frames  uint64
	closed  bool
}

type softwareTarget struct {
	owner     *SoftwareSurface
	img       *image.RGBA
	presented bool
}

func (t *softwareTarget) Size() frame.Size {
	b := t.img.Bounds()
	return frame.Size{Width: b.Dx(), Height: b.Dy()}
}

type softwareSubmission struct {
	target *softwareTarget
	frame  uint64
	done   chan struct{}
	err    error
}

// init registers the software backend on package import.
func init() {
	Register(BackendSoftware, func(cfg Config) (Surface, error) {
		return NewSoftwareSurface(cfg), nil
	})
}

// NewSoftwareSurface creates a software surface using all available CPUs.
func NewSoftwareSurface(cfg Config) *SoftwareSurface {
	return &SoftwareSurface{
		cfg:     cfg,
		params:  uniform.NewHostBuffer(),
		workers: runtime.GOMAXPROCS(0),
	}
}

// Name returns the backend identifier.
func (s *SoftwareSurface) Name() string { return BackendSoftware }

// AcquireTarget returns the surface image resized to size.
func (s *SoftwareSurface) AcquireTarget(size frame.Size) (frame.Target, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if !size.Valid() {
		return nil, fmt.Errorf("%w: size %v", frame.ErrTargetUnavailable, size)
	}
	if s.img == nil || s.img.Bounds().Dx() != size.Width || s.img.Bounds().Dy() != size.Height {
		s.img = image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
		s.cfg.Log().Debug("software: target allocated", "size", size)
	}
	return &softwareTarget{owner: s, img: s.img}, nil
}

// EncodeAndDispatch starts the kernel for every thread of d.
func (s *SoftwareSurface) EncodeAndDispatch(target frame.Target, d frame.Dispatch) (frame.Submission, error) {
	t, err := s.own(target)
	if err != nil {
		return nil, err
	}
	params, err := uniform.Decode(s.params.Contents())
	if err != nil {
		return nil, err
	}

	s.frames++
	sub := &softwareSubmission{target: t, frame: s.frames, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		sub.err = s.run(params, t.img, d)
	}()
	return sub, nil
}

// run executes the dispatch. Threads outside the image are discarded, as the
// kernel's bounds check does.
func (s *SoftwareSurface) run(params uniform.Record, img *image.RGBA, d frame.Dispatch) error {
	groups := d.Workgroups()
	width, height := img.Bounds().Dx(), img.Bounds().Dy()

	var g errgroup.Group
	g.SetLimit(s.workers)
	for gy := range groups.Y * d.Group.Y {
		if gy >= height {
			break
		}
		g.Go(func() error {
			row := img.Pix[gy*img.Stride:]
			for x := range groups.X * d.Group.X {
				if x >= width {
					break
				}
				c := kernel.Shade(params, x, gy, width, height)
				i := x * 4
				row[i+0] = c.R
				row[i+1] = c.G
				row[i+2] = c.B
				row[i+3] = c.A
			}
			return nil
		})
	}
	return g.Wait()
}

// Present marks target for delivery to Config.OnPresent once its dispatch completes.
func (s *SoftwareSurface) Present(target frame.Target) error {
	t, err := s.own(target)
	if err != nil {
		return err
	}
	t.presented = true
	return nil
}

// MaxThreadsPerGroup returns the kernel workgroup width.
func (s *SoftwareSurface) MaxThreadsPerGroup() int { return kernel.WorkgroupSize }

// UniformBuffer returns the host-memory parameter buffer.
func (s *SoftwareSurface) UniformBuffer() uniform.Buffer { return s.params }

// Close releases the surface image.
func (s *SoftwareSurface) Close() {
	s.img = nil
	s.closed = true
}

func (s *SoftwareSurface) own(target frame.Target) (*softwareTarget, error) {
	if s.closed {
		return nil, ErrClosed
	}
	t, ok := target.(*softwareTarget)
	if !ok || t.owner != s {
		return nil, ErrForeignTarget
	}
	return t, nil
}

// Wait blocks until the dispatch has finished and delivers the image if it
// was presented.
func (sub *softwareSubmission) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-sub.done:
	}
	if sub.err != nil {
		return sub.err
	}
	t := sub.target
	if t.presented && t.owner.cfg.OnPresent != nil {
		t.owner.cfg.OnPresent(sub.frame, t.img)
	}
	return nil
}
