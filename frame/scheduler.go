package frame

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/gogpu/mandelbrot/uniform"
	"github.com/gogpu/mandelbrot/viewport"
)

// Scheduler runs the frame loop against one Surface.
//
// A Scheduler is driven from a single goroutine; on windowed backends that
// must be the goroutine that owns the window.
type Scheduler struct {
	surface    Surface
	input      Input
	logger     *slog.Logger
	observer   Observer
	integrator *viewport.Integrator
	backoff    backoff.BackOff

	sync     uniform.Sync
	state    viewport.State
	velocity viewport.Velocity
	size     Size

	frames  uint64
	skipped uint64
	phase   Phase
}

// New creates a scheduler drawing into surface at the given initial size.
// The size is the framebuffer size in physical pixels, which may differ from
// the window's logical size.
func New(surface Surface, input Input, size Size, opts ...Option) (*Scheduler, error) {
	if surface == nil {
		return nil, errors.New("frame: nil surface")
	}
	if input == nil {
		return nil, errors.New("frame: nil input")
	}
	if !size.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSize, size)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.integrator == nil {
		o.integrator = viewport.NewIntegrator()
	}
	if o.backoff == nil {
		o.backoff = newSkipBackOff()
	}

	return &Scheduler{
		surface:    surface,
		input:      input,
		logger:     o.logger,
		observer:   o.observer,
		integrator: o.integrator,
		backoff:    o.backoff,
		state:      o.state,
		size:       size,
	}, nil
}

// State returns the viewport that the next frame will render.
func (s *Scheduler) State() viewport.State { return s.state }

// Velocity returns the current navigation velocity.
func (s *Scheduler) Velocity() viewport.Velocity { return s.velocity }

// Size returns the size the next frame will be rendered at.
func (s *Scheduler) Size() Size { return s.size }

// Frames returns the number of completed frames.
func (s *Scheduler) Frames() uint64 { return s.frames }

// Skipped returns the number of frames skipped because no target was available.
func (s *Scheduler) Skipped() uint64 { return s.skipped }

// Run steps the loop until the user quits, ctx is cancelled or a frame fails.
// A user quit returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("frame loop started", "size", s.size, "state", s.state)
	for {
		running, err := s.Step(ctx)
		if err != nil {
			s.logger.Error("frame loop failed", "frame", s.frames+1, "phase", s.phase, "err", err)
			return err
		}
		if !running {
			s.logger.Info("frame loop stopped", "frames", s.frames, "skipped", s.skipped)
			return nil
		}
	}
}

// Step runs one iteration of the loop. It returns false once the user asked to
// quit. Any error is fatal to the loop.
func (s *Scheduler) Step(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	n := s.frames + 1
	start := time.Now()

	if err := s.sync.Publish(s.state, s.surface.UniformBuffer()); err != nil {
		return false, fmt.Errorf("frame %d: %w", n, err)
	}

	s.enter(PhaseAcquire, n)
	if !s.size.Valid() {
		return s.skip(ctx, n, fmt.Errorf("%w: size %v", ErrTargetUnavailable, s.size))
	}
	target, err := s.surface.AcquireTarget(s.size)
	if err != nil {
		if errors.Is(err, ErrTargetUnavailable) {
			return s.skip(ctx, n, err)
		}
		return false, fmt.Errorf("frame %d: acquire %v target: %w", n, s.size, err)
	}
	s.backoff.Reset()

	s.enter(PhaseEncode, n)
	d := NewDispatch(target.Size(), s.surface.MaxThreadsPerGroup())
	sub, err := s.surface.EncodeAndDispatch(target, d)
	if err != nil {
		return false, fmt.Errorf("frame %d: encode: %w", n, err)
	}
	s.enter(PhaseSubmit, n)

	s.enter(PhasePresentRequested, n)
	if err := s.surface.Present(target); err != nil {
		return false, fmt.Errorf("frame %d: present: %w", n, err)
	}

	s.enter(PhaseWaitComplete, n)
	if err := sub.Wait(ctx); err != nil {
		return false, fmt.Errorf("frame %d: wait: %w", n, err)
	}

	s.enter(PhasePoll, n)
	s.frames = n
	ev := s.poll()
	if ev.Quit {
		s.observer.FrameCompleted(Stats{Frame: n, Duration: time.Since(start), Size: target.Size(), State: s.state})
		return false, nil
	}

	rendered := s.state
	s.velocity, s.state = s.integrator.Update(ev.Keys, s.velocity, s.state)
	s.observer.FrameCompleted(Stats{Frame: n, Duration: time.Since(start), Size: target.Size(), State: rendered})
	return true, nil
}

// skip handles a frame whose target could not be acquired. Input is still
// polled so quit and resize are honoured, but the viewport is not advanced.
func (s *Scheduler) skip(ctx context.Context, n uint64, cause error) (bool, error) {
	s.skipped++
	s.observer.FrameSkipped(n, cause)
	s.logger.Warn("frame skipped", "frame", n, "size", s.size, "err", cause)

	s.enter(PhasePoll, n)
	if ev := s.poll(); ev.Quit {
		return false, nil
	}

	wait := s.backoff.NextBackOff()
	if wait == backoff.Stop {
		return false, fmt.Errorf("frame %d: %w after %d skips: %w", n, ErrTooManySkippedFrames, s.skipped, cause)
	}
	if wait <= 0 {
		return true, nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-t.C:
		return true, nil
	}
}

// poll reads input and caches a resize for the next iteration.
func (s *Scheduler) poll() Events {
	ev := s.input.Poll()
	if ev.Resized && ev.Size != s.size {
		s.logger.Debug("surface resized", "from", s.size, "to", ev.Size)
		s.size = ev.Size
	}
	return ev
}

func (s *Scheduler) enter(p Phase, n uint64) {
	s.phase = p
	s.logger.Debug("frame phase", "frame", n, "phase", p)
}
