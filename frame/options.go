package frame

import (
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/gogpu/mandelbrot"
	"github.com/gogpu/mandelbrot/viewport"
)

// Stats describes one completed frame.
type Stats struct {
	Frame    uint64
	Duration time.Duration
	Size     Size
	State    viewport.State
}

// Observer receives per-frame notifications on the driving goroutine.
// Implementations must not block.
type Observer interface {
	FrameCompleted(Stats)
	FrameSkipped(frame uint64, cause error)
}

type nopObserver struct{}

func (nopObserver) FrameCompleted(Stats)       {}
func (nopObserver) FrameSkipped(uint64, error) {}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	observer   Observer
	integrator *viewport.Integrator
	state      viewport.State
	backoff    backoff.BackOff
}

// Default skip back-off bounds.
const (
	DefaultSkipInitialInterval = 10 * time.Millisecond
	DefaultSkipMaxInterval     = 250 * time.Millisecond
)

// newSkipBackOff returns an exponential back-off that never gives up.
func newSkipBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DefaultSkipInitialInterval
	b.MaxInterval = DefaultSkipMaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func defaultOptions() options {
	return options{
		logger:   mandelbrot.Logger(),
		observer: nopObserver{},
		state:    viewport.Initial,
	}
}

// WithLogger sets the scheduler logger. By default the scheduler logs through
// mandelbrot.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers a per-frame observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithIntegrator replaces the default viewport integrator.
func WithIntegrator(in *viewport.Integrator) Option {
	return func(o *options) {
		o.integrator = in
	}
}

// WithInitialState sets the viewport shown by the first frame.
func WithInitialState(s viewport.State) Option {
	return func(o *options) {
		o.state = s
	}
}

// WithSkipBackOff sets the pacing policy for frames skipped because the target
// was unavailable. When the policy returns backoff.Stop the loop fails with
// ErrTooManySkippedFrames.
func WithSkipBackOff(b backoff.BackOff) Option {
	return func(o *options) {
		o.backoff = b
	}
}
