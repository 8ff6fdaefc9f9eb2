// Package metrics exports frame loop statistics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gogpu/mandelbrot"
	"github.com/gogpu/mandelbrot/frame"
)

const namespace = "mandelbrot"

// Frame duration buckets, from well above 1 kHz up to a stalled second.
var frameBuckets = []float64{.001, .002, .004, .008, .0167, .033, .066, .125, .25, .5, 1}

// Observer is a frame.Observer that records frame statistics on its own
// registry.
type Observer struct {
	registry *prometheus.Registry

	completed prometheus.Counter
	skipped   prometheus.Counter
	duration  prometheus.Histogram
	scale     prometheus.Gauge
	width     prometheus.Gauge
	height    prometheus.Gauge
}

var _ frame.Observer = (*Observer)(nil)

// New creates an Observer with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Observer {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Observer{
		registry: reg,
		completed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_completed_total",
			Help:      "Frames dispatched, presented and waited on",
		}),
		skipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Frames skipped because no target was available",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_duration_seconds",
			Help:      "Wall time of one frame iteration",
			Buckets:   frameBuckets,
		}),
		scale: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "viewport_scale",
			Help:      "Zoom factor of the last rendered frame",
		}),
		width: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_width_pixels",
			Help:      "Width of the last rendered target",
		}),
		height: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_height_pixels",
			Help:      "Height of the last rendered target",
		}),
	}
}

// Registry returns the registry the observer's collectors live on.
func (o *Observer) Registry() *prometheus.Registry { return o.registry }

// FrameCompleted implements frame.Observer.
func (o *Observer) FrameCompleted(s frame.Stats) {
	o.completed.Inc()
	o.duration.Observe(s.Duration.Seconds())
	o.scale.Set(s.State.Scale)
	o.width.Set(float64(s.Size.Width))
	o.height.Set(float64(s.Size.Height))
}

// FrameSkipped implements frame.Observer.
func (o *Observer) FrameSkipped(uint64, error) {
	o.skipped.Inc()
}

// Handler returns an HTTP handler exposing the observer's registry.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (o *Observer) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", o.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	mandelbrot.Logger().Info("metrics: serving", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
