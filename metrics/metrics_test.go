package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gogpu/mandelbrot/frame"
	"github.com/gogpu/mandelbrot/viewport"
)

func TestObserverCounts(t *testing.T) {
	o := New()

	o.FrameCompleted(frame.Stats{
		Frame:    1,
		Duration: 4 * time.Millisecond,
		Size:     frame.Size{Width: 640, Height: 480},
		State:    viewport.State{X: -1, Scale: 2.5},
	})
	o.FrameCompleted(frame.Stats{
		Frame:    2,
		Duration: 20 * time.Millisecond,
		Size:     frame.Size{Width: 320, Height: 200},
		State:    viewport.State{X: -1, Scale: 2.45},
	})
	o.FrameSkipped(3, frame.ErrTargetUnavailable)

	if got := testutil.ToFloat64(o.completed); got != 2 {
		t.Errorf("completed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(o.skipped); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(o.scale); got != 2.45 {
		t.Errorf("scale = %v, want last rendered 2.45", got)
	}
	if got := testutil.ToFloat64(o.width); got != 320 {
		t.Errorf("width = %v, want 320", got)
	}
	if got := testutil.CollectAndCount(o.duration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestObserverGather(t *testing.T) {
	o := New()
	o.FrameSkipped(1, errors.New("minimized"))

	families, err := o.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	want := map[string]bool{
		"mandelbrot_frames_completed_total": false,
		"mandelbrot_frames_skipped_total":   false,
		"mandelbrot_frame_duration_seconds": false,
		"mandelbrot_viewport_scale":         false,
		"go_goroutines":                     false,
	}
	for _, mf := range families {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("metric family %s not gathered", name)
		}
	}
}

func TestHandler(t *testing.T) {
	o := New()
	o.FrameCompleted(frame.Stats{Frame: 1, Duration: time.Millisecond, State: viewport.State{Scale: 2.5}})

	rec := httptest.NewRecorder()
	o.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(string(body), "mandelbrot_frames_completed_total 1") {
		t.Errorf("response lacks completed counter:\n%s", body)
	}
}
