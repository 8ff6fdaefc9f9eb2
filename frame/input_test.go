package frame

import (
	"reflect"
	"testing"

	"github.com/gogpu/mandelbrot/viewport"
)

func TestParseScript(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []Events
	}{
		{"empty", "", nil},
		{"single", "up", []Events{{Keys: viewport.Keys{Up: true}}}},
		{"repeat", "zoom-in*2", []Events{
			{Keys: viewport.Keys{ZoomIn: true}},
			{Keys: viewport.Keys{ZoomIn: true}},
		}},
		{"combined", " left+out , idle", []Events{
			{Keys: viewport.Keys{Left: true, ZoomOut: true}},
			{},
		}},
		{"resize", "resize=320x200", []Events{
			{Resized: true, Size: Size{Width: 320, Height: 200}},
		}},
		{"quit", "right,quit", []Events{
			{Keys: viewport.Keys{Right: true}},
			{Quit: true},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := ParseScript(tt.script)
			if err != nil {
				t.Fatalf("ParseScript(%q) error = %v", tt.script, err)
			}
			if in.Remaining() != len(tt.want) {
				t.Fatalf("Remaining() = %d, want %d", in.Remaining(), len(tt.want))
			}
			var got []Events
			for in.Remaining() > 0 {
				got = append(got, in.Poll())
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("events = %+v, want %+v", got, tt.want)
			}
			if !in.Poll().Quit {
				t.Error("exhausted script did not report Quit")
			}
		})
	}
}

func TestParseScriptErrors(t *testing.T) {
	for _, script := range []string{
		"sideways",
		"up*0",
		"up*x",
		"resize=800",
		"resize=ax600",
	} {
		if _, err := ParseScript(script); err == nil {
			t.Errorf("ParseScript(%q) succeeded", script)
		}
	}
}

func TestDispatchWorkgroups(t *testing.T) {
	tests := []struct {
		size    Size
		threads int
		want    Extent
	}{
		{Size{Width: 1024, Height: 768}, 64, Extent{X: 16, Y: 768, Z: 1}},
		{Size{Width: 1000, Height: 3}, 64, Extent{X: 16, Y: 3, Z: 1}},
		{Size{Width: 7, Height: 5}, 0, Extent{X: 7, Y: 5, Z: 1}},
	}
	for _, tt := range tests {
		d := NewDispatch(tt.size, tt.threads)
		if got := d.Workgroups(); got != tt.want {
			t.Errorf("NewDispatch(%v, %d).Workgroups() = %+v, want %+v", tt.size, tt.threads, got, tt.want)
		}
		if d.Grid != (Extent{X: tt.size.Width, Y: tt.size.Height, Z: 1}) {
			t.Errorf("Grid = %+v, want one thread per pixel", d.Grid)
		}
	}
}

func TestPhaseString(t *testing.T) {
	if got := PhaseWaitComplete.String(); got != "wait-complete" {
		t.Errorf("PhaseWaitComplete.String() = %q", got)
	}
	if got := Phase(42).String(); got != "unknown" {
		t.Errorf("Phase(42).String() = %q", got)
	}
}
