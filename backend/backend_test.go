package backend

import (
	"context"
	"errors"
	"image"
	"image/color"
	"slices"
	"testing"

	"github.com/gogpu/mandelbrot/frame"
	"github.com/gogpu/mandelbrot/kernel"
	"github.com/gogpu/mandelbrot/uniform"
	"github.com/gogpu/mandelbrot/viewport"
)

func TestSoftwareSurfaceName(t *testing.T) {
	s := NewSoftwareSurface(Config{})
	if s.Name() != "software" {
		t.Errorf("Name() = %q, want %q", s.Name(), "software")
	}
	if s.MaxThreadsPerGroup() != kernel.WorkgroupSize {
		t.Errorf("MaxThreadsPerGroup() = %d, want %d", s.MaxThreadsPerGroup(), kernel.WorkgroupSize)
	}
}

func TestSoftwareSurfaceAcquire(t *testing.T) {
	s := NewSoftwareSurface(Config{})
	defer s.Close()

	if _, err := s.AcquireTarget(frame.Size{Width: 0, Height: 10}); !errors.Is(err, frame.ErrTargetUnavailable) {
		t.Errorf("AcquireTarget(0x10) error = %v, want ErrTargetUnavailable", err)
	}

	target, err := s.AcquireTarget(frame.Size{Width: 70, Height: 3})
	if err != nil {
		t.Fatalf("AcquireTarget() error = %v", err)
	}
	if got := target.Size(); got != (frame.Size{Width: 70, Height: 3}) {
		t.Errorf("target.Size() = %v, want 70x3", got)
	}

	other := NewSoftwareSurface(Config{})
	if _, err := other.EncodeAndDispatch(target, frame.NewDispatch(target.Size(), 64)); !errors.Is(err, ErrForeignTarget) {
		t.Errorf("EncodeAndDispatch(foreign) error = %v, want ErrForeignTarget", err)
	}
}

func TestSoftwareSurfaceClosed(t *testing.T) {
	s := NewSoftwareSurface(Config{})
	s.Close()
	if _, err := s.AcquireTarget(frame.Size{Width: 4, Height: 4}); !errors.Is(err, ErrClosed) {
		t.Errorf("AcquireTarget after Close error = %v, want ErrClosed", err)
	}
}

// TestSoftwareSurfaceMatchesKernel renders one frame and compares every pixel
// against the CPU rendition of the kernel. The width is deliberately not a
// multiple of the workgroup size.
func TestSoftwareSurfaceMatchesKernel(t *testing.T) {
	var presented *image.RGBA
	var presentedFrame uint64
	s := NewSoftwareSurface(Config{OnPresent: func(n uint64, img *image.RGBA) {
		presentedFrame = n
		presented = image.NewRGBA(img.Bounds())
		copy(presented.Pix, img.Pix)
	}})
	defer s.Close()

	state := viewport.State{X: -0.75, Y: 0.1, Scale: 1.5}
	var sync uniform.Sync
	if err := sync.Publish(state, s.UniformBuffer()); err != nil {
		t.Fatal(err)
	}

	size := frame.Size{Width: 70, Height: 21}
	target, err := s.AcquireTarget(size)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := s.EncodeAndDispatch(target, frame.NewDispatch(size, s.MaxThreadsPerGroup()))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Present(target); err != nil {
		t.Fatal(err)
	}
	if presented != nil {
		t.Fatal("frame delivered before Wait")
	}
	if err := sub.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if presented == nil {
		t.Fatal("presented frame was not delivered")
	}
	if presentedFrame != 1 {
		t.Errorf("presented frame number = %d, want 1", presentedFrame)
	}

	rec := uniform.FromState(state)
	for y := range size.Height {
		for x := range size.Width {
			want := kernel.Shade(rec, x, y, size.Width, size.Height)
			if got := presented.RGBAAt(x, y); got != want {
				t.Fatalf("pixel (%d, %d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestSoftwareSurfaceNotPresented(t *testing.T) {
	delivered := false
	s := NewSoftwareSurface(Config{OnPresent: func(uint64, *image.RGBA) { delivered = true }})
	defer s.Close()

	size := frame.Size{Width: 8, Height: 8}
	target, err := s.AcquireTarget(size)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := s.EncodeAndDispatch(target, frame.NewDispatch(size, 64))
	if err != nil {
		t.Fatal(err)
	}
	if err := sub.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if delivered {
		t.Error("frame delivered without Present")
	}
}

// TestSoftwareSurfaceScheduler runs the full loop on the software surface.
func TestSoftwareSurfaceScheduler(t *testing.T) {
	var last *image.RGBA
	var count int
	s := NewSoftwareSurface(Config{OnPresent: func(_ uint64, img *image.RGBA) {
		count++
		last = img
	}})
	defer s.Close()

	in, err := frame.ParseScript("zoom-in*3,resize=32x16,idle")
	if err != nil {
		t.Fatal(err)
	}
	sched, err := frame.New(s, in, frame.Size{Width: 64, Height: 48})
	if err != nil {
		t.Fatal(err)
	}
	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if count != 6 {
		t.Errorf("presented %d frames, want 6", count)
	}
	if last.Bounds() != image.Rect(0, 0, 32, 16) {
		t.Errorf("last frame bounds = %v, want 32x16", last.Bounds())
	}
	if last.RGBAAt(16, 8) != (color.RGBA{A: 0xff}) {
		t.Errorf("center pixel = %v, want black (inside the set)", last.RGBAAt(16, 8))
	}
}

func TestRegistry(t *testing.T) {
	if !IsRegistered(BackendSoftware) {
		t.Fatal("software backend not registered on import")
	}

	const name = "test-failing"
	Register(name, func(Config) (Surface, error) { return nil, errors.New("no device") })
	t.Cleanup(func() { Unregister(name) })

	names := Available()
	if !slices.Contains(names, name) || !slices.Contains(names, BackendSoftware) {
		t.Errorf("Available() = %v, want both %q and %q", names, name, BackendSoftware)
	}
	if slices.Index(names, BackendSoftware) > slices.Index(names, name) {
		t.Errorf("Available() = %v, prioritized backends must come first", names)
	}

	if _, err := Open("missing", Config{}); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open(missing) error = %v, want ErrBackendNotAvailable", err)
	}
	if _, err := Open(name, Config{}); err == nil {
		t.Error("Open(failing) succeeded")
	}

	s, err := OpenDefault(Config{})
	if err != nil {
		t.Fatalf("OpenDefault() error = %v", err)
	}
	defer s.Close()
	if IsRegistered(BackendGPU) {
		return
	}
	if s.Name() != BackendSoftware {
		t.Errorf("OpenDefault() = %q, want %q", s.Name(), BackendSoftware)
	}
}

func TestOpenDefaultNoBackends(t *testing.T) {
	registryMu.Lock()
	saved := backends
	backends = map[string]Factory{
		"broken": func(Config) (Surface, error) { return nil, errors.New("broken") },
	}
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		backends = saved
		registryMu.Unlock()
	})

	if _, err := OpenDefault(Config{}); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("OpenDefault() error = %v, want ErrBackendNotAvailable", err)
	}
}
