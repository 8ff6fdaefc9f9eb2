package webgpu

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gogpu/mandelbrot/frame"
	"github.com/gogpu/mandelbrot/viewport"
)

// Default window geometry in logical (screen) units.
const (
	DefaultWidth  = 1024
	DefaultHeight = 768
	DefaultTitle  = "Mandelbrot"
)

// Window is a GLFW window without a client API, used as a WebGPU surface
// source and as the frame loop's input. All methods must be called from the
// main OS thread.
type Window struct {
	win *glfw.Window

	resized bool
	size    frame.Size
}

// OpenWindow initializes GLFW and opens a window of the given logical size.
// A zero width or height selects the default geometry.
func OpenWindow(title string, width, height int) (*Window, error) {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	if title == "" {
		title = DefaultTitle
	}

	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("webgpu: init glfw: %w", err)
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("webgpu: create window: %w", err)
	}

	w := &Window{win: win}
	w.size = w.FramebufferSize()
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.resized = true
		w.size = frame.Size{Width: width, Height: height}
	})
	return w, nil
}

// FramebufferSize returns the drawable size in physical pixels, which
// differs from the logical size on high-DPI displays.
func (w *Window) FramebufferSize() frame.Size {
	width, height := w.win.GetFramebufferSize()
	return frame.Size{Width: width, Height: height}
}

// Poll processes pending window events and samples the navigation keys.
func (w *Window) Poll() frame.Events {
	glfw.PollEvents()

	ev := frame.Events{
		Quit: w.win.ShouldClose(),
		Keys: keysFrom(func(k glfw.Key) bool { return w.win.GetKey(k) == glfw.Press }),
	}
	if w.resized {
		ev.Resized = true
		ev.Size = w.size
		w.resized = false
	}
	return ev
}

// Close destroys the window and terminates GLFW.
func (w *Window) Close() {
	if w.win == nil {
		return
	}
	w.win.Destroy()
	w.win = nil
	glfw.Terminate()
}

// keysFrom maps held keys to navigation keys: arrows pan, '=' zooms in and
// '-' zooms out.
func keysFrom(pressed func(glfw.Key) bool) viewport.Keys {
	return viewport.Keys{
		Up:      pressed(glfw.KeyUp),
		Down:    pressed(glfw.KeyDown),
		Left:    pressed(glfw.KeyLeft),
		Right:   pressed(glfw.KeyRight),
		ZoomIn:  pressed(glfw.KeyEqual),
		ZoomOut: pressed(glfw.KeyMinus),
	}
}
