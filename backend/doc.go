// Package backend provides offscreen compute surfaces for the frame scheduler.
//
// An offscreen surface renders into an image it owns and hands every
// presented frame to Config.OnPresent after the kernel has finished. The
// windowed surface lives in backend/webgpu and is not registered here.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime.
// The software backend is automatically registered on import:
//
//	import _ "github.com/gogpu/mandelbrot/backend"
//
// The GPU backend registers itself when its package is imported:
//
//	import _ "github.com/gogpu/mandelbrot/backend/gpu"
//
// # Backend Selection
//
// Use OpenDefault to get the best backend that opens successfully, or Open
// to request a specific backend by name:
//
//	surface, err := backend.OpenDefault(backend.Config{
//		OnPresent: func(n uint64, img *image.RGBA) { last = img },
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer surface.Close()
//
// # Available Backends
//
// - "gpu": kernel dispatched on the GPU through gogpu/wgpu HAL, with readback
// - "software": the kernel's math on the CPU (always available)
package backend
