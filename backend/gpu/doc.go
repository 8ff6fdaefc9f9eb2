// Package gpu runs the Mandelbrot kernel on a GPU through gogpu/wgpu HAL.
//
// The kernel writes into an offscreen RGBA8 storage texture that is copied
// into a staging buffer in the same command buffer. Presented frames are read
// back after the fence signals and handed to backend.Config.OnPresent.
//
// The package registers itself as the "gpu" backend on import:
//
//	import _ "github.com/gogpu/mandelbrot/backend/gpu"
//
// Building with the nogpu tag leaves the package empty and the registry
// falls back to the software backend.
package gpu
