// Package mandelbrot is a real-time GPU Mandelbrot viewer.
//
// # Overview
//
// Every frame, the current viewport (center and scale) is written into a
// single GPU parameter buffer, a compute kernel computes one pixel per thread
// into the presentable image, and the CPU waits for the GPU to finish before
// polling input and advancing the viewport. Navigation is velocity based:
// held keys set a velocity, released keys let it decay.
//
// # Architecture
//
// The module is organized into:
//   - viewport: viewport state, velocity and the per-frame input integrator
//   - uniform: the 12-byte parameter record and its publication into a buffer
//   - frame: the frame scheduler state machine and the Surface abstraction
//   - kernel: the WGSL compute kernel, its binding ABI and a CPU rendition
//   - backend: offscreen surfaces (software, backend/gpu) and their registry
//   - backend/webgpu: the windowed surface with keyboard input
//   - metrics: Prometheus frame metrics
//   - snapshot: PNG and WebP encoding of presented frames
//   - cmd/mandelbrot, cmd/mandelbrot-render: the viewer and an offline renderer
//
// # Logging
//
// Nothing is logged by default. Call SetLogger to route diagnostics from all
// sub-packages to a slog.Logger.
package mandelbrot

// Version is the current version of the module.
const Version = "0.1.0"
