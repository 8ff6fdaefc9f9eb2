// Package webgpu is the windowed backend: the kernel writes straight into
// the swapchain image of a GLFW window through wgpu-native.
//
// The surface is configured with storage-binding usage, so no blit pass is
// needed. BGRA swapchains require the bgra8unorm-storage feature; when the
// adapter lacks it an RGBA format must be offered by the surface.
package webgpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"

	"github.com/gogpu/mandelbrot"
	"github.com/gogpu/mandelbrot/backend"
	"github.com/gogpu/mandelbrot/frame"
	"github.com/gogpu/mandelbrot/kernel"
	"github.com/gogpu/mandelbrot/uniform"
)

// ErrNoStorageFormat is returned when no surface format can be written by a
// compute kernel on this adapter.
var ErrNoStorageFormat = errors.New("webgpu: surface offers no storage-capable format")

// Config configures a Context.
type Config struct {
	// Uncapped presents with PresentModeImmediate instead of vsync.
	Uncapped bool

	// Logger defaults to mandelbrot.Logger.
	Logger *slog.Logger
}

// Context is the GPU context of the windowed backend: instance, surface,
// adapter, device, queue, the kernel pipeline and the parameter buffer.
//
// Context implements frame.Surface. It must be used from the main OS thread.
type Context struct {
	log         *slog.Logger
	presentMode wgpu.PresentMode

	instance *wgpu.Instance
	surface  *wgpu.Surface
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	format     wgpu.TextureFormat
	alphaMode  wgpu.CompositeAlphaMode
	configured frame.Size
	stale      bool

	pipeline   *wgpu.ComputePipeline
	bindLayout *wgpu.BindGroupLayout
	paramsBuf  *wgpu.Buffer
	params     *paramBuffer
}

var _ frame.Surface = (*Context)(nil)

type target struct {
	owner     *Context
	size      frame.Size
	tex       *wgpu.Texture
	view      *wgpu.TextureView
	bindGroup *wgpu.BindGroup
}

func (t *target) Size() frame.Size { return t.size }

func (t *target) release() {
	if t.bindGroup != nil {
		t.bindGroup.Release()
		t.bindGroup = nil
	}
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
	if t.tex != nil {
		t.tex.Release()
		t.tex = nil
	}
}

type submission struct {
	ctx    *Context
	target *target
	index  wgpu.SubmissionIndex
}

// New creates a context presenting to win.
func New(win *Window, cfg Config) (*Context, error) {
	c := &Context{
		log:         cfg.Logger,
		presentMode: wgpu.PresentModeFifo,
	}
	if c.log == nil {
		c.log = mandelbrot.Logger()
	}
	if cfg.Uncapped {
		c.presentMode = wgpu.PresentModeImmediate
	}

	c.instance = wgpu.CreateInstance(nil)
	c.surface = c.instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(win.win))

	adapter, err := c.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: c.surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("webgpu: request adapter: %w", err)
	}
	c.adapter = adapter

	caps := c.surface.GetCapabilities(adapter)
	bgraStorage := slices.Contains(adapter.EnumerateFeatures(), wgpu.FeatureNameBGRA8UnormStorage)
	format, kernelFormat, err := chooseFormat(caps.Formats, bgraStorage)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.format = format
	c.alphaMode = wgpu.CompositeAlphaModeAuto
	if len(caps.AlphaModes) > 0 {
		c.alphaMode = caps.AlphaModes[0]
	}

	var features []wgpu.FeatureName
	if format == wgpu.TextureFormatBGRA8Unorm {
		features = append(features, wgpu.FeatureNameBGRA8UnormStorage)
	}
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:            "mandelbrot_device",
		RequiredFeatures: features,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("webgpu: request device: %w", err)
	}
	c.device = device
	c.queue = device.GetQueue()

	if err := c.createPipeline(kernelFormat); err != nil {
		c.Close()
		return nil, err
	}

	c.log.Info("webgpu: context initialized", "format", kernelFormat, "uncapped", cfg.Uncapped)
	return c, nil
}

func (c *Context) createPipeline(kernelFormat string) error {
	src, err := kernel.Source(kernelFormat)
	if err != nil {
		return fmt.Errorf("webgpu: %w", err)
	}
	shader, err := c.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "mandelbrot_shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src},
	})
	if err != nil {
		return fmt.Errorf("webgpu: create shader module: %w", err)
	}
	defer shader.Release()

	pipeline, err := c.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "mandelbrot_pipeline",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     shader,
			EntryPoint: kernel.EntryPoint,
		},
	})
	if err != nil {
		return fmt.Errorf("webgpu: create compute pipeline: %w", err)
	}
	c.pipeline = pipeline
	c.bindLayout = pipeline.GetBindGroupLayout(0)

	paramsBuf, err := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "mandelbrot_params",
		Size:  uniform.Size,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("webgpu: create parameter buffer: %w", err)
	}
	c.paramsBuf = paramsBuf
	c.params = &paramBuffer{mem: make([]byte, uniform.Size), queue: c.queue, buf: paramsBuf}
	return nil
}

// configure (re)configures the swapchain for size.
func (c *Context) configure(size frame.Size) {
	c.surface.Configure(c.adapter, c.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageStorageBinding,
		Format:      c.format,
		Width:       uint32(size.Width),  //nolint:gosec // size validated positive
		Height:      uint32(size.Height), //nolint:gosec // size validated positive
		PresentMode: c.presentMode,
		AlphaMode:   c.alphaMode,
	})
	c.configured = size
	c.stale = false
	c.log.Debug("webgpu: surface configured", "size", size)
}

// AcquireTarget returns the next swapchain image, reconfiguring the surface
// first when the size changed or the previous acquire failed. Acquire
// failures (timeout, outdated or lost surface) are reported as
// frame.ErrTargetUnavailable.
func (c *Context) AcquireTarget(size frame.Size) (frame.Target, error) {
	if !size.Valid() {
		return nil, fmt.Errorf("%w: size %v", frame.ErrTargetUnavailable, size)
	}
	if size != c.configured || c.stale {
		c.configure(size)
	}

	tex, err := c.surface.GetCurrentTexture()
	if err != nil {
		c.stale = true
		return nil, fmt.Errorf("%w: %v", frame.ErrTargetUnavailable, err)
	}
	t := &target{owner: c, size: size, tex: tex}

	t.view, err = tex.CreateView(nil)
	if err != nil {
		t.release()
		return nil, fmt.Errorf("webgpu: create target view: %w", err)
	}
	t.bindGroup, err = c.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "mandelbrot_bind_group",
		Layout: c.bindLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: kernel.BindingTarget, TextureView: t.view},
			{Binding: kernel.BindingParams, Buffer: c.paramsBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		t.release()
		return nil, fmt.Errorf("webgpu: create bind group: %w", err)
	}
	return t, nil
}

// EncodeAndDispatch encodes one compute pass over the target and submits it.
func (c *Context) EncodeAndDispatch(ft frame.Target, d frame.Dispatch) (frame.Submission, error) {
	t, ok := ft.(*target)
	if !ok || t.owner != c {
		return nil, backend.ErrForeignTarget
	}

	encoder, err := c.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu: create command encoder: %w", err)
	}
	defer encoder.Release()

	groups := d.Workgroups()
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(c.pipeline)
	pass.SetBindGroup(0, t.bindGroup, nil)
	pass.DispatchWorkgroups(uint32(groups.X), uint32(groups.Y), uint32(groups.Z)) //nolint:gosec // group counts are small and positive
	err = pass.End()
	pass.Release()
	if err != nil {
		return nil, fmt.Errorf("webgpu: end compute pass: %w", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu: finish encoding: %w", err)
	}
	defer cmd.Release()

	index := c.queue.Submit(cmd)
	return &submission{ctx: c, target: t, index: index}, nil
}

// Present queues the swapchain image for display. wgpu orders presentation
// after all work submitted before it.
func (c *Context) Present(ft frame.Target) error {
	if t, ok := ft.(*target); !ok || t.owner != c {
		return backend.ErrForeignTarget
	}
	c.surface.Present()
	return nil
}

// MaxThreadsPerGroup returns the kernel workgroup width.
func (c *Context) MaxThreadsPerGroup() int { return kernel.WorkgroupSize }

// UniformBuffer returns the parameter buffer bound at slot 1.
func (c *Context) UniformBuffer() uniform.Buffer { return c.params }

// Close releases all GPU objects.
func (c *Context) Close() {
	if c.paramsBuf != nil {
		c.paramsBuf.Release()
		c.paramsBuf = nil
	}
	if c.bindLayout != nil {
		c.bindLayout.Release()
		c.bindLayout = nil
	}
	if c.pipeline != nil {
		c.pipeline.Release()
		c.pipeline = nil
	}
	if c.queue != nil {
		c.queue.Release()
		c.queue = nil
	}
	if c.device != nil {
		c.device.Release()
		c.device = nil
	}
	if c.adapter != nil {
		c.adapter.Release()
		c.adapter = nil
	}
	if c.surface != nil {
		c.surface.Release()
		c.surface = nil
	}
	if c.instance != nil {
		c.instance.Release()
		c.instance = nil
	}
}

// Wait polls the device until the submission completes, then releases the
// per-frame target objects. wgpu-native's blocking poll cannot be
// interrupted; ctx is checked before blocking.
func (s *submission) Wait(ctx context.Context) error {
	defer s.target.release()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.ctx.device.Poll(true, &wgpu.WrappedSubmissionIndex{
		Queue:           s.ctx.queue,
		SubmissionIndex: s.index,
	})
	return nil
}

// paramBuffer is a CPU shadow of the parameter buffer; modified ranges are
// uploaded with Queue.WriteBuffer, which is ordered before later submits.
type paramBuffer struct {
	mem   []byte
	queue *wgpu.Queue
	buf   *wgpu.Buffer
}

func (b *paramBuffer) Contents() []byte { return b.mem }

func (b *paramBuffer) DidModifyRange(offset, length int) error {
	if offset < 0 || length < 0 || offset+length > len(b.mem) {
		return fmt.Errorf("webgpu: range [%d, %d) outside parameter buffer", offset, offset+length)
	}
	return b.queue.WriteBuffer(b.buf, uint64(offset), b.mem[offset:offset+length]) //nolint:gosec // offset checked above
}

// chooseFormat picks the swapchain format the kernel writes. RGBA8 is
// preferred; BGRA8 needs the bgra8unorm-storage feature.
func chooseFormat(formats []wgpu.TextureFormat, bgraStorage bool) (wgpu.TextureFormat, string, error) {
	if slices.Contains(formats, wgpu.TextureFormatRGBA8Unorm) {
		return wgpu.TextureFormatRGBA8Unorm, kernel.FormatRGBA8Unorm, nil
	}
	if bgraStorage && slices.Contains(formats, wgpu.TextureFormatBGRA8Unorm) {
		return wgpu.TextureFormatBGRA8Unorm, kernel.FormatBGRA8Unorm, nil
	}
	return wgpu.TextureFormatUndefined, "", fmt.Errorf("%w (offered %v)", ErrNoStorageFormat, formats)
}
