//go:build !nogpu

package gpu

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/mandelbrot/backend"
	"github.com/gogpu/mandelbrot/frame"
	"github.com/gogpu/mandelbrot/kernel"
	"github.com/gogpu/mandelbrot/uniform"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// DefaultWaitTimeout bounds a single fence wait.
const DefaultWaitTimeout = 5 * time.Second

// init registers the GPU backend on package import.
func init() {
	backend.Register(backend.BackendGPU, func(cfg backend.Config) (backend.Surface, error) {
		return New(cfg)
	})
}

// Option configures a Context.
type Option func(*Context)

// WithWaitTimeout overrides the fence wait timeout.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Context) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Context is the GPU context of the HAL backend: device, queue, compiled
// kernel pipeline, the parameter buffer and the offscreen target.
//
// Context implements backend.Surface and frame.Surface. It is not safe for
// concurrent use; the frame scheduler drives it from one goroutine.
type Context struct {
	cfg     backend.Config
	log     *slog.Logger
	timeout time.Duration

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	paramsBuf hal.Buffer
	params    *paramBuffer

	target offscreen
	frames uint64
	closed bool
}

// New creates a context on the first discrete or integrated GPU.
func New(cfg backend.Config, opts ...Option) (*Context, error) {
	c := newContext(cfg, opts)

	halBackend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("gpu: vulkan backend not available")
	}
	instance, err := halBackend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("gpu: create instance: %w", err)
	}
	c.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("gpu: no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("gpu: open device: %w", err)
	}
	c.device = openDev.Device
	c.queue = openDev.Queue

	if err := c.init(); err != nil {
		c.Close()
		return nil, err
	}
	c.log.Info("gpu: context initialized", "adapter", selected.Info.Name)
	return c, nil
}

// NewWithDevice creates a context on an existing device and queue. The
// device is not destroyed by Close.
func NewWithDevice(device hal.Device, queue hal.Queue, cfg backend.Config, opts ...Option) (*Context, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("gpu: nil device or queue")
	}
	c := newContext(cfg, opts)
	c.device = device
	c.queue = queue
	c.external = true
	if err := c.init(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// NewWithProvider creates a context on the device shared by an external
// provider (e.g., a gogpu window). The provider must implement
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
func NewWithProvider(provider gpucontext.DeviceProvider, cfg backend.Config, opts ...Option) (*Context, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("gpu: provider HalQueue is not hal.Queue")
	}
	return NewWithDevice(device, queue, cfg, opts...)
}

func newContext(cfg backend.Config, opts []Option) *Context {
	c := &Context{
		cfg:     cfg,
		log:     cfg.Log(),
		timeout: DefaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// init compiles the kernel and creates the pipeline and parameter buffer.
func (c *Context) init() error {
	code, err := kernel.SPIRV(kernel.FormatRGBA8Unorm)
	if err != nil {
		return fmt.Errorf("gpu: %w", err)
	}

	shader, err := c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "mandelbrot_shader",
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return fmt.Errorf("gpu: create shader module: %w", err)
	}
	c.shader = shader

	// Bind group layout:
	//   Binding 0: output image (write-only storage texture)
	//   Binding 1: viewport parameters (read-only storage buffer)
	bindLayout, err := c.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "mandelbrot_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    kernel.BindingTarget,
				Visibility: gputypes.ShaderStageCompute,
				StorageTexture: &gputypes.StorageTextureBindingLayout{
					Access:        gputypes.StorageTextureAccessWriteOnly,
					Format:        gputypes.TextureFormatRGBA8Unorm,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    kernel.BindingParams,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: create bind group layout: %w", err)
	}
	c.bindLayout = bindLayout

	pipeLayout, err := c.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "mandelbrot_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{c.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("gpu: create pipeline layout: %w", err)
	}
	c.pipeLayout = pipeLayout

	pipeline, err := c.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "mandelbrot_pipeline",
		Layout:  c.pipeLayout,
		Compute: hal.ComputeState{Module: c.shader, EntryPoint: kernel.EntryPoint},
	})
	if err != nil {
		return fmt.Errorf("gpu: create compute pipeline: %w", err)
	}
	c.pipeline = pipeline

	paramsBuf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "mandelbrot_params",
		Size:  uniform.Size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: create parameter buffer: %w", err)
	}
	c.paramsBuf = paramsBuf
	c.params = &paramBuffer{mem: make([]byte, uniform.Size), queue: c.queue, buf: paramsBuf}
	return nil
}

// Name returns the backend identifier.
func (c *Context) Name() string { return backend.BackendGPU }

// MaxThreadsPerGroup returns the kernel's workgroup width.
func (c *Context) MaxThreadsPerGroup() int { return kernel.WorkgroupSize }

// UniformBuffer returns the parameter buffer bound at slot 1.
func (c *Context) UniformBuffer() uniform.Buffer { return c.params }

// Size returns the size of the current offscreen target.
func (c *Context) Size() frame.Size { return c.target.size }

// Close releases all GPU resources. A device obtained from NewWithDevice or
// NewWithProvider is left alive.
func (c *Context) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.device == nil {
		return
	}

	c.target.destroy(c.device)
	if c.paramsBuf != nil {
		c.device.DestroyBuffer(c.paramsBuf)
		c.paramsBuf = nil
	}
	if c.pipeline != nil {
		c.device.DestroyComputePipeline(c.pipeline)
		c.pipeline = nil
	}
	if c.pipeLayout != nil {
		c.device.DestroyPipelineLayout(c.pipeLayout)
		c.pipeLayout = nil
	}
	if c.bindLayout != nil {
		c.device.DestroyBindGroupLayout(c.bindLayout)
		c.bindLayout = nil
	}
	if c.shader != nil {
		c.device.DestroyShaderModule(c.shader)
		c.shader = nil
	}

	if !c.external {
		c.device.Destroy()
		if c.instance != nil {
			c.instance.Destroy()
			c.instance = nil
		}
	}
	c.device = nil
	c.queue = nil
}

// paramBuffer is a CPU shadow of the GPU parameter buffer. Modified ranges
// are uploaded through the queue, which orders them before later submits.
type paramBuffer struct {
	mem   []byte
	queue hal.Queue
	buf   hal.Buffer
}

func (b *paramBuffer) Contents() []byte { return b.mem }

func (b *paramBuffer) DidModifyRange(offset, length int) error {
	if offset < 0 || length < 0 || offset+length > len(b.mem) {
		return fmt.Errorf("gpu: range [%d, %d) outside parameter buffer", offset, offset+length)
	}
	b.queue.WriteBuffer(b.buf, uint64(offset), b.mem[offset:offset+length]) //nolint:gosec // offset checked above
	return nil
}
