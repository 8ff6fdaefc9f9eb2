//go:build !nogpu

package gpu

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/mandelbrot/backend"
	"github.com/gogpu/mandelbrot/frame"
)

// copyPitchAlignment is the required BytesPerRow alignment for
// texture-to-buffer copies (WebGPU and DX12).
const copyPitchAlignment = 256

// offscreen holds the storage texture the kernel writes, its bind group and
// the staging buffer it is copied into.
type offscreen struct {
	size      frame.Size
	tex       hal.Texture
	view      hal.TextureView
	bindGroup hal.BindGroup
	staging   hal.Buffer
	rowPitch  uint32
	usage     gputypes.TextureUsage
	img       *image.RGBA
}

func (o *offscreen) destroy(device hal.Device) {
	if o.bindGroup != nil {
		device.DestroyBindGroup(o.bindGroup)
	}
	if o.staging != nil {
		device.DestroyBuffer(o.staging)
	}
	if o.view != nil {
		device.DestroyTextureView(o.view)
	}
	if o.tex != nil {
		device.DestroyTexture(o.tex)
	}
	*o = offscreen{}
}

type target struct {
	owner     *Context
	size      frame.Size
	presented bool
}

func (t *target) Size() frame.Size { return t.size }

type submission struct {
	ctx    *Context
	target *target
	cmdBuf hal.CommandBuffer
	fence  hal.Fence
	frame  uint64
}

// AcquireTarget returns the offscreen target, recreating it when size changed.
func (c *Context) AcquireTarget(size frame.Size) (frame.Target, error) {
	if c.closed {
		return nil, backend.ErrClosed
	}
	if !size.Valid() {
		return nil, fmt.Errorf("%w: size %v", frame.ErrTargetUnavailable, size)
	}
	if c.target.size != size {
		if err := c.ensureTarget(size); err != nil {
			return nil, err
		}
	}
	return &target{owner: c, size: size}, nil
}

func (c *Context) ensureTarget(size frame.Size) error {
	c.target.destroy(c.device)

	w, h := uint32(size.Width), uint32(size.Height) //nolint:gosec // size validated positive
	tex, err := c.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "mandelbrot_target",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageStorageBinding | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("gpu: create target texture: %w", err)
	}
	c.target.tex = tex

	view, err := c.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: "mandelbrot_target_view",
	})
	if err != nil {
		c.target.destroy(c.device)
		return fmt.Errorf("gpu: create target view: %w", err)
	}
	c.target.view = view

	bindGroup, err := c.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "mandelbrot_bind_group",
		Layout: c.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()}},
			{Binding: 1, Resource: gputypes.BufferBinding{
				Buffer: c.paramsBuf.NativeHandle(), Offset: 0, Size: uint64(len(c.params.mem)),
			}},
		},
	})
	if err != nil {
		c.target.destroy(c.device)
		return fmt.Errorf("gpu: create bind group: %w", err)
	}
	c.target.bindGroup = bindGroup

	// WebGPU (and DX12) requires BytesPerRow aligned to 256 bytes.
	rowPitch := (w*4 + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	staging, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "mandelbrot_staging",
		Size:  uint64(rowPitch) * uint64(h),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		c.target.destroy(c.device)
		return fmt.Errorf("gpu: create staging buffer: %w", err)
	}
	c.target.staging = staging
	c.target.rowPitch = rowPitch
	c.target.img = image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	c.target.size = size

	c.log.Debug("gpu: target allocated", "size", size, "rowPitch", rowPitch)
	return nil
}

// EncodeAndDispatch encodes the kernel dispatch followed by a copy of the
// target into the staging buffer, and submits both with a fence.
func (c *Context) EncodeAndDispatch(ft frame.Target, d frame.Dispatch) (frame.Submission, error) {
	t, err := c.own(ft)
	if err != nil {
		return nil, err
	}
	o := &c.target

	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "mandelbrot_encoder"})
	if err != nil {
		return nil, fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("mandelbrot_frame"); err != nil {
		return nil, fmt.Errorf("gpu: begin encoding: %w", err)
	}

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: o.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: o.usage,
			NewUsage: gputypes.TextureUsageStorageBinding,
		},
	}})

	groups := d.Workgroups()
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "mandelbrot_pass"})
	pass.SetPipeline(c.pipeline)
	pass.SetBindGroup(0, o.bindGroup, nil)
	pass.Dispatch(uint32(groups.X), uint32(groups.Y), uint32(groups.Z)) //nolint:gosec // group counts are small and positive
	pass.End()

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: o.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageStorageBinding,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	o.usage = gputypes.TextureUsageCopySrc

	w, h := uint32(t.size.Width), uint32(t.size.Height) //nolint:gosec // size validated positive
	encoder.CopyTextureToBuffer(o.tex, o.staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: o.rowPitch, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: o.tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("gpu: end encoding: %w", err)
	}

	fence, err := c.device.CreateFence()
	if err != nil {
		c.device.FreeCommandBuffer(cmdBuf)
		return nil, fmt.Errorf("gpu: create fence: %w", err)
	}
	if err := c.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		c.device.DestroyFence(fence)
		c.device.FreeCommandBuffer(cmdBuf)
		return nil, fmt.Errorf("gpu: submit: %w", err)
	}

	c.frames++
	return &submission{ctx: c, target: t, cmdBuf: cmdBuf, fence: fence, frame: c.frames}, nil
}

// Present marks the target for readback and delivery once its work completes.
func (c *Context) Present(ft frame.Target) error {
	t, err := c.own(ft)
	if err != nil {
		return err
	}
	t.presented = true
	return nil
}

func (c *Context) own(ft frame.Target) (*target, error) {
	if c.closed {
		return nil, backend.ErrClosed
	}
	t, ok := ft.(*target)
	if !ok || t.owner != c || t.size != c.target.size {
		return nil, backend.ErrForeignTarget
	}
	return t, nil
}

// Wait blocks on the submission fence. The HAL wait is not interruptible, so
// ctx only shortens the timeout.
func (s *submission) Wait(ctx context.Context) error {
	c := s.ctx
	defer c.device.FreeCommandBuffer(s.cmdBuf)
	defer c.device.DestroyFence(s.fence)

	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	fenceOK, err := c.device.Wait(s.fence, 1, timeout)
	if err != nil {
		return fmt.Errorf("gpu: wait for GPU: %w", err)
	}
	if !fenceOK {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("gpu: wait for GPU: timed out after %v", timeout)
	}

	if !s.target.presented || c.cfg.OnPresent == nil {
		return nil
	}
	img, err := c.readback()
	if err != nil {
		return err
	}
	c.cfg.OnPresent(s.frame, img)
	return nil
}

// readback copies the staging buffer into the target image, stripping the
// row padding.
func (c *Context) readback() (*image.RGBA, error) {
	o := &c.target
	h := o.size.Height
	data := make([]byte, int(o.rowPitch)*h)
	if err := c.queue.ReadBuffer(o.staging, 0, data); err != nil {
		return nil, fmt.Errorf("gpu: readback: %w", err)
	}
	rowBytes := o.size.Width * 4
	for y := range h {
		src := data[y*int(o.rowPitch):]
		copy(o.img.Pix[y*o.img.Stride:y*o.img.Stride+rowBytes], src[:rowBytes])
	}
	return o.img, nil
}
