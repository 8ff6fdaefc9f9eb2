// Package kernel holds the Mandelbrot compute kernel and its binding ABI.
//
// The kernel is written in WGSL and compiled to SPIR-V with naga for the HAL
// backend; the WebGPU backend loads the WGSL directly. A CPU rendition of the
// same math (Shade) backs the software surface.
//
// Binding ABI, group 0:
//
//	binding 0  texture_storage_2d<FORMAT, write>  output image
//	binding 1  storage, read                       {x, y, scale: f32}, 12 bytes
package kernel

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/naga"
)

//go:embed mandelbrot.wgsl
var mandelbrotWGSL string

// Kernel ABI constants.
const (
	// EntryPoint is the compute entry point name.
	EntryPoint = "mandelbrot_set"

	// WorkgroupSize is the kernel's declared workgroup width. Workgroups are
	// WorkgroupSize×1×1, so this is also the pipeline's max threads per group.
	WorkgroupSize = 64

	// BindingTarget is the binding slot of the output storage texture.
	BindingTarget = 0

	// BindingParams is the binding slot of the viewport parameter buffer.
	BindingParams = 1

	// MaxIterations bounds the escape-time loop.
	MaxIterations = 256
)

const formatToken = "{{FORMAT}}"

// Storage texel formats the kernel can write.
const (
	FormatRGBA8Unorm  = "rgba8unorm"
	FormatBGRA8Unorm  = "bgra8unorm"
	FormatRGBA16Float = "rgba16float"
	FormatRGBA32Float = "rgba32float"
)

// ErrUnsupportedFormat is returned for texel formats the kernel cannot target.
var ErrUnsupportedFormat = errors.New("kernel: unsupported storage format")

// Source returns the WGSL source specialized for the given storage format.
func Source(format string) (string, error) {
	switch format {
	case FormatRGBA8Unorm, FormatBGRA8Unorm, FormatRGBA16Float, FormatRGBA32Float:
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return strings.ReplaceAll(mandelbrotWGSL, formatToken, format), nil
}

// SPIRV compiles the kernel for the given storage format to SPIR-V words.
func SPIRV(format string) ([]uint32, error) {
	src, err := Source(format)
	if err != nil {
		return nil, err
	}

	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("kernel: failed to compile shader: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("kernel: SPIR-V length %d is not word aligned", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}
