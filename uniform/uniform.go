// Package uniform mirrors the viewport into the GPU-visible parameter buffer.
//
// The record layout is the kernel ABI for binding 1: three consecutive
// little-endian 32-bit floats (x, y, scale), 12 bytes, no padding.
package uniform

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/mandelbrot/viewport"
)

// Size is the byte size of an encoded Record.
const Size = 12

// ErrBufferTooSmall is returned when a buffer cannot hold a full Record.
var ErrBufferTooSmall = errors.New("uniform: buffer smaller than record")

// Record is the GPU copy of a viewport.State.
type Record struct {
	X     float32
	Y     float32
	Scale float32
}

// FromState narrows a viewport state to the kernel's precision.
func FromState(s viewport.State) Record {
	return Record{X: float32(s.X), Y: float32(s.Y), Scale: float32(s.Scale)}
}

// Put encodes r into the first Size bytes of dst.
// It panics if dst is shorter than Size.
func (r Record) Put(dst []byte) {
	_ = dst[Size-1]
	binary.LittleEndian.PutUint32(dst[0:], math.Float32bits(r.X))
	binary.LittleEndian.PutUint32(dst[4:], math.Float32bits(r.Y))
	binary.LittleEndian.PutUint32(dst[8:], math.Float32bits(r.Scale))
}

// Bytes returns the encoded record.
func (r Record) Bytes() []byte {
	b := make([]byte, Size)
	r.Put(b)
	return b
}

// Decode reads a Record from the first Size bytes of src.
func Decode(src []byte) (Record, error) {
	if len(src) < Size {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrBufferTooSmall, len(src))
	}
	return Record{
		X:     math.Float32frombits(binary.LittleEndian.Uint32(src[0:])),
		Y:     math.Float32frombits(binary.LittleEndian.Uint32(src[4:])),
		Scale: math.Float32frombits(binary.LittleEndian.Uint32(src[8:])),
	}, nil
}

// Buffer is the CPU side of a GPU-visible memory region.
//
// Contents returns the CPU-writable backing memory. DidModifyRange tells the
// GPU resource that bytes [offset, offset+length) changed; implementations that
// keep a separate device copy upload the range here.
type Buffer interface {
	Contents() []byte
	DidModifyRange(offset, length int) error
}

// Sync publishes viewport states into a Buffer.
type Sync struct {
	last      Record
	published uint64
}

// Publish writes the whole record for state into buf and then marks
// [0, Size) as modified. The notification never precedes the write, so the
// device never observes a partially replaced record.
func (s *Sync) Publish(state viewport.State, buf Buffer) error {
	mem := buf.Contents()
	if len(mem) < Size {
		return fmt.Errorf("%w: %d bytes", ErrBufferTooSmall, len(mem))
	}
	rec := FromState(state)
	rec.Put(mem)
	if err := buf.DidModifyRange(0, Size); err != nil {
		return fmt.Errorf("uniform: notify modified range: %w", err)
	}
	s.last = rec
	s.published++
	return nil
}

// Last returns the most recently published record.
func (s *Sync) Last() Record { return s.last }

// Published returns how many records have been published.
func (s *Sync) Published() uint64 { return s.published }

// HostBuffer is a Buffer backed by plain memory. It records the last modified
// range and is used by the software backend and in tests.
type HostBuffer struct {
	mem      []byte
	modified [2]int
	notified int
}

// NewHostBuffer allocates a host buffer holding one Record.
func NewHostBuffer() *HostBuffer {
	return &HostBuffer{mem: make([]byte, Size)}
}

// Contents returns the backing memory.
func (b *HostBuffer) Contents() []byte { return b.mem }

// DidModifyRange records the range.
func (b *HostBuffer) DidModifyRange(offset, length int) error {
	if offset < 0 || length < 0 || offset+length > len(b.mem) {
		return fmt.Errorf("uniform: range [%d, %d) outside buffer of %d bytes", offset, offset+length, len(b.mem))
	}
	b.modified = [2]int{offset, offset + length}
	b.notified++
	return nil
}

// Snapshot returns a copy of the buffer contents.
func (b *HostBuffer) Snapshot() []byte {
	out := make([]byte, len(b.mem))
	copy(out, b.mem)
	return out
}

// ModifiedRange returns the last range passed to DidModifyRange.
func (b *HostBuffer) ModifiedRange() (offset, end int) { return b.modified[0], b.modified[1] }

// Notifications returns how many times DidModifyRange succeeded.
func (b *HostBuffer) Notifications() int { return b.notified }
