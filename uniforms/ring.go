package uniforms

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
)

// Block is a host-writable range of device memory that a ring carves into
// entries.
type Block interface {
	Write(offset int, data []byte) error
	Destroy()
}

type Allocator[B Block] interface {
	Allocate(size int) (B, error)
}

// Handle names one ring entry: a byte range inside a block, ready to be
// referenced from a descriptor.
type Handle[B Block] struct {
	Block  B
	Offset int
	Range  int
}

// Ring hands out uniform entries round robin. It never reuses an entry
// before every other entry has been handed out, so with a capacity equal
// to the number of frames that can be in flight an entry is only
// rewritten once the frame that read it has retired. The ring itself does
// not track retirement.
type Ring[T any, B Block] struct {
	alloc  Allocator[B]
	size   int
	stride int

	blocks  []B
	entries []Handle[B]
	next    int
}

// NewRing creates a ring whose entries start on multiples of alignment
// (the device's minUniformBufferOffsetAlignment).
func NewRing[T any, B Block](alloc Allocator[B], alignment, capacity int) (*Ring[T, B], error) {
	var zero T
	size := binary.Size(zero)
	if size <= 0 {
		return nil, errors.AssertionFailedf("uniform type %T has no fixed size", zero)
	}

	r := &Ring[T, B]{
		alloc:  alloc,
		size:   size,
		stride: alignUp(size, alignment),
	}
	if err := r.Reserve(capacity); err != nil {
		return nil, err
	}
	return r, nil
}

func alignUp(size, alignment int) int {
	if alignment <= 1 {
		return size
	}
	return (size + alignment - 1) / alignment * alignment
}

func (r *Ring[T, B]) Stride() int   { return r.stride }
func (r *Ring[T, B]) Capacity() int { return len(r.entries) }

// Reserve grows the ring to at least capacity entries. Existing blocks are
// kept, so handles already given out stay valid.
func (r *Ring[T, B]) Reserve(capacity int) error {
	grow := capacity - len(r.entries)
	if grow <= 0 {
		return nil
	}

	block, err := r.alloc.Allocate(grow * r.stride)
	if err != nil {
		return errors.Wrapf(err, "allocate %d uniform entries", grow)
	}
	r.blocks = append(r.blocks, block)

	for i := 0; i < grow; i++ {
		r.entries = append(r.entries, Handle[B]{
			Block:  block,
			Offset: i * r.stride,
			Range:  r.size,
		})
	}
	return nil
}

// Next writes value into the next entry and returns it.
func (r *Ring[T, B]) Next(value T) (Handle[B], error) {
	if len(r.entries) == 0 {
		if err := r.Reserve(1); err != nil {
			return Handle[B]{}, err
		}
	}

	h := r.entries[r.next]

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, value); err != nil {
		return Handle[B]{}, errors.Wrap(err, "encode uniform")
	}
	if err := h.Block.Write(h.Offset, buf.Bytes()); err != nil {
		return Handle[B]{}, errors.Wrap(err, "write uniform")
	}

	r.next = (r.next + 1) % len(r.entries)
	return h, nil
}

func (r *Ring[T, B]) Destroy() {
	for _, b := range r.blocks {
		b.Destroy()
	}
	r.blocks = nil
	r.entries = nil
	r.next = 0
}
