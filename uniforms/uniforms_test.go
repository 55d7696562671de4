package uniforms

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/common"
)

type fakeBlock struct {
	id        int
	data      []byte
	destroyed bool
}

func (b *fakeBlock) Write(offset int, data []byte) error {
	if offset+len(data) > len(b.data) {
		return errors.Newf("write [%d, %d) past block of %d", offset, offset+len(data), len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

func (b *fakeBlock) Destroy() { b.destroyed = true }

type fakeAllocator struct {
	blocks []*fakeBlock
	fail   bool
}

func (a *fakeAllocator) Allocate(size int) (*fakeBlock, error) {
	if a.fail {
		return nil, errors.New("out of device memory")
	}
	b := &fakeBlock{id: len(a.blocks), data: make([]byte, size)}
	a.blocks = append(a.blocks, b)
	return b, nil
}

func TestValidate(t *testing.T) {
	if err := Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLightEncoding(t *testing.T) {
	light := NewLight([3]float32{1, 2, 3}, [3]float32{4, 5, 6}, 7)

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, light); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	if len(raw) != 32 {
		t.Fatalf("encoded %d bytes, want 32", len(raw))
	}

	read := func(off int) float32 {
		return math.Float32frombits(common.ByteOrder.Uint32(raw[off:]))
	}
	for _, tt := range []struct {
		off  int
		want float32
	}{
		{0, 1}, {4, 2}, {8, 3}, {12, 0}, {16, 4}, {20, 5}, {24, 6}, {28, 7},
	} {
		if got := read(tt.off); got != tt.want {
			t.Errorf("float at %d = %v, want %v", tt.off, got, tt.want)
		}
	}
}

func TestAlignUp(t *testing.T) {
	tests := []struct{ size, alignment, want int }{
		{size: 16, alignment: 0, want: 16},
		{size: 16, alignment: 1, want: 16},
		{size: 16, alignment: 256, want: 256},
		{size: 128, alignment: 64, want: 128},
		{size: 130, alignment: 64, want: 192},
	}
	for _, tt := range tests {
		if got := alignUp(tt.size, tt.alignment); got != tt.want {
			t.Errorf("alignUp(%d, %d) = %d, want %d", tt.size, tt.alignment, got, tt.want)
		}
	}
}

func TestRingCyclesEntries(t *testing.T) {
	alloc := &fakeAllocator{}
	ring, err := NewRing[Camera, *fakeBlock](alloc, 64, 3)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	if ring.Stride() != 64 || ring.Capacity() != 3 {
		t.Fatalf("stride %d capacity %d, want 64 and 3", ring.Stride(), ring.Capacity())
	}

	var offsets []int
	for i := 0; i < 4; i++ {
		h, err := ring.Next(Camera{Elapsed: uint32(i)})
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if h.Range != 16 {
			t.Errorf("range = %d, want 16", h.Range)
		}
		offsets = append(offsets, h.Offset)
	}

	want := []int{0, 64, 128, 0}
	for i := range want {
		if offsets[i] != want[i] {
			t.Errorf("entry %d offset = %d, want %d", i, offsets[i], want[i])
		}
	}

	// The fourth write wrapped onto entry 0.
	got := common.ByteOrder.Uint32(alloc.blocks[0].data[12:])
	if got != 3 {
		t.Errorf("entry 0 elapsed = %d, want 3", got)
	}
}

func TestRingEncodesInDeviceByteOrder(t *testing.T) {
	alloc := &fakeAllocator{}
	ring, err := NewRing[ViewProjection, *fakeBlock](alloc, 256, 1)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}

	vp := ViewProjection{View: mgl32.Translate3D(1, 2, 3), Proj: mgl32.Scale3D(4, 5, 6)}
	h, err := ring.Next(vp)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	want := &bytes.Buffer{}
	if err := binary.Write(want, common.ByteOrder, vp); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := h.Block.data[h.Offset : h.Offset+h.Range]
	if !bytes.Equal(got, want.Bytes()) {
		t.Errorf("ring bytes differ from the device upload encoding")
	}
}

func TestRingDistinctWithinCapacity(t *testing.T) {
	ring, err := NewRing[ViewProjection, *fakeBlock](&fakeAllocator{}, 256, 4)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}

	seen := map[int]bool{}
	for i := 0; i < ring.Capacity(); i++ {
		h, err := ring.Next(ViewProjection{View: mgl32.Ident4(), Proj: mgl32.Ident4()})
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if seen[h.Offset] {
			t.Fatalf("offset %d handed out twice within capacity", h.Offset)
		}
		seen[h.Offset] = true
	}
}

func TestRingReserveKeepsHandles(t *testing.T) {
	alloc := &fakeAllocator{}
	ring, err := NewRing[Light, *fakeBlock](alloc, 0, 2)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}

	first, _ := ring.Next(NewLight([3]float32{1, 1, 1}, [3]float32{}, 1))
	if err := ring.Reserve(5); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if ring.Capacity() != 5 || len(alloc.blocks) != 2 {
		t.Fatalf("capacity %d blocks %d, want 5 and 2", ring.Capacity(), len(alloc.blocks))
	}
	if err := ring.Reserve(3); err != nil || len(alloc.blocks) != 2 {
		t.Fatal("shrinking Reserve allocated")
	}

	if first.Block != alloc.blocks[0] {
		t.Error("existing handle moved to a new block")
	}

	blocks := map[int]bool{}
	for i := 0; i < 5; i++ {
		h, err := ring.Next(Light{})
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		blocks[h.Block.id] = true
	}
	if !blocks[1] {
		t.Error("grown entries never used")
	}

	ring.Destroy()
	for _, b := range alloc.blocks {
		if !b.destroyed {
			t.Errorf("block %d not destroyed", b.id)
		}
	}
}

func TestRingKindsDoNotShareStorage(t *testing.T) {
	alloc := &fakeAllocator{}
	vp, _ := NewRing[ViewProjection, *fakeBlock](alloc, 256, 2)
	light, _ := NewRing[Light, *fakeBlock](alloc, 256, 2)
	cam, _ := NewRing[Camera, *fakeBlock](alloc, 256, 2)

	a, _ := vp.Next(ViewProjection{})
	b, _ := light.Next(Light{})
	c, _ := cam.Next(Camera{})

	if a.Block == b.Block || b.Block == c.Block || a.Block == c.Block {
		t.Fatal("uniform kinds share a block")
	}
}

func TestRingAllocationFailure(t *testing.T) {
	_, err := NewRing[Camera, *fakeBlock](&fakeAllocator{fail: true}, 0, 1)
	if err == nil {
		t.Fatal("expected allocation error")
	}
}
