package frameallocator

import (
	"duskos/kernel/hal/multiboot"
	"encoding/binary"
	"testing"
	"unsafe"
)

// encodeMemoryMap builds a minimal Multiboot2 info block containing a single
// memory map tag with the given regions, terminated by the mandatory end tag.
func encodeMemoryMap(regions []multiboot.MemoryMapEntry) []byte {
	const entrySize = 24
	mmapTagSize := 16 + entrySize*len(regions)
	paddedMmapSize := (mmapTagSize + 7) &^ 7
	total := 8 + paddedMmapSize + 8

	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))

	off := 8
	binary.LittleEndian.PutUint32(buf[off:off+4], 6) // tagMemoryMap
	binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(mmapTagSize))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:off+4], entrySize)
	off += 8

	for _, r := range regions {
		binary.LittleEndian.PutUint64(buf[off:off+8], r.PhysAddress)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], r.Length)
		binary.LittleEndian.PutUint32(buf[off+16:off+20], uint32(r.Type))
		off += entrySize
	}

	off = 8 + paddedMmapSize
	binary.LittleEndian.PutUint32(buf[off+4:off+8], 8)

	return buf
}

// This memory map mirrors a typical QEMU boot layout used throughout these
// tests: a low region below the 1MB mark, a small reserved gap, and a large
// high region.
//
//	[     0 -   9fc00] length:    654336, available
//	[ 9fc00 -  a0000] length:      1024, reserved
//	[100000 - 7fe0000] length: 133038080, available
var testMemoryMap = []multiboot.MemoryMapEntry{
	{PhysAddress: 0, Length: 0x9fc00, Type: multiboot.MemAvailable},
	{PhysAddress: 0x9fc00, Length: 0x400, Type: multiboot.MemReserved},
	{PhysAddress: 0x100000, Length: 0x7ee0000, Type: multiboot.MemAvailable},
}

func TestAllocator(t *testing.T) {
	buf := encodeMemoryMap(testMemoryMap)
	multiboot.SetInfoPtr(uintptr(unsafe.Pointer(&buf[0])))
	defer multiboot.SetInfoPtr(0)

	specs := []struct {
		kernelStart, kernelEnd uintptr
		expAllocCount          uint64
	}{
		{
			// kernel sits inside the reserved gap; nothing is excluded
			0xa0000, 0xa0000,
			159 + 32480,
		},
		{
			// kernel occupies the first 2.5 pages of region 1
			0x0, 0x2800,
			159 - 3 + 32480,
		},
		{
			// kernel occupies the last 2.5 pages of region 1
			0x9c800, 0x9f000,
			159 - 3 + 32480,
		},
		{
			// kernel (after rounding) consumes all of region 1
			0x123, 0x9fc00,
			32480,
		},
	}

	for specIndex, spec := range specs {
		alloc := New(spec.kernelStart, spec.kernelEnd)

		for {
			frame, err := alloc.Allocate()
			if err != nil {
				if err == errOutOfMemory {
					break
				}
				t.Fatalf("[spec %d] unexpected error: %v", specIndex, err)
			}

			if frame != alloc.lastAllocFrame {
				t.Errorf("[spec %d] expected allocated frame %d; got %d", specIndex, alloc.lastAllocFrame, frame)
			}
			if !frame.Valid() {
				t.Errorf("[spec %d] expected frame to be valid", specIndex)
			}
		}

		if alloc.allocCount != spec.expAllocCount {
			t.Errorf("[spec %d] expected %d allocations; got %d", specIndex, spec.expAllocCount, alloc.allocCount)
		}
	}
}

func TestAllocatorOutOfMemory(t *testing.T) {
	regions := []multiboot.MemoryMapEntry{
		{PhysAddress: 0, Length: uint64(4096), Type: multiboot.MemAvailable},
	}
	buf := encodeMemoryMap(regions)
	multiboot.SetInfoPtr(uintptr(unsafe.Pointer(&buf[0])))
	defer multiboot.SetInfoPtr(0)

	alloc := New(0, 0)

	if _, err := alloc.Allocate(); err != nil {
		t.Fatalf("expected first allocation to succeed; got %v", err)
	}

	if _, err := alloc.Allocate(); err != errOutOfMemory {
		t.Fatalf("expected errOutOfMemory; got %v", err)
	}
}
