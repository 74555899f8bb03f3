package slab

import (
	"duskos/kernel/mem"
	"testing"
	"unsafe"
)

var backingBufs [][]byte

func backing(t *testing.T, size uintptr) uintptr {
	t.Helper()
	// Init needs base aligned to the region's own power-of-two size.
	buf := make([]byte, 2*size)
	backingBufs = append(backingBufs, buf)
	base := uintptr(unsafe.Pointer(&buf[0]))
	return (base + size - 1) &^ (size - 1)
}

func newAllocator(t *testing.T, regionPages int) *Allocator {
	t.Helper()
	size := uintptr(regionPages) * uintptr(mem.PageSize)
	base := backing(t, size)

	var a Allocator
	if err := a.Init(base, size); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return &a
}

func TestSlabLocality(t *testing.T) {
	a := newAllocator(t, 16)

	for _, size := range objectSizes {
		p, err := a.Allocate(size, size)
		if err != nil {
			t.Fatalf("Allocate(%d): %v", size, err)
		}
		slabAddr := p &^ uintptr(mem.PageSize-1)
		hdr := headerAt(slabAddr)
		if uintptr(hdr.objectSize) != size {
			t.Fatalf("object of size %d landed in a slab sized for %d", size, hdr.objectSize)
		}
	}
}

func TestAlignmentPromotion(t *testing.T) {
	a := newAllocator(t, 16)

	cases := []struct{ size, align uintptr }{
		{size: 8, align: 64},
		{size: 200, align: 256},
		{size: 3, align: 8},
	}

	for _, c := range cases {
		p, err := a.Allocate(c.size, c.align)
		if err != nil {
			t.Fatalf("Allocate(%d,%d): %v", c.size, c.align, err)
		}
		eff := c.size
		if c.align > eff {
			eff = c.align
		}
		want := mem.NextPowerOfTwo(eff)
		if p%want != 0 {
			t.Fatalf("Allocate(%d,%d) = 0x%x, not a multiple of %d", c.size, c.align, p, want)
		}
	}
}

func TestLargeAllocationFallsThroughToBuddy(t *testing.T) {
	a := newAllocator(t, 16)

	p, err := a.Allocate(5000, 8)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if p%uintptr(mem.PageSize) != 0 {
		t.Fatalf("large allocation 0x%x is not page-aligned", p)
	}
	a.Deallocate(p, 5000, 8)
}

func TestNoLeakRoundTrip(t *testing.T) {
	a := newAllocator(t, 4)

	for i := 0; i < 4096; i++ {
		p, err := a.Allocate(32, 32)
		if err != nil {
			t.Fatalf("allocation %d failed: %v", i, err)
		}
		a.Deallocate(p, 32, 32)
	}
}

func TestSlabReusesFreedObjects(t *testing.T) {
	a := newAllocator(t, 4)

	p1, err := a.Allocate(64, 64)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	a.Deallocate(p1, 64, 64)

	p2, err := a.Allocate(64, 64)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if p2 != p1 {
		t.Fatalf("expected freed object to be reused, got 0x%x want 0x%x", p2, p1)
	}
}

func TestFullSlabMovesToPartialOnFree(t *testing.T) {
	a := newAllocator(t, 4)
	cache := &a.caches[0] // object size 8

	var objs []uintptr
	for {
		p, err := cache.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		objs = append(objs, p)
		if cache.partial == 0 {
			break // the slab just filled up and moved to full
		}
	}

	if cache.full == 0 {
		t.Fatal("expected a full slab after draining it")
	}

	cache.Deallocate(objs[0])

	if cache.partial == 0 {
		t.Fatal("expected the slab to move back to partial after a free")
	}
}
