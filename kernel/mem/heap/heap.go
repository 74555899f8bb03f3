// Package heap is the global allocator shim: the single entry point the
// rest of the kernel calls to get dynamically-sized, dynamically-aligned
// memory. It wraps the slab/buddy pair (kernel/mem/slab), serialises access
// with a spinlock held across an interrupt-masked critical section, and
// grows the heap's backing pages on demand when the slab/buddy path is
// exhausted.
//
// Go has no hook equivalent to Rust's global allocator trait, so unlike the
// design this package is modeled on, heap.Allocate/heap.Deallocate are an
// ordinary Go API that kernel code calls explicitly wherever the original
// would have written Box::new/drop. The bootstrap allocator that lets
// ordinary `make`/`new`/maps work (kernel/goruntime) sits above this and is
// unrelated to it: this package is the kernel's own explicit low-level
// allocation service (frame-backed raw byte ranges), not a replacement for
// runtime.mallocgc.
package heap

import (
	"duskos/kernel"
	"duskos/kernel/mem"
	"duskos/kernel/mem/slab"
	"duskos/kernel/mem/vmm"
	"duskos/kernel/sync"
)

const (
	// HeapStart is the fixed virtual base of the kernel heap.
	HeapStart = uintptr(0x0000444444420000)

	// HeapSize is the heap's initial size, before any growth.
	HeapSize = uintptr(128 * 1024)
)

func init() {
	if HeapStart%HeapSize != 0 {
		panic("heap: HeapStart is not aligned to HeapSize")
	}
	if !mem.IsPowerOfTwo(HeapSize) {
		panic("heap: HeapSize is not a power of two")
	}
	if HeapSize < uintptr(mem.PageSize) {
		panic("heap: HeapSize is smaller than one page")
	}
}

var (
	errOutOfMemory = &kernel.Error{Module: "heap", Message: "allocation failed and heap growth could not satisfy it"}

	// mapPageFn and pageFromAddrFn are mockable seams standing in for the
	// page mapper, exactly like the rest of this tree uses package-level
	// function variables instead of interfaces at hardware/subsystem
	// boundaries.
	mapPageFn      = vmm.MapPage
	pageFromAddrFn = vmm.PageFromAddress

	heapLock sync.Spinlock

	allocator   slab.Allocator
	heapEnd     uintptr
	initialized bool
	growthBytes uintptr

	// heapBase/heapSize default to the real constants but are overridden
	// in tests, which cannot back the fixed kernel virtual address
	// HeapStart with real memory the way a mapped page would be.
	heapBase = HeapStart
	heapSize = HeapSize
)

// InitHeap maps every page in [HeapStart, HeapStart+HeapSize) through the
// page mapper, then hands that whole range to the slab/buddy allocator as
// its first segment. Must run exactly once, after vmm.Init.
func InitHeap() *kernel.Error {
	for addr := heapBase; addr < heapBase+heapSize; addr += uintptr(mem.PageSize) {
		if err := mapPageFn(pageFromAddrFn(addr), 0); err != nil {
			return err
		}
	}

	if err := allocator.Init(heapBase, heapSize); err != nil {
		return err
	}

	heapEnd = heapBase + heapSize
	initialized = true
	return nil
}

// Initialized reports whether InitHeap has run.
func Initialized() bool {
	return initialized
}

// GrowthBytes returns the total number of bytes added to the heap by the
// growth protocol since boot, beyond the initial HeapSize. Exposed for
// tests asserting that a workload never grows the heap.
func GrowthBytes() uintptr {
	return growthBytes
}

// Allocate returns size bytes aligned to align, growing the heap if the
// slab/buddy path cannot satisfy the request outright.
func Allocate(size, align uintptr) (uintptr, *kernel.Error) {
	var (
		addr uintptr
		err  *kernel.Error
	)

	sync.WithCriticalSection(&heapLock, func() {
		addr, err = allocator.Allocate(size, align)
		if err == nil {
			return
		}

		addr, err = growAndRetry(size, align)
	})

	return addr, err
}

// growAndRetry implements the growth protocol (§4.5): round the request up
// to a page-aligned power of two, map that many fresh pages past the
// current heap end, hand them to the allocator, then retry once. Must be
// called with heapLock already held.
func growAndRetry(size, align uintptr) (uintptr, *kernel.Error) {
	eff := size
	if align > eff {
		eff = align
	}
	block := mem.NextPowerOfTwo(eff)
	if block < uintptr(mem.PageSize) {
		block = uintptr(mem.PageSize)
	}

	growBase := heapEnd
	for addr := growBase; addr < growBase+block; addr += uintptr(mem.PageSize) {
		if err := mapPageFn(pageFromAddrFn(addr), 0); err != nil {
			// Abort: the pages mapped so far in this failed growth
			// attempt are simply never handed to the allocator, so
			// they stay permanently unreachable rather than risk
			// adding a partially-mapped range to the free lists.
			return 0, err
		}
	}

	allocator.AddMemory(growBase, block)
	heapEnd = growBase + block
	growthBytes += block

	addr, err := allocator.Allocate(size, align)
	if err != nil {
		return 0, errOutOfMemory
	}
	return addr, nil
}

// Deallocate returns a previously-allocated block. size and align must
// match the values passed to the Allocate call that produced ptr.
func Deallocate(ptr, size, align uintptr) {
	sync.WithCriticalSection(&heapLock, func() {
		allocator.Deallocate(ptr, size, align)
	})
}
