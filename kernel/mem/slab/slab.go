// Package slab implements the retail layer of the kernel's two-tier
// allocator: fixed-size object caches built on top of buddy-sourced pages.
// Requests too large to fit any cache fall straight through to the buddy
// allocator, rounded up to a whole number of pages.
package slab

import (
	"duskos/kernel"
	"duskos/kernel/mem"
	"duskos/kernel/mem/buddy"
	"unsafe"
)

// objectSizes enumerates every cache this package maintains, smallest
// first. A request is routed to the smallest cache whose object size is
// still >= max(size, align).
var objectSizes = [...]uintptr{8, 16, 32, 64, 128, 256, 512, 1024, 2048}

const maxCachedSize = 2048

// slabHeader sits at the base of every slab page. A slab's address is
// always its own page base, which is also object_addr &^ (PageSize-1); this
// identity is what lets Deallocate locate a slab from a bare object pointer
// in constant time.
type slabHeader struct {
	next         uintptr
	freeListHead uintptr
	freeCount    uint32
	objectSize   uint32
}

func headerAt(slabAddr uintptr) *slabHeader {
	return (*slabHeader)(unsafe.Pointer(slabAddr))
}

type freeNode struct {
	next uintptr
}

func objNodeAt(addr uintptr) *freeNode {
	return (*freeNode)(unsafe.Pointer(addr))
}

// Cache manages every slab backing one fixed object size.
type Cache struct {
	objectSize uintptr
	partial    uintptr // head of the partial-slabs list (at least one free object)
	full       uintptr // head of the full-slabs list (no free object)
	buddy      *buddy.Allocator
}

func (c *Cache) firstObjectOffset() uintptr {
	return mem.RoundUp(unsafe.Sizeof(slabHeader{}), c.objectSize)
}

func (c *Cache) objectsPerSlab() uintptr {
	return (uintptr(mem.PageSize) - c.firstObjectOffset()) / c.objectSize
}

// newSlab pulls one page from the buddy allocator and tiles it into
// c.objectSize slots, each initialised as a free-list node pointing at the
// next. Returns the slab's address (== its page base).
func (c *Cache) newSlab() (uintptr, *kernel.Error) {
	page, err := c.buddy.Allocate(uintptr(mem.PageSize))
	if err != nil {
		return 0, err
	}

	hdr := headerAt(page)
	hdr.next = 0
	hdr.freeListHead = 0
	hdr.freeCount = 0
	hdr.objectSize = uint32(c.objectSize)

	offset := c.firstObjectOffset()
	n := c.objectsPerSlab()
	for i := uintptr(0); i < n; i++ {
		addr := page + offset + i*c.objectSize
		objNodeAt(addr).next = hdr.freeListHead
		hdr.freeListHead = addr
		hdr.freeCount++
	}

	return page, nil
}

// unlinkSlab removes slabAddr from the list whose head is *headPtr, using
// slabHeader.next as the link. Scans linearly: the number of slabs a single
// cache holds in practice is small relative to the object count they carry.
func unlinkSlab(headPtr *uintptr, slabAddr uintptr) {
	if *headPtr == slabAddr {
		*headPtr = headerAt(slabAddr).next
		return
	}
	prev := headerAt(*headPtr)
	for next := prev.next; next != 0; next = prev.next {
		if next == slabAddr {
			prev.next = headerAt(next).next
			return
		}
		prev = headerAt(next)
	}
}

func pushSlab(headPtr *uintptr, slabAddr uintptr) {
	headerAt(slabAddr).next = *headPtr
	*headPtr = slabAddr
}

// Allocate pops one object from the first partial slab, promoting it to
// full if that drains it; failing that, builds a new slab from the buddy
// allocator.
func (c *Cache) Allocate() (uintptr, *kernel.Error) {
	if c.partial == 0 {
		slabAddr, err := c.newSlab()
		if err != nil {
			return 0, err
		}
		pushSlab(&c.partial, slabAddr)
	}

	slabAddr := c.partial
	hdr := headerAt(slabAddr)

	obj := hdr.freeListHead
	hdr.freeListHead = objNodeAt(obj).next
	hdr.freeCount--

	if hdr.freeCount == 0 {
		unlinkSlab(&c.partial, slabAddr)
		pushSlab(&c.full, slabAddr)
	}

	return obj, nil
}

// Deallocate returns ptr to its owning slab's free list, moving the slab
// from full back to partial if it had no free objects before this call.
func (c *Cache) Deallocate(ptr uintptr) {
	slabAddr := ptr &^ uintptr(mem.PageSize-1)
	hdr := headerAt(slabAddr)

	wasFull := hdr.freeCount == 0

	objNodeAt(ptr).next = hdr.freeListHead
	hdr.freeListHead = ptr
	hdr.freeCount++

	if wasFull {
		unlinkSlab(&c.full, slabAddr)
		pushSlab(&c.partial, slabAddr)
	}
}

// Allocator dispatches allocation requests between the fixed-size slab
// caches and the underlying buddy allocator for anything too large to cache.
type Allocator struct {
	buddy  buddy.Allocator
	caches [len(objectSizes)]Cache
}

// Init forwards to the embedded buddy allocator and wires every cache to it.
func (a *Allocator) Init(base, len uintptr) *kernel.Error {
	if err := a.buddy.Init(base, len); err != nil {
		return err
	}
	for i, size := range objectSizes {
		a.caches[i] = Cache{objectSize: size, buddy: &a.buddy}
	}
	return nil
}

// AddMemory forwards to the embedded buddy allocator.
func (a *Allocator) AddMemory(base, len uintptr) {
	a.buddy.AddMemory(base, len)
}

// cacheFor returns the smallest cache whose object size is >= eff, or nil if
// eff exceeds the largest cached size.
func (a *Allocator) cacheFor(eff uintptr) *Cache {
	for i, size := range objectSizes {
		if size >= eff {
			return &a.caches[i]
		}
	}
	return nil
}

// Allocate returns a block sized to satisfy both size and align. Requests
// with max(size, align) <= 2048 are routed to the smallest matching cache;
// larger requests are rounded up to a whole number of pages and satisfied
// directly by the buddy allocator, which returns power-of-two, and
// therefore suitably aligned, blocks.
func (a *Allocator) Allocate(size, align uintptr) (uintptr, *kernel.Error) {
	eff := size
	if align > eff {
		eff = align
	}

	if eff <= maxCachedSize {
		c := a.cacheFor(eff)
		return c.Allocate()
	}

	block := mem.RoundUp(eff, uintptr(mem.PageSize))
	return a.buddy.Allocate(block)
}

// Deallocate is the symmetric counterpart of Allocate; size and align must
// match the values passed to the original Allocate call.
func (a *Allocator) Deallocate(ptr, size, align uintptr) {
	eff := size
	if align > eff {
		eff = align
	}

	if eff <= maxCachedSize {
		a.cacheFor(eff).Deallocate(ptr)
		return
	}

	block := mem.RoundUp(eff, uintptr(mem.PageSize))
	a.buddy.Deallocate(ptr, block)
}
