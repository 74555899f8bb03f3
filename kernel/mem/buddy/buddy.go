// Package buddy implements a power-of-two buddy allocator over one or more
// virtual memory segments. It is the wholesale layer beneath the slab
// allocator: callers ask for 2^k-sized blocks, never individual objects.
//
// Free blocks are tracked with in-band linked-list nodes: the next pointer
// of a free block lives in the block's own first machine word, exactly like
// kernel.Memset/Memcopy treat raw addresses as overlaid Go slices elsewhere
// in this tree. A block is therefore never simultaneously on a free list and
// handed out to a caller; constructing a Go reference to the bytes of a live
// allocation would alias the caller's own view of that memory and must be
// avoided.
package buddy

import (
	"duskos/kernel"
	"duskos/kernel/mem"
	"unsafe"
)

const (
	// MinOrder is the smallest block order the allocator hands out,
	// i.e. blocks are never smaller than 2^MinOrder bytes (one page).
	MinOrder = 12

	// MaxOrder is the largest block order the allocator hands out.
	MaxOrder = 21

	// NumOrders is derived, not hard-coded: the source this design is
	// rebuilt from names this count inconsistently (6 in one place, 10
	// in another). MaxOrder-MinOrder+1 is the only value consistent with
	// both the free-list array and the documented order range.
	NumOrders = MaxOrder - MinOrder + 1
)

var (
	errRegionTooSmall = &kernel.Error{Module: "buddy", Message: "region smaller than the minimum block size"}
	errUnaligned      = &kernel.Error{Module: "buddy", Message: "base address not aligned to len"}
	errNotPowerOfTwo  = &kernel.Error{Module: "buddy", Message: "len is not a power of two"}
	errOutOfMemory    = &kernel.Error{Module: "buddy", Message: "no free block large enough to satisfy the request"}
)

// freeNode is overlaid onto the first bytes of a free block to link it into
// its order's free list. It is never a real Go value backed by its own
// memory; it is always reached via nodeAt.
type freeNode struct {
	next uintptr
}

func nodeAt(addr uintptr) *freeNode {
	return (*freeNode)(unsafe.Pointer(addr))
}

// segment records one originally-added, power-of-two-sized, self-aligned
// range. Buddy coalescing never crosses a segment boundary: a block's buddy
// that lies outside the segment it was carved from is not a coalescing
// candidate, full stop.
type segment struct {
	base, size uintptr
}

// Allocator is a power-of-two buddy allocator. The zero value holds no
// memory; give it memory with Init or AddMemory.
type Allocator struct {
	freeListHead [NumOrders]uintptr
	segments     []segment
}

func orderIndex(order uint8) int { return int(order) - MinOrder }

// orderFor returns the smallest order in [MinOrder, MaxOrder] whose block
// size is >= size.
func orderFor(size uintptr) uint8 {
	order := mem.Log2(mem.NextPowerOfTwo(size))
	if order < MinOrder {
		order = MinOrder
	}
	return order
}

// Init establishes the allocator's first segment. base must be page-aligned,
// len must be a power of two no smaller than one page, and base must be
// aligned to len so that the single resulting block is self-aligned (a
// requirement of the XOR-buddy scheme: the owning segment's base has to be
// aligned to at least the largest order ever carved from it, or coalescing
// could compute a buddy address outside the segment).
func (a *Allocator) Init(base, len uintptr) *kernel.Error {
	if len < (1 << MinOrder) {
		return errRegionTooSmall
	}
	if !mem.IsPowerOfTwo(len) {
		return errNotPowerOfTwo
	}
	if base%len != 0 {
		return errUnaligned
	}

	a.addSegment(base, len)
	return nil
}

// AddMemory adds an arbitrary contiguous range to the allocator. Unlike
// Init, base need not be aligned and len need not be a power of two: the
// range is carved into the largest power-of-two, self-aligned sub-blocks it
// can support, skipping leading bytes in page-size increments until
// alignment permits at least one block. Any prefix or trailing remainder
// thus skipped is permanently lost to the allocator; this is a documented
// consequence of the XOR-buddy scheme, not a bug.
func (a *Allocator) AddMemory(base, len uintptr) {
	cur := mem.RoundUp(base, 1<<MinOrder)
	if skipped := cur - base; skipped <= len {
		len -= skipped
	} else {
		len = 0
	}

	for len >= (1 << MinOrder) {
		order := largestAlignedOrder(cur, len)
		a.addSegment(cur, uintptr(1)<<order)
		cur += 1 << order
		len -= 1 << order
	}
}

// largestAlignedOrder returns the largest order in [MinOrder, MaxOrder] such
// that a 2^order block starting at addr both fits within avail bytes and is
// self-aligned.
func largestAlignedOrder(addr, avail uintptr) uint8 {
	order := uint8(MaxOrder)
	for order > MinOrder {
		size := uintptr(1) << order
		if size <= avail && addr%size == 0 {
			break
		}
		order--
	}
	return order
}

func (a *Allocator) addSegment(base, size uintptr) {
	a.segments = append(a.segments, segment{base: base, size: size})
	a.push(base, mem.Log2(size))
}

func (a *Allocator) push(addr uintptr, order uint8) {
	idx := orderIndex(order)
	nodeAt(addr).next = a.freeListHead[idx]
	a.freeListHead[idx] = addr
}

func (a *Allocator) pop(order uint8) (uintptr, bool) {
	idx := orderIndex(order)
	addr := a.freeListHead[idx]
	if addr == 0 {
		return 0, false
	}
	a.freeListHead[idx] = nodeAt(addr).next
	return addr, true
}

// unlink removes target from the free list at order, if present, and
// reports whether it was found. Used only by Deallocate's coalescing loop,
// which must confirm a candidate buddy is actually free (and not, say, still
// handed out to a caller) before merging with it.
func (a *Allocator) unlink(order uint8, target uintptr) bool {
	idx := orderIndex(order)
	addr := a.freeListHead[idx]
	if addr == 0 {
		return false
	}
	if addr == target {
		a.freeListHead[idx] = nodeAt(addr).next
		return true
	}
	prev := nodeAt(addr)
	for next := prev.next; next != 0; next = prev.next {
		if next == target {
			prev.next = nodeAt(next).next
			return true
		}
		prev = nodeAt(next)
	}
	return false
}

func (a *Allocator) segmentFor(addr uintptr) (segment, bool) {
	for _, s := range a.segments {
		if addr >= s.base && addr < s.base+s.size {
			return s, true
		}
	}
	return segment{}, false
}

// Allocate returns a block whose size is 2^k, where k is the smallest order
// in [MinOrder, MaxOrder] covering size, or reports failure if no free list
// at or above that order has a block to offer.
func (a *Allocator) Allocate(size uintptr) (uintptr, *kernel.Error) {
	target := orderFor(size)

	var (
		addr  uintptr
		found bool
		order uint8
	)
	for order = target; order <= MaxOrder; order++ {
		if addr, found = a.pop(order); found {
			break
		}
	}
	if !found {
		return 0, errOutOfMemory
	}

	// The popped block came from a free list at order >= target; split
	// it down to target, pushing each upper half back onto its own
	// free list and keeping the lower half (same address) each time.
	for order > target {
		order--
		a.push(addr+(1<<order), order)
	}

	return addr, nil
}

// Deallocate returns a previously-allocated block of the given size to the
// allocator, greedily coalescing it with its buddy for as long as the buddy
// is itself free and within the same segment.
func (a *Allocator) Deallocate(ptr, size uintptr) {
	order := orderFor(size)

	seg, ok := a.segmentFor(ptr)
	if !ok {
		// A block that doesn't belong to any known segment cannot be
		// a value this allocator ever handed out; nothing safe to do
		// but drop it rather than corrupt an unrelated free list.
		return
	}

	addr := ptr
	for order < MaxOrder {
		buddy := seg.base + (((addr - seg.base) ^ (uintptr(1) << order)))
		if buddy < seg.base || buddy+(1<<order) > seg.base+seg.size {
			break
		}
		if !a.unlink(order, buddy) {
			break
		}
		if buddy < addr {
			addr = buddy
		}
		order++
	}

	a.push(addr, order)
}
