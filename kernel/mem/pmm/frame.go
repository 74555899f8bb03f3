// Package pmm manages allocations of physical memory frames.
package pmm

import (
	"duskos/kernel/mem"
	"math"
)

// Frame describes a physical memory page index.
type Frame uintptr

// InvalidFrame is returned by frame allocators when they cannot satisfy an
// allocation request.
const InvalidFrame = Frame(math.MaxUint64)

// Valid returns true if this is not InvalidFrame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this frame.
func (f Frame) Address() uintptr {
	return uintptr(f << mem.PageShift)
}

// FrameFromAddress returns the Frame that contains physAddr. Addresses that
// are not page-aligned are rounded down to the frame that contains them.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame(physAddr >> mem.PageShift)
}
