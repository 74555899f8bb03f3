// Package frameallocator hands out physical memory frames drawn from the
// firmware-reported memory map. Frames are never reclaimed: this allocator
// exists to bootstrap the kernel's own buddy+slab heap, after which point
// individual frame reuse is no longer this package's concern.
package frameallocator

import (
	"duskos/kernel"
	"duskos/kernel/hal/multiboot"
	"duskos/kernel/kfmt"
	"duskos/kernel/mem"
	"duskos/kernel/mem/pmm"
)

var errOutOfMemory = &kernel.Error{Module: "frameallocator", Message: "out of memory"}

// Allocator vends frames out of the usable regions of the system memory
// map. It materialises the lazy sequence of page-aligned physical addresses
// inside each usable region and advances a cursor on every call; the
// ordering of regions and the within-region stride are both deterministic
// and monotonically increasing, by design. Re-deriving the cursor position
// from scratch on each call costs O(next); this is documented, not
// accidental (see Allocate's doc comment).
type Allocator struct {
	// allocCount tracks the total number of frames handed out so far.
	allocCount uint64

	// lastAllocFrame is the most recently allocated frame.
	lastAllocFrame pmm.Frame

	// The kernel image footprint is never handed out as a frame.
	kernelStartAddr, kernelEndAddr   uintptr
	kernelStartFrame, kernelEndFrame pmm.Frame
}

// New creates an Allocator that excludes the frames occupied by the kernel
// image, which spans [kernelStart, kernelEnd) in physical memory.
func New(kernelStart, kernelEnd uintptr) *Allocator {
	a := &Allocator{}
	pageSizeMinus1 := uintptr(mem.PageSize - 1)
	a.kernelStartAddr = kernelStart
	a.kernelEndAddr = kernelEnd
	a.kernelStartFrame = pmm.Frame((kernelStart &^ pageSizeMinus1) >> mem.PageShift)
	a.kernelEndFrame = pmm.Frame(((kernelEnd+pageSizeMinus1)&^pageSizeMinus1)>>mem.PageShift) - 1
	return a
}

// Allocate returns the next unused usable frame, or errOutOfMemory once the
// memory map is exhausted. Complexity is O(next) per call: each invocation
// re-walks the memory map from the start to find where lastAllocFrame sits.
// An implementer may cache the enumeration state for amortised O(1) without
// changing observable behaviour, provided the enumeration order described
// above is preserved; this implementation intentionally favours simplicity
// over that optimisation.
func (a *Allocator) Allocate() (pmm.Frame, *kernel.Error) {
	err := errOutOfMemory

	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable || region.Length < uint64(mem.PageSize) {
			return true
		}

		pageSizeMinus1 := uint64(mem.PageSize - 1)
		regionStartFrame := pmm.Frame(((region.PhysAddress + pageSizeMinus1) &^ pageSizeMinus1) >> mem.PageShift)
		regionEndFrame := pmm.Frame(((region.PhysAddress+region.Length)&^pageSizeMinus1)>>mem.PageShift) - 1

		if a.allocCount > 0 && a.lastAllocFrame >= regionEndFrame {
			return true
		}

		switch {
		case ((a.allocCount == 0 || a.lastAllocFrame <= regionStartFrame) && a.kernelStartFrame == regionStartFrame) ||
			(a.allocCount > 0 && a.lastAllocFrame <= regionEndFrame && a.lastAllocFrame+1 == a.kernelStartFrame):
			// The next candidate frame would land inside the kernel
			// image; jump past it.
			a.lastAllocFrame = a.kernelEndFrame + 1
		case a.allocCount == 0 || a.lastAllocFrame < regionStartFrame:
			a.lastAllocFrame = regionStartFrame
		default:
			a.lastAllocFrame++
		}

		if a.lastAllocFrame > regionEndFrame {
			return true
		}

		err = nil
		return false
	})

	if err != nil {
		return pmm.InvalidFrame, err
	}

	a.allocCount++
	return a.lastAllocFrame, nil
}

// PrintMemoryMap logs the system memory map and the kernel's footprint
// within it via kfmt, for boot-time diagnostics.
func (a *Allocator) PrintMemoryMap() {
	kfmt.Printf("[frameallocator] system memory map:\n")
	var totalFree mem.Size
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())
		if region.Type == multiboot.MemAvailable {
			totalFree += mem.Size(region.Length)
		}
		return true
	})
	kfmt.Printf("[frameallocator] available memory: %dKb\n", uint64(totalFree/mem.Kb))
	kfmt.Printf("[frameallocator] kernel loaded at 0x%x - 0x%x\n", a.kernelStartAddr, a.kernelEndAddr)
	kfmt.Printf("[frameallocator] size: %d bytes, reserved pages: %d\n",
		uint64(a.kernelEndAddr-a.kernelStartAddr),
		uint64(a.kernelEndFrame-a.kernelStartFrame+1),
	)
}
