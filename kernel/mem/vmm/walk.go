package vmm

import (
	"duskos/kernel/cpu"
	"duskos/kernel/mem"
	"duskos/kernel/mem/pmm"
	"unsafe"
)

var (
	// ptePtrFn returns a pointer to the page table entry living at
	// entryAddr. It is a mockable seam; this package's tests back page
	// tables with plain Go slices by pointing physMemOffset at them and
	// leave ptePtrFn as it is.
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(entryAddr)
	}

	// activePDTFrameFn returns the physical frame backing the currently
	// active top-level page table (PML4). Mocked by tests.
	activePDTFrameFn = func() pmm.Frame {
		return pmm.Frame(cpu.ActivePDT() >> mem.PageShift)
	}
)

// pageTableWalker is invoked by walk with the page table entry that
// corresponds to each level for a given virtual address. Returning false
// aborts the walk.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for virtAddr, calling walkFn once per page
// table level. Every page table node is reached through the physical-memory
// direct map installed at boot (physMemOffset + physical address), so no
// temporary or recursive self-mapping is required to read or write a page
// table node that is not currently active.
func walk(virtAddr uintptr, walkFn pageTableWalker) {
	tableFrame := activePDTFrameFn()

	for level := uint8(0); level < pageLevels; level++ {
		entryIndex := (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		tableVirtAddr := physMemOffset + tableFrame.Address()
		entryAddr := tableVirtAddr + (entryIndex << mem.PointerShift)

		pte := (*pageTableEntry)(ptePtrFn(entryAddr))
		if !walkFn(level, pte) {
			return
		}

		if level < pageLevels-1 {
			tableFrame = pte.Frame()
		}
	}
}
