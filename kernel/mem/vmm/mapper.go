package vmm

import (
	"duskos/kernel"
	"duskos/kernel/cpu"
	"duskos/kernel/mem"
	"duskos/kernel/mem/pmm"
	"duskos/kernel/sync"
)

// FrameAllocatorFn allocates a single physical frame, or fails with
// pmm.InvalidFrame (wrapped in an error) once the pool is exhausted.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

var (
	// physMemOffset is the virtual address at which physical address 0 is
	// mapped, per the firmware boot handoff. Every physical frame,
	// including page table nodes, is reachable at physMemOffset+addr.
	physMemOffset uintptr

	// frameAllocator supplies frames for new intermediate page tables and
	// for newly mapped pages. Installed once by Init.
	frameAllocator FrameAllocatorFn

	// mapperLock guards the mapper's package-level state. It is
	// always acquired together with an interrupt mask: an interrupt
	// handler that itself tried to map a page while this lock is held by
	// the code it interrupted would spin forever.
	mapperLock sync.Spinlock

	mapperInitialized bool

	// flushTLBEntryFn is mocked by tests; calling the real instruction
	// from test code (not running in ring 0) would fault.
	flushTLBEntryFn = cpu.FlushTLBEntry

	// withCriticalSectionFn is mocked by tests to bypass the real
	// interrupt-mask instructions, which have no meaning (and no backing
	// assembly to link against) outside of a ring-0 build.
	withCriticalSectionFn = sync.WithCriticalSection
)

// Init installs the physical-memory direct map offset and the frame
// allocator used to satisfy future mapping requests. It must be called
// exactly once, before any call to MapPage or Translate.
func Init(directMapOffset uintptr, allocFn FrameAllocatorFn) {
	withCriticalSectionFn(&mapperLock, func() {
		physMemOffset = directMapOffset
		frameAllocator = allocFn
		mapperInitialized = true
	})
}

// Initialized reports whether Init has run.
func Initialized() bool {
	return mapperInitialized
}

// AllocateFrame exposes the installed frame allocator directly, for callers
// like kernel/goruntime that need a raw physical frame without going
// through MapPage (e.g. to zero a page before first use).
func AllocateFrame() (pmm.Frame, *kernel.Error) {
	return frameAllocator()
}

// MapPage ensures that page is backed by some freshly allocated physical
// frame with the given flags (FlagPresent and FlagRW are always implied).
// MapPage is idempotent: calling it again for an already-mapped page
// succeeds without allocating a new frame or disturbing the existing
// mapping. Callers must not assume that a remap reuses the previous frame;
// MapPage never remaps an already-present page.
func MapPage(page Page, flags PageTableEntryFlag) *kernel.Error {
	var err *kernel.Error

	withCriticalSectionFn(&mapperLock, func() {
		walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
			if pteLevel == pageLevels-1 {
				if pte.HasFlags(FlagPresent) {
					return true
				}

				var frame pmm.Frame
				frame, err = frameAllocator()
				if err != nil {
					err = ErrOutOfFrames
					return false
				}

				*pte = 0
				pte.SetFrame(frame)
				pte.SetFlags(FlagPresent | FlagRW | flags)
				flushTLBEntryFn(page.Address())
				return true
			}

			if pte.HasFlags(FlagHugePage) {
				err = errHugePageUnsupported
				return false
			}

			if !pte.HasFlags(FlagPresent) {
				newTableFrame, allocErr := frameAllocator()
				if allocErr != nil {
					err = ErrIntermediateTableAllocationFailed
					return false
				}

				*pte = 0
				pte.SetFrame(newTableFrame)
				pte.SetFlags(FlagPresent | FlagRW)
				kernel.Memset(physMemOffset+newTableFrame.Address(), 0, uintptr(mem.PageSize))
			}

			return true
		})
	})

	return err
}

// Translate walks the active page table for virtAddr and returns the
// corresponding physical address. ok is false if virtAddr is not mapped.
// Translate halts via a kernel panic if it encounters a huge-page entry,
// since manual translation of large pages is not supported.
func Translate(virtAddr uintptr) (physAddr uintptr, ok bool) {
	var pageOffset = virtAddr & uintptr(mem.PageSize-1)

	withCriticalSectionFn(&mapperLock, func() {
		walk(virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
			if !pte.HasFlags(FlagPresent) {
				ok = false
				return false
			}

			if pte.HasFlags(FlagHugePage) {
				panic(errHugePageUnsupported)
			}

			if pteLevel == pageLevels-1 {
				physAddr = pte.Frame().Address() + pageOffset
				ok = true
			}

			return true
		})
	})

	return physAddr, ok
}

// Unmap clears the final-level mapping for page, if present. It does not
// reclaim the physical frame; frames are never reclaimed by this allocator.
func Unmap(page Page) *kernel.Error {
	var err *kernel.Error

	withCriticalSectionFn(&mapperLock, func() {
		walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
			if pteLevel == pageLevels-1 {
				pte.ClearFlags(FlagPresent)
				flushTLBEntryFn(page.Address())
				return true
			}

			if !pte.HasFlags(FlagPresent) {
				err = ErrInvalidMapping
				return false
			}

			if pte.HasFlags(FlagHugePage) {
				err = errHugePageUnsupported
				return false
			}

			return true
		})
	})

	return err
}
