// +build amd64

package vmm

const (
	// pageLevels indicates the number of page table levels supported by
	// the amd64 architecture (PML4, PDPT, PD, PT).
	pageLevels = 4

	// ptePhysPageMask extracts the physical frame address encoded in a
	// page table entry. Bits 12-51 hold the address on this architecture.
	ptePhysPageMask = uintptr(0x000ffffffffff000)
)

var (
	// pageLevelBits defines the number of virtual address bits consumed
	// by each page table level; 9 bits per level gives 512 entries per
	// table.
	pageLevelBits = [pageLevels]uint8{9, 9, 9, 9}

	// pageLevelShifts defines the shift required to extract each page
	// table level's index out of a virtual address.
	pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}
)

const (
	// FlagPresent is set when the page is resident in memory.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode code may access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set,
	// write-back caching when cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU the first time the page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when the page contents are modified.
	FlagDirty

	// FlagHugePage indicates a 2MiB page instead of a 4KiB one.
	FlagHugePage

	// FlagGlobal prevents the TLB from evicting this mapping when CR3 is
	// reloaded.
	FlagGlobal

	// FlagCopyOnWrite implements copy-on-write semantics. Mutually
	// exclusive with FlagRW; a write to a CoW page must fault.
	FlagCopyOnWrite = 1 << 9

	// FlagNoExecute marks a page as containing non-executable data.
	FlagNoExecute PageTableEntryFlag = 1 << 63
)
