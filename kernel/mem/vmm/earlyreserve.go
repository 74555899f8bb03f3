package vmm

import (
	"duskos/kernel"
	"duskos/kernel/mem"
	"duskos/kernel/sync"
)

// earlyReserveBase is the virtual region kernel/goruntime's bootstrap hooks
// (sysReserve/sysAlloc) draw address space from before the slab/buddy heap
// exists. It is fixed well above heap.HeapStart so the two regions can
// never collide.
const earlyReserveBase = uintptr(0x0000555500000000)

var (
	earlyReserveLock sync.Spinlock
	earlyReserveNext = earlyReserveBase
)

var errEarlyReserveExhausted = &kernel.Error{Module: "vmm", Message: "early reserve region exhausted"}

// EarlyReserveRegion carves size bytes (rounded up to a whole number of
// pages) out of the early-reserve virtual range and returns its base. Unlike
// MapPage, this only reserves address space: no physical frame is attached
// until a later MapPage call, mirroring how the Go runtime's sysReserve is
// meant to behave (reserve now, map lazily on first touch).
func EarlyReserveRegion(size mem.Size) (uintptr, *kernel.Error) {
	byteSize := mem.RoundUp(uintptr(size), uintptr(mem.PageSize))

	var base uintptr
	withCriticalSectionFn(&earlyReserveLock, func() {
		base = earlyReserveNext
		earlyReserveNext += byteSize
	})
	if base < earlyReserveBase {
		return 0, errEarlyReserveExhausted // wrapped a 64-bit address space; unreachable in practice
	}
	return base, nil
}
