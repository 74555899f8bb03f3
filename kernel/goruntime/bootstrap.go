// Package goruntime contains code for bootstrapping Go runtime features such
// as the memory allocator. The go:linkname-redirected hooks that stand in
// for runtime.alginit/modulesinit/typelinksinit/itabsinit/mallocinit/
// procresize live in bootstrap_go18+.go, split out because the original
// project once supported go1.7 as well; this kernel's go.mod only targets
// modern Go, so only that file's build tag is ever satisfied.
package goruntime

import (
	"duskos/kernel"
	"duskos/kernel/mem"
	"duskos/kernel/mem/vmm"
	"unsafe"
)

var (
	mapPageFn            = vmm.MapPage
	earlyReserveRegionFn = vmm.EarlyReserveRegion
	memsetFn             = kernel.Memset
	mallocInitFn         = mallocInit
	algInitFn            = algInit
	modulesInitFn        = modulesInit
	typeLinksInitFn      = typeLinksInit
	itabsInitFn          = itabsInit
	procResizeFn         = procResize

	// A seed for the pseudo-random number generator used by getRandomData
	prngSeed = 0xdeadc0de
)

// sysReserve reserves address space without allocating any memory or
// establishing any page mappings.
//
// This function replaces runtime.sysReserve and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysReserve
//go:nosplit
func sysReserve(_ unsafe.Pointer, size uintptr, reserved *bool) unsafe.Pointer {
	regionSize := mem.RoundUp(size, uintptr(mem.PageSize))
	regionStartAddr, err := earlyReserveRegionFn(mem.Size(regionSize))
	if err != nil {
		panic(err)
	}

	*reserved = true
	return unsafe.Pointer(regionStartAddr)
}

// sysMap establishes page mappings for a memory region that was previously
// reserved via sysReserve. The design this is modeled on used a shared
// zeroed frame with copy-on-write semantics here, since it had to support
// forking a second address space cheaply; this kernel never forks an
// address space (spec Non-goal: no multi-address-space isolation), so
// sysMap simply maps a freshly allocated frame into every page of the
// range up front instead.
//
// This function replaces runtime.sysMap and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysMap
//go:nosplit
func sysMap(virtAddr unsafe.Pointer, size uintptr, reserved bool, sysStat *uint64) unsafe.Pointer {
	if !reserved {
		panic("sysMap should only be called with reserved=true")
	}

	// We trust the allocator to call sysMap with an address inside a reserved region.
	regionStartAddr := mem.RoundUp(uintptr(virtAddr), uintptr(mem.PageSize))
	regionSize := mem.RoundUp(size, uintptr(mem.PageSize))
	pageCount := regionSize >> mem.PageShift

	for page := vmm.PageFromAddress(regionStartAddr); pageCount > 0; pageCount, page = pageCount-1, page+1 {
		if err := mapPageFn(page, vmm.FlagNoExecute); err != nil {
			return unsafe.Pointer(uintptr(0))
		}
	}

	mSysStatInc(sysStat, regionSize)
	return unsafe.Pointer(regionStartAddr)
}

// sysAlloc reserves a fresh virtual region and maps it page by page,
// returning the pointer to the region's start.
//
// This function replaces runtime.sysAlloc and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysAlloc
//go:nosplit
func sysAlloc(size uintptr, sysStat *uint64) unsafe.Pointer {
	regionSize := mem.RoundUp(size, uintptr(mem.PageSize))
	regionStartAddr, err := earlyReserveRegionFn(mem.Size(regionSize))
	if err != nil {
		return unsafe.Pointer(uintptr(0))
	}

	pageCount := regionSize >> mem.PageShift
	for page := vmm.PageFromAddress(regionStartAddr); pageCount > 0; pageCount, page = pageCount-1, page+1 {
		if err := mapPageFn(page, vmm.FlagNoExecute); err != nil {
			return unsafe.Pointer(uintptr(0))
		}
		memsetFn(page.Address(), 0, uintptr(mem.PageSize))
	}

	mSysStatInc(sysStat, regionSize)
	return unsafe.Pointer(regionStartAddr)
}

// nanotime returns a monotonically increasing clock value. This is a dummy
// implementation and will be replaced when the timekeeper package is
// implemented.
//
// This function replaces runtime.nanotime and is invoked by the Go allocator
// when a span allocation is performed.
//
//go:redirect-from runtime.nanotime
//go:nosplit
func nanotime() uint64 {
	// Use a dummy loop to prevent the compiler from inlining this function.
	for i := 0; i < 100; i++ {
	}
	return 1
}

// getRandomData populates the given slice with random data. The implementation
// is the runtime package reads a random stream from /dev/random but since this
// is not available, we use a prng instead.
//
//go:redirect-from runtime.getRandomData
func getRandomData(r []byte) {
	for i := 0; i < len(r); i++ {
		prngSeed = (prngSeed * 58321) + 11113
		r[i] = byte((prngSeed >> 16) & 255)
	}
}

// Init enables support for various Go runtime features. After a call to init
// the following runtime features become available for use:
//  - heap memory allocation (new, make e.t.c)
//  - map primitives
//  - interfaces
func Init() *kernel.Error {
	mallocInitFn()
	algInitFn()       // setup hash implementation for map keys
	modulesInitFn()   // provides activeModules
	typeLinksInitFn() // uses maps, activeModules
	itabsInitFn()     // uses activeModules
	procResizeFn(1)   // a single logical processor; this kernel never schedules a second one

	return nil
}

func init() {
	// Dummy calls so the compiler does not optimize away the functions in
	// this file.
	var (
		reserved bool
		stat     uint64
		zeroPtr  = unsafe.Pointer(uintptr(0))
	)

	sysReserve(zeroPtr, 0, &reserved)
	sysMap(zeroPtr, 0, reserved, &stat)
	sysAlloc(0, &stat)
	getRandomData(nil)
	stat = nanotime()
}
