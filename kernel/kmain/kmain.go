// Package kmain is the kernel's single entry point after the assembly
// trampoline hands off to Go (see the teacher's boot.go/rt0 convention):
// it brings up the physical-frame allocator, the page mapper, the Go
// runtime bootstrap, the dynamic heap, the interrupt dispatcher, and
// finally spawns the cooperative task executor that runs forever.
package kmain

import (
	"duskos/kernel"
	"duskos/kernel/driver/debugexit"
	"duskos/kernel/driver/serial"
	"duskos/kernel/goruntime"
	"duskos/kernel/hal/multiboot"
	"duskos/kernel/irq"
	"duskos/kernel/keyboard"
	"duskos/kernel/kfmt"
	"duskos/kernel/mem/heap"
	"duskos/kernel/mem/pmm/frameallocator"
	"duskos/kernel/mem/vmm"
	"duskos/kernel/task"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// physMemOffset is where physical address 0 is mapped in kernel virtual
// address space, per the firmware boot handoff (spec §6). The real value is
// supplied by the bootloader; this package-level var exists so host tests
// can exercise the wiring below without a real direct map.
var physMemOffset uintptr = 0xFFFF800000000000

// masterPICOffset/slavePICOffset are the remapped vector bases for the 8259
// pair; 32 is the first vector free of CPU exceptions (0-31).
const (
	masterPICOffset = 32
	slavePICOffset  = 40
)

// Kmain is the only Go symbol the assembly trampoline calls. It is not
// expected to return: on success it falls into the task executor's Run
// loop, which only returns once every spawned task has completed (never,
// in the real boot configuration, since the keyboard consumer task is
// spawned to run forever).
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	kfmt.SetPanicHook(func(*kernel.Error) { debugexit.Exit(debugexit.Failure) })

	// The text-mode screen driver is outside this subsystem's scope
	// (spec §1); kfmt's ring-buffered early console is the only output
	// surface this package depends on directly. A working serial port is
	// nice-to-have diagnostics, not a boot precondition.
	if err := serial.COM1.DriverInit(); err != nil {
		kfmt.Printf("serial: %s (diagnostics will only reach the early console)\n", err.Error())
	}

	frames := frameallocator.New(kernelStart, kernelEnd)
	vmm.Init(physMemOffset, frames.Allocate)
	vmm.InstallFaultHandlers()

	if err := goruntime.Init(); err != nil {
		kfmt.Panic(err)
	}

	if err := heap.InitHeap(); err != nil {
		kfmt.Panic(err)
	}

	irq.InstallCoreHandlers()
	keyboard.InstallHandler(keyboard.Init())
	irq.RemapPIC(masterPICOffset, slavePICOffset, 0, 1) // keep the timer and keyboard lines unmasked

	runForever()

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating this call as dead code and eliminating it.
	kfmt.Panic(errKmainReturned)
}

// runForever builds the executor that owns the rest of the kernel's
// lifetime: a single task that consumes the scancode stream indefinitely.
// It never completes, so Run never returns under normal operation; the
// executor still idles (masked-interrupt halt) between scancodes rather
// than busy-spinning.
func runForever() {
	e := task.NewExecutor(64)
	e.Spawn(keyboard.NewEcho(keyboard.Get()))
	e.Run()
}
