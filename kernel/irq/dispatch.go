package irq

import (
	"unsafe"

	"duskos/kernel"
	"duskos/kernel/kfmt"
)

// panicFn is mocked by tests so that exercising the fatal double-fault path
// does not actually halt the test process.
var panicFn = kfmt.Panic

var errDoubleFault = &kernel.Error{Module: "irq", Message: "double fault"}

// doubleFaultStack is the dedicated stack the double-fault handler runs on
// (selected via DoubleFaultISTIndex). A fault that corrupts the interrupted
// thread's own stack pointer would otherwise re-fault immediately on entry
// to the handler, triggering a triple fault instead of a recoverable
// double-fault report. Sized per DoubleFaultStackSize.
var doubleFaultStack [DoubleFaultStackSize]byte

// DoubleFaultStackTop returns the address one past the end of the dedicated
// double-fault stack, which is where the boot-time TSS/IST setup must point
// IST index DoubleFaultISTIndex. Stacks grow down on amd64.
func DoubleFaultStackTop() uintptr {
	return uintptr(unsafe.Pointer(&doubleFaultStack[0])) + DoubleFaultStackSize
}

// InstallCoreHandlers registers the exception handlers that do not belong to
// any one subsystem: the breakpoint handler (non-fatal, dumps state) and the
// double-fault handler (always fatal, runs on its own IST stack). Page fault
// and general-protection-fault handlers are installed by kernel/mem/vmm
// (they need vmm-internal state); the keyboard IRQ handler is installed by
// kernel/keyboard. No handler for the timer IRQ is registered in this tree.
func InstallCoreHandlers() {
	HandleException(BreakpointException, breakpointHandler)
	HandleExceptionWithCode(DoubleFault, doubleFaultHandler)
}

func breakpointHandler(frame *Frame, regs *Regs) {
	kfmt.Printf("\nbreakpoint hit\n")
	frame.Print()
	regs.Print()
}

func doubleFaultHandler(_ uint64, frame *Frame, regs *Regs) {
	kfmt.Printf("\ndouble fault (fatal)\n")
	frame.Print()
	regs.Print()
	panicFn(errDoubleFault)
}
