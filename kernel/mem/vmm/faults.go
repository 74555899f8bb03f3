package vmm

import (
	"duskos/kernel"
	"duskos/kernel/cpu"
	"duskos/kernel/irq"
	"duskos/kernel/kfmt"
)

var (
	// readCR2Fn is mocked by tests; reading CR2 from host code would be
	// meaningless outside a real page fault.
	readCR2Fn = cpu.ReadCR2

	// panicFn is mocked by tests so that exercising the fatal-fault paths
	// does not actually halt the test process.
	panicFn = kfmt.Panic

	errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "page fault"}
	errGPF                = &kernel.Error{Module: "vmm", Message: "general protection fault"}
)

// InstallFaultHandlers registers the page-fault and general-protection-fault
// handlers with the interrupt dispatcher. Both are fatal: this kernel has no
// demand paging or copy-on-write, so any fault past a mapped page is a bug.
func InstallFaultHandlers() {
	irq.HandleExceptionWithCode(irq.PageFaultException, pageFaultHandler)
	irq.HandleExceptionWithCode(irq.GPFException, generalProtectionFaultHandler)
}

func pageFaultHandler(errorCode uint64, frame *irq.Frame, regs *irq.Regs) {
	faultAddress := uintptr(readCR2Fn())

	kfmt.Printf("\npage fault while accessing address: 0x%16x\nreason: ", faultAddress)
	switch errorCode {
	case 0:
		kfmt.Printf("read from non-present page")
	case 1:
		kfmt.Printf("page protection violation (read)")
	case 2:
		kfmt.Printf("write to non-present page")
	case 3:
		kfmt.Printf("page protection violation (write)")
	case 4:
		kfmt.Printf("page-fault in user-mode")
	case 8:
		kfmt.Printf("page table has reserved bit set")
	case 16:
		kfmt.Printf("instruction fetch")
	default:
		kfmt.Printf("unknown")
	}

	kfmt.Printf("\n\nregisters:\n")
	regs.Print()
	frame.Print()

	panicFn(errUnrecoverableFault)
}

func generalProtectionFaultHandler(_ uint64, frame *irq.Frame, regs *irq.Regs) {
	kfmt.Printf("\ngeneral protection fault\nregisters:\n")
	regs.Print()
	frame.Print()

	panicFn(errGPF)
}
