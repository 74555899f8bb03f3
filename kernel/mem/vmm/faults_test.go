package vmm

import (
	"bytes"
	"testing"

	"duskos/kernel"
	"duskos/kernel/irq"
	"duskos/kernel/kfmt"
)

func TestPageFaultHandlerIsFatal(t *testing.T) {
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	origReadCR2 := readCR2Fn
	readCR2Fn = func() uint64 { return 0xdeadbeef }
	defer func() { readCR2Fn = origReadCR2 }()

	var gotErr *kernel.Error
	origPanic := panicFn
	panicFn = func(e interface{}) { gotErr = e.(*kernel.Error) }
	defer func() { panicFn = origPanic }()

	pageFaultHandler(0, &irq.Frame{}, &irq.Regs{})

	if gotErr != errUnrecoverableFault {
		t.Fatalf("expected the page fault handler to report errUnrecoverableFault, got %v", gotErr)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected the page fault handler to log the faulting address")
	}
}

func TestGeneralProtectionFaultHandlerIsFatal(t *testing.T) {
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	var gotErr *kernel.Error
	origPanic := panicFn
	panicFn = func(e interface{}) { gotErr = e.(*kernel.Error) }
	defer func() { panicFn = origPanic }()

	generalProtectionFaultHandler(0, &irq.Frame{}, &irq.Regs{})

	if gotErr != errGPF {
		t.Fatalf("expected the GPF handler to report errGPF, got %v", gotErr)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected the GPF handler to log something")
	}
}
