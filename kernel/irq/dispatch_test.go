package irq

import (
	"bytes"
	"unsafe"

	"duskos/kernel"
	"duskos/kernel/kfmt"
	"testing"
)

func TestBreakpointHandlerIsNonFatal(t *testing.T) {
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	panicked := false
	origPanic := panicFn
	panicFn = func(interface{}) { panicked = true }
	defer func() { panicFn = origPanic }()

	breakpointHandler(&Frame{RIP: 1}, &Regs{RAX: 1})

	if panicked {
		t.Fatalf("breakpoint handler must not be fatal")
	}
	if buf.Len() == 0 {
		t.Fatalf("expected breakpoint handler to log something")
	}
}

func TestDoubleFaultHandlerIsFatal(t *testing.T) {
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	var gotErr *kernel.Error
	origPanic := panicFn
	panicFn = func(e interface{}) { gotErr = e.(*kernel.Error) }
	defer func() { panicFn = origPanic }()

	doubleFaultHandler(0, &Frame{}, &Regs{})

	if gotErr != errDoubleFault {
		t.Fatalf("expected the double-fault handler to report errDoubleFault, got %v", gotErr)
	}
}

func TestDoubleFaultStackTopIsStackRelative(t *testing.T) {
	base := uintptr(unsafe.Pointer(&doubleFaultStack[0]))
	want := base + DoubleFaultStackSize

	if got := DoubleFaultStackTop(); got != want {
		t.Fatalf("expected stack top %d (base %d + size %d), got %d", want, base, DoubleFaultStackSize, got)
	}
	if got := DoubleFaultStackTop(); got <= base {
		t.Fatalf("expected stack top above the stack's base address, got %d <= %d", got, base)
	}
}
