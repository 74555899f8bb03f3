package irq

// ExceptionNum identifies an interrupt vector that can be passed to
// HandleException or HandleExceptionWithCode. CPU exceptions occupy vectors
// 0-31; hardware IRQs are remapped by the PIC (see pic.go) to vectors 32-47
// and are registered through the same vector-numbered API.
type ExceptionNum uint8

const (
	// BreakpointException is raised by the INT3 instruction. Non-fatal.
	BreakpointException = ExceptionNum(3)

	// DoubleFault occurs when an exception is unhandled or when an
	// exception occurs while the CPU is trying to call an exception
	// handler. Always fatal; serviced on a dedicated IST stack.
	DoubleFault = ExceptionNum(8)

	// GPFException is raised when a general protection fault occurs.
	GPFException = ExceptionNum(13)

	// PageFaultException is raised when a page table entry is not
	// present or a privilege/RW protection check fails.
	PageFaultException = ExceptionNum(14)

	// picVectorOffset is the vector number IRQ 0 is remapped to.
	picVectorOffset = ExceptionNum(32)

	// TimerIRQ is the remapped vector for the PIT timer (IRQ 0).
	TimerIRQ = picVectorOffset + 0

	// KeyboardIRQ is the remapped vector for the PS/2 keyboard (IRQ 1).
	KeyboardIRQ = picVectorOffset + 1

	// DoubleFaultISTIndex selects the interrupt-stack-table entry (1-7,
	// 0 means "use the current stack") that the double-fault handler
	// runs on. A dedicated stack lets the handler survive a fault caused
	// by stack-pointer corruption in the code it interrupted.
	DoubleFaultISTIndex = 1

	// DoubleFaultStackSize is the size of the dedicated double-fault
	// stack.
	DoubleFaultStackSize = 20 * 1024
)

// ExceptionHandler handles an exception or IRQ that does not push an error
// code onto the stack. Modifications to Frame/Regs are propagated back to
// the interrupted context if the handler returns.
type ExceptionHandler func(*Frame, *Regs)

// ExceptionHandlerWithCode handles an exception that pushes an error code
// onto the stack (GPF, page fault, double fault).
type ExceptionHandlerWithCode func(uint64, *Frame, *Regs)

// HandleException registers an exception or IRQ handler (without an error
// code) for the given vector. Installing the underlying IDT gate is the
// responsibility of the boot-time segment/descriptor setup; this function
// only updates the dispatch table consulted by the shared interrupt
// trampoline.
func HandleException(exceptionNum ExceptionNum, handler ExceptionHandler)

// HandleExceptionWithCode registers an exception handler (with an error
// code) for the given vector.
func HandleExceptionWithCode(exceptionNum ExceptionNum, handler ExceptionHandlerWithCode)
