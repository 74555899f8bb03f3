package keyboard

import (
	"duskos/kernel/cpu"
	"duskos/kernel/irq"
)

const dataPort = 0x60

var inBFn = cpu.InB

// InstallHandler registers s as the target of the keyboard IRQ: each
// interrupt reads exactly one byte from the PS/2 data port and pushes it
// into s, then signals end-of-interrupt. Per spec §4.6 this handler must
// never allocate; Stream.Push is a fixed-size ring write plus an atomic
// load, so it meets that bar.
func InstallHandler(s *Stream) {
	irq.HandleException(irq.KeyboardIRQ, func(*irq.Frame, *irq.Regs) {
		b := inBFn(dataPort)
		if s != nil {
			s.Push(b)
		}
		irq.SendEOI(1)
	})
}
