// Package serial drives the standard 16550-compatible UART at I/O base
// 0x3F8, used for test output and diagnostics (spec §6). Only a minimal
// write path is implemented: this kernel never reads from the serial port.
package serial

import (
	"duskos/kernel"
	"duskos/kernel/cpu"
	"duskos/kernel/sync"
)

// COM1 register offsets, relative to the port base.
const (
	regData       = 0
	regIntEnable  = 1
	regFIFOCtrl   = 2
	regLineCtrl   = 3
	regModemCtrl  = 4
	regLineStatus = 5

	lineStatusTHRE = 1 << 5 // transmit-holding-register empty
)

var (
	outBFn = cpu.OutB
	inBFn  = cpu.InB
)

// Port is a single UART instance. The kernel uses exactly one (COM1), but
// the type is not a bare package singleton so tests can construct isolated
// instances.
type Port struct {
	base uint16
	lock sync.Spinlock
}

// COM1 is the process-wide standard serial port.
var COM1 = &Port{base: 0x3F8}

var errNotPresent = &kernel.Error{Module: "serial", Message: "no UART detected at the given base port"}

// DriverName returns the name of this driver.
func (p *Port) DriverName() string { return "serial-uart" }

// DriverVersion returns the driver's major, minor and patch version.
func (p *Port) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DriverInit programs the UART for 38400 baud,
// 8 data bits, no parity, one stop bit, and verifies the chip is present by
// writing then reading back the scratch-equivalent line-control register.
func (p *Port) DriverInit() *kernel.Error {
	outBFn(p.base+regIntEnable, 0x00) // disable all interrupts; this kernel only writes
	outBFn(p.base+regLineCtrl, 0x80)  // enable DLAB to set the baud-rate divisor
	outBFn(p.base+regData, 0x03)      // divisor low byte: 38400 baud
	outBFn(p.base+regIntEnable, 0x00) // divisor high byte
	outBFn(p.base+regLineCtrl, 0x03)  // 8N1, DLAB off
	outBFn(p.base+regFIFOCtrl, 0xC7)  // enable + clear FIFOs, 14-byte threshold
	outBFn(p.base+regModemCtrl, 0x0B) // DTR, RTS and OUT2 (IRQ gate, unused) set

	const testByte = 0xAE
	const probe = testByte&0x7F | 0x03
	outBFn(p.base+regLineCtrl, probe)
	if inBFn(p.base+regLineCtrl)&0x7F != probe&0x7F {
		return errNotPresent
	}
	outBFn(p.base+regLineCtrl, 0x03) // back to 8N1, DLAB off
	return nil
}

// WriteByte blocks until the transmit holding register is empty, then
// writes b. Safe to call from multiple callers; guarded by p's own
// spinlock plus interrupt masking, matching the discipline the allocator
// and page mapper use for any state an interrupt handler might also touch
// (kfmt.Panic can be reached from fault handlers and writes to serial).
func (p *Port) WriteByte(b byte) {
	sync.WithCriticalSection(&p.lock, func() {
		for inBFn(p.base+regLineStatus)&lineStatusTHRE == 0 {
		}
		outBFn(p.base+regData, b)
	})
}

// Write implements io.Writer by writing each byte of p in turn.
func (p *Port) Write(data []byte) (int, error) {
	for _, b := range data {
		if b == '\n' {
			p.WriteByte('\r')
		}
		p.WriteByte(b)
	}
	return len(data), nil
}
