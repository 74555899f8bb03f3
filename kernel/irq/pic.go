package irq

import "duskos/kernel/cpu"

// The 8259 programmable interrupt controller ships as a cascaded
// master/slave pair. By default the master raises vectors 0-7 and the slave
// 8-15, which collide with the CPU's own exception vectors (0-31); both
// must be reprogrammed ("remapped") before interrupts can be safely enabled.
const (
	masterCommandPort = 0x20
	masterDataPort    = 0x21
	slaveCommandPort  = 0xA0
	slaveDataPort     = 0xA1

	icw1Init       = 0x11 // edge-triggered, cascade mode, expect ICW4
	icw4_8086      = 0x01 // 8086/88 mode
	eoiCommand     = 0x20
	slaveCascadeIRQ = 2 // the slave sits on master IRQ2; ICW3 to the master is 1<<2
)

var (
	outBFn = cpu.OutB
	inBFn  = cpu.InB
)

// RemapPIC reprograms the master/slave 8259 pair so that master IRQs 0-7
// appear at masterOffset..masterOffset+7 and slave IRQs 8-15 appear at
// slaveOffset..slaveOffset+7, then masks every line except the ones listed
// in keepEnabled (IRQ numbers 0-15).
func RemapPIC(masterOffset, slaveOffset uint8, keepEnabled ...uint8) {
	// Save current masks; irrelevant here since we fully reprogram both
	// controllers, but reading them documents the protocol's symmetry
	// with the restore path an ACPI suspend/resume path would need.
	_ = inBFn(masterDataPort)
	_ = inBFn(slaveDataPort)

	outBFn(masterCommandPort, icw1Init)
	outBFn(slaveCommandPort, icw1Init)

	outBFn(masterDataPort, masterOffset)
	outBFn(slaveDataPort, slaveOffset)

	outBFn(masterDataPort, 1<<slaveCascadeIRQ)
	outBFn(slaveDataPort, 2) // slave's cascade identity

	outBFn(masterDataPort, icw4_8086)
	outBFn(slaveDataPort, icw4_8086)

	var masterMask, slaveMask uint8 = 0xFF, 0xFF
	for _, irq := range keepEnabled {
		if irq < 8 {
			masterMask &^= 1 << irq
		} else {
			slaveMask &^= 1 << (irq - 8)
		}
	}
	// The cascade line itself must stay unmasked on the master or the
	// slave's IRQs (8-15) never reach the CPU.
	if slaveMask != 0xFF {
		masterMask &^= 1 << slaveCascadeIRQ
	}

	outBFn(masterDataPort, masterMask)
	outBFn(slaveDataPort, slaveMask)
}

// SendEOI signals end-of-interrupt to the PIC(s) for the given IRQ number
// (0-15, not the remapped vector). It must be called after servicing every
// hardware interrupt, slave line or not, or the controller will stop
// delivering further interrupts on that line.
func SendEOI(irq uint8) {
	if irq >= 8 {
		outBFn(slaveCommandPort, eoiCommand)
	}
	outBFn(masterCommandPort, eoiCommand)
}
