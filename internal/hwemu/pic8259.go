package hwemu

// DualPIC emulates the cascaded 8259A pair far enough to validate a
// guest driver's programming: the ICW1-ICW4 initialization handshake,
// IMR reads/writes, OCW2 EOI handling against the in-service
// register, and the OCW3 IRR/ISR read selector.
type DualPIC struct {
	Primary   PIC8259
	Secondary PIC8259
}

// PIC8259 is one controller's register state.
type PIC8259 struct {
	VectorBase byte
	IMR        byte
	IRR        byte
	ISR        byte

	// icwStage tracks the initialization handshake: 0 means
	// operational, 2..4 name the ICW the next data-port write must
	// carry.
	icwStage   int
	expectICW4 bool
	CascadeID  byte

	// readISR selects what a command-port read returns, per the last
	// OCW3.
	readISR bool
}

const (
	primaryCommand   = 0x20
	primaryData      = 0x21
	secondaryCommand = 0xa0
	secondaryData    = 0xa1

	icw1Bit     = 0x10
	icw1WantsW4 = 0x01
	ocw2EOI     = 0x20
	ocw3Bit     = 0x08
	ocw3ReadISR = 0x0b
	ocw3ReadIRR = 0x0a
)

// NewDualPIC returns a pair in the power-on state: uninitialized,
// everything masked.
func NewDualPIC() *DualPIC {
	return &DualPIC{
		Primary:   PIC8259{IMR: 0xff},
		Secondary: PIC8259{IMR: 0xff},
	}
}

func (d *DualPIC) IOPorts() []uint16 {
	return []uint16{primaryCommand, primaryData, secondaryCommand, secondaryData}
}

func (d *DualPIC) ReadIOPort(port uint16, data []byte) {
	switch port {
	case primaryCommand:
		data[0] = d.Primary.readCommand()
	case primaryData:
		data[0] = d.Primary.IMR
	case secondaryCommand:
		data[0] = d.Secondary.readCommand()
	case secondaryData:
		data[0] = d.Secondary.IMR
	}
}

func (d *DualPIC) WriteIOPort(port uint16, data []byte) {
	v := data[0]
	switch port {
	case primaryCommand:
		d.Primary.writeCommand(v)
	case primaryData:
		d.Primary.writeData(v)
	case secondaryCommand:
		d.Secondary.writeCommand(v)
	case secondaryData:
		d.Secondary.writeData(v)
	}
}

// RaiseIRQ latches line (0-15) into the owning controller's request
// register, routing 8-15 through the secondary.
func (d *DualPIC) RaiseIRQ(line int) {
	if line < 8 {
		d.Primary.IRR |= 1 << line
		return
	}
	d.Secondary.IRR |= 1 << (line - 8)
	d.Primary.IRR |= 1 << 2 // cascade
}

// Acknowledge moves the lowest pending request into service,
// returning the vector the CPU would receive.
func (d *DualPIC) Acknowledge() (vector byte, ok bool) {
	for line := 0; line < 8; line++ {
		bit := byte(1) << line
		if d.Primary.IRR&bit == 0 || d.Primary.IMR&bit != 0 {
			continue
		}
		if line == 2 && d.Secondary.IRR != 0 {
			v, sok := d.Secondary.acknowledgeOne()
			if sok {
				d.Primary.IRR &^= bit
				d.Primary.ISR |= bit
				return v, true
			}
		}
		d.Primary.IRR &^= bit
		d.Primary.ISR |= bit
		return d.Primary.VectorBase + byte(line), true
	}
	return 0, false
}

// Initialized reports whether both controllers completed their ICW
// handshake.
func (d *DualPIC) Initialized() bool {
	return d.Primary.icwStage == 0 && d.Primary.VectorBase != 0 &&
		d.Secondary.icwStage == 0 && d.Secondary.VectorBase != 0
}

func (p *PIC8259) acknowledgeOne() (byte, bool) {
	for line := 0; line < 8; line++ {
		bit := byte(1) << line
		if p.IRR&bit == 0 || p.IMR&bit != 0 {
			continue
		}
		p.IRR &^= bit
		p.ISR |= bit
		return p.VectorBase + byte(line), true
	}
	return 0, false
}

func (p *PIC8259) readCommand() byte {
	if p.readISR {
		return p.ISR
	}
	return p.IRR
}

func (p *PIC8259) writeCommand(v byte) {
	if v&icw1Bit != 0 {
		p.icwStage = 2
		p.expectICW4 = v&icw1WantsW4 != 0
		p.IMR = 0
		p.ISR = 0
		p.IRR = 0
		return
	}
	if v&ocw3Bit != 0 {
		switch v {
		case ocw3ReadISR:
			p.readISR = true
		case ocw3ReadIRR:
			p.readISR = false
		}
		return
	}
	if v&ocw2EOI != 0 {
		// Non-specific EOI: retire the highest-priority in-service
		// line.
		for line := 0; line < 8; line++ {
			bit := byte(1) << line
			if p.ISR&bit != 0 {
				p.ISR &^= bit
				return
			}
		}
	}
}

func (p *PIC8259) writeData(v byte) {
	switch p.icwStage {
	case 2:
		p.VectorBase = v
		p.icwStage = 3
	case 3:
		p.CascadeID = v
		if p.expectICW4 {
			p.icwStage = 4
		} else {
			p.icwStage = 0
		}
	case 4:
		p.icwStage = 0
	default:
		p.IMR = v
	}
}
