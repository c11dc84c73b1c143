// Package hwemu emulates the legacy chipset devices the kernel's
// drivers program (the 8259 PIC pair, the 8254 PIT, the CMOS RTC) so
// driver logic can be exercised by hosted tests: the emulated device
// sits behind internal/cpu's fake port space and reacts to the same
// ICW/OCW/command sequences real silicon would.
package hwemu

// Device is one emulated chip: the ports it claims and byte-wide
// handlers for them.
type Device interface {
	IOPorts() []uint16
	ReadIOPort(port uint16, data []byte)
	WriteIOPort(port uint16, data []byte)
}

// Bus dispatches port I/O to registered devices. It implements
// internal/cpu's PortBus hook; unclaimed ports report unhandled so
// the fake port array still backs them.
type Bus struct {
	handlers map[uint16]Device
}

// NewBus returns an empty bus; install it with cpu.HookPorts.
func NewBus(devices ...Device) *Bus {
	b := &Bus{handlers: make(map[uint16]Device)}
	for _, d := range devices {
		b.Register(d)
	}
	return b
}

// Register claims every port of d. Later registrations win conflicts,
// matching how a test swaps one emulated chip for another.
func (b *Bus) Register(d Device) {
	for _, port := range d.IOPorts() {
		b.handlers[port] = d
	}
}

func (b *Bus) ReadIOPort(port uint16, data []byte) bool {
	d, ok := b.handlers[port]
	if !ok {
		return false
	}
	d.ReadIOPort(port, data)
	return true
}

func (b *Bus) WriteIOPort(port uint16, data []byte) bool {
	d, ok := b.handlers[port]
	if !ok {
		return false
	}
	d.WriteIOPort(port, data)
	return true
}
