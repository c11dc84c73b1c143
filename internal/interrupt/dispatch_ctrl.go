package interrupt

// SetController installs the hardware interrupt controller the
// dispatcher EOIs through. The controller comes up later in boot than
// the IDT (an APIC needs the memory manager first), so it is attached
// here rather than at construction; until then no IRQ line is
// unmasked, so nothing can reach the EOI path.
func (d *Dispatcher) SetController(c EOISender) { d.ctrl = c }
