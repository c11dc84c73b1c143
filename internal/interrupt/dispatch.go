package interrupt

// Handler is a per-vector function invoked by the dispatcher with the
// CPU-state frame that was on the stack when the interrupt fired.
// Handlers for IRQ vectors do not acknowledge the interrupt
// themselves: the dispatcher sends the EOI through its ctrl field
// after the handler returns. Handlers for exceptions never return
// for an unrecoverable fault.
type Handler func(frame *State)

// EOISender is the subset of the hardware interrupt controller's
// contract the dispatcher needs: acknowledging an IRQ
// after its handler has run. internal/pic.Controller satisfies this.
type EOISender interface {
	SendEOI(irq int)
}

// Dispatcher routes vectors to handlers. It is built once during early
// init and is never mutated concurrently with a live IDT: handler
// registration happens before interrupts are enabled.
type Dispatcher struct {
	idt      Table
	handlers [NumVectors]Handler
	ctrl     EOISender

	// irqBase/irqLast bound the IRQ-forwarding range.
	irqBase int
	irqLast int
}

// NewDispatcher builds a dispatcher whose default handler for vectors
// 0-31 logs the frame and halts, with specialised logging
// for #GP (13) and #PF (14), and forwards irqBase..irqLast to ctrl's
// EOI after the registered device handler runs.
func NewDispatcher(ctrl EOISender, irqBase, irqLast int) *Dispatcher {
	d := &Dispatcher{ctrl: ctrl, irqBase: irqBase, irqLast: irqLast}
	for v := 0; v < 32; v++ {
		d.handlers[v] = diagnosticHandler
	}
	d.handlers[vectorGP] = gpHandler
	d.handlers[vectorPF] = pfHandler
	return d
}

// Register installs handler for vector. Vector 2 (NMI) is expected to
// run on its dedicated IST stack; the caller arranges that
// via Init's ist argument, not here.
func (d *Dispatcher) Register(vector int, h Handler) {
	d.handlers[vector] = h
}

// Init builds the 256 gates (pointing at the generated assembly stubs
// in stubTable), marks NMI/#DF/#MC to run on their dedicated IST
// stacks, and loads the IDT.
func (d *Dispatcher) Init(ist NMI, df, mc int) {
	for v := 0; v < NumVectors; v++ {
		kind := KindInterrupt
		if v == vectorBreakpoint {
			kind = KindTrap
		}
		var istSlot byte
		switch v {
		case vectorNMI:
			istSlot = byte(ist)
		case vectorDoubleFault:
			istSlot = byte(df)
		case vectorMachineCheck:
			istSlot = byte(mc)
		}
		d.idt.setGate(v, stubTable[v], istSlot, kind)
	}
	d.idt.Load()
}

// NMI names the IST slot dedicated to vector 2.
type NMI = int

// Exception vectors referenced by name.
const (
	vectorDivideError  = 0
	vectorNMI          = 2
	vectorBreakpoint   = 3
	vectorDoubleFault  = 8
	vectorGP           = 13
	vectorPF           = 14
	vectorMachineCheck = 18
)

// dispatch is called by every generated assembly stub with a pointer
// to the frame it just built. It must not be called concurrently with
// itself on this single-CPU core (interrupt gates clear IF), so no
// locking is needed around handler lookup.
//
//go:nosplit
func dispatch(frame *State) {
	v := int(frame.InterruptID)
	h := globalDispatcher.handlers[v]
	if h == nil {
		h = diagnosticHandler
	}
	h(frame)
	if globalDispatcher.ctrl != nil && v >= globalDispatcher.irqBase && v <= globalDispatcher.irqLast {
		globalDispatcher.ctrl.SendEOI(v - globalDispatcher.irqBase)
	}
}

// globalDispatcher is the single active dispatcher; set by Activate before
// interrupts are enabled, read-only thereafter.
var globalDispatcher *Dispatcher

// Activate makes d the dispatcher that dispatch() consults. Call once,
// before cpu.EnableInterrupts.
func Activate(d *Dispatcher) { globalDispatcher = d }

func diagnosticHandler(frame *State) {
	logFatalFrame(frame, "unhandled exception")
	haltForever()
}

func gpHandler(frame *State) {
	logFatalFrame(frame, "general protection fault")
	haltForever()
}

func pfHandler(frame *State) {
	logFatalFrame(frame, "page fault")
	haltForever()
}
