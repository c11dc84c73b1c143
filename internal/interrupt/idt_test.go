package interrupt

import (
	"encoding/binary"
	"testing"

	"github.com/kitsunebsd/fkernel/internal/segment"
)

func TestGateEncoding(t *testing.T) {
	var tbl Table
	stub := uintptr(0xffff_8000_1234_5678)
	tbl.setGate(3, stub, 2, KindTrap)

	gate := tbl.raw[3*gateSize : 4*gateSize]

	offLow := binary.LittleEndian.Uint16(gate[0:2])
	offMid := binary.LittleEndian.Uint16(gate[6:8])
	offHigh := binary.LittleEndian.Uint32(gate[8:12])
	got := uintptr(offLow) | uintptr(offMid)<<16 | uintptr(offHigh)<<32
	if got != stub {
		t.Fatalf("gate offset = %#x, want %#x", got, stub)
	}

	if sel := binary.LittleEndian.Uint16(gate[2:4]); sel != segment.SelectorKernelCS {
		t.Fatalf("gate selector = %#x, want kernel CS %#x", sel, segment.SelectorKernelCS)
	}
	if ist := gate[4] & 0x7; ist != 2 {
		t.Fatalf("gate IST = %d, want 2", ist)
	}
	if gate[5] != gatePresent|gateDPL0|byte(KindTrap) {
		t.Fatalf("gate attributes = %#x, want present DPL0 trap", gate[5])
	}
	for _, b := range gate[12:16] {
		if b != 0 {
			t.Fatalf("reserved gate bytes not zero: % x", gate[12:16])
		}
	}
}

func TestTableLimitCoversAllVectors(t *testing.T) {
	var tbl Table
	if want := uint16(NumVectors*gateSize - 1); tbl.Limit() != want {
		t.Fatalf("Limit = %d, want %d", tbl.Limit(), want)
	}
}

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	d := NewDispatcher(nil, 0x20, 0x2f)

	var seen *State
	d.Register(0x21, func(frame *State) { seen = frame })
	Activate(d)

	frame := &State{InterruptID: 0x21}
	dispatch(frame)
	if seen != frame {
		t.Fatalf("handler did not receive the dispatched frame")
	}
}

type recordingEOI struct {
	irqs []int
}

func (r *recordingEOI) SendEOI(irq int) { r.irqs = append(r.irqs, irq) }

func TestDispatchSendsEOIAfterIRQHandler(t *testing.T) {
	ctrl := &recordingEOI{}
	d := NewDispatcher(ctrl, 0x20, 0x2f)

	var order []string
	d.Register(0x2e, func(*State) {
		if len(ctrl.irqs) == 0 {
			order = append(order, "handler")
		}
	})
	Activate(d)

	dispatch(&State{InterruptID: 0x2e})
	if len(ctrl.irqs) != 1 || ctrl.irqs[0] != 0x0e {
		t.Fatalf("EOI irqs = %v, want [14]", ctrl.irqs)
	}
	if len(order) != 1 || order[0] != "handler" {
		t.Fatalf("handler did not run before EOI")
	}
}

func TestDispatchSkipsEOIForExceptionVectors(t *testing.T) {
	ctrl := &recordingEOI{}
	d := NewDispatcher(ctrl, 0x20, 0x2f)
	d.Register(3, func(*State) {}) // breakpoint, below the IRQ base
	Activate(d)

	dispatch(&State{InterruptID: 3})
	if len(ctrl.irqs) != 0 {
		t.Fatalf("EOI sent for an exception vector: %v", ctrl.irqs)
	}
}
