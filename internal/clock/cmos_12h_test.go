package clock

import (
	"testing"

	"github.com/kitsunebsd/fkernel/internal/cpu"
	"github.com/kitsunebsd/fkernel/internal/hwemu"
)

// 12-hour-mode decoding is driven against the emulated CMOS, with the
// status register and hour register rewritten to each firmware
// convention before reading.

func cmosWith(t *testing.T, statusB, hourReg byte) {
	t.Helper()
	emu := hwemu.NewCMOS(2026, 8, 1, 0, 37, 42)
	emu.Registers[0x0b] = statusB
	emu.Registers[0x04] = hourReg
	cpu.HookPorts(hwemu.NewBus(emu))
	t.Cleanup(func() { cpu.HookPorts(nil) })
}

func TestRead12HourBCDAfternoon(t *testing.T) {
	// BCD, 12-hour: 1 PM is BCD 01 with the PM bit set.
	cmosWith(t, 0, hourPMBit|0x01)
	if got := Read(); got.Hour != 13 {
		t.Fatalf("Hour = %d, want 13 (1 PM)", got.Hour)
	}
}

func TestRead12HourBCDMidnight(t *testing.T) {
	// 12 AM reads as BCD 12 with PM clear and must decode to hour 0.
	cmosWith(t, 0, 0x12)
	if got := Read(); got.Hour != 0 {
		t.Fatalf("Hour = %d, want 0 (midnight)", got.Hour)
	}
}

func TestRead12HourBCDNoon(t *testing.T) {
	// 12 PM reads as BCD 12 with PM set and stays hour 12.
	cmosWith(t, 0, hourPMBit|0x12)
	if got := Read(); got.Hour != 12 {
		t.Fatalf("Hour = %d, want 12 (noon)", got.Hour)
	}
}

func TestRead12HourBinaryAfternoon(t *testing.T) {
	// Binary, 12-hour: 5 PM is 5 with the PM bit set.
	cmosWith(t, statusBBCD, hourPMBit|5)
	if got := Read(); got.Hour != 17 {
		t.Fatalf("Hour = %d, want 17 (5 PM)", got.Hour)
	}
}

func TestRead24HourBinary(t *testing.T) {
	// Binary, 24-hour: the hour passes through untouched.
	cmosWith(t, statusBBCD|statusB24Hr, 22)
	if got := Read(); got.Hour != 22 {
		t.Fatalf("Hour = %d, want 22", got.Hour)
	}
}
