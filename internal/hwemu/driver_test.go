package hwemu_test

import (
	"testing"

	"github.com/kitsunebsd/fkernel/internal/clock"
	"github.com/kitsunebsd/fkernel/internal/cpu"
	"github.com/kitsunebsd/fkernel/internal/hwemu"
	"github.com/kitsunebsd/fkernel/internal/pic"
	"github.com/kitsunebsd/fkernel/internal/timer"
)

// These tests run the real guest drivers against the emulated chips:
// the driver issues exactly the port sequences it would on hardware,
// and the emulator's register state shows whether they were right.

func withBus(t *testing.T, devices ...hwemu.Device) {
	t.Helper()
	cpu.HookPorts(hwemu.NewBus(devices...))
	t.Cleanup(func() { cpu.HookPorts(nil) })
}

func TestLegacy8259DriverProgramsEmulatedPair(t *testing.T) {
	emu := hwemu.NewDualPIC()
	withBus(t, emu)

	drv := pic.NewLegacy8259(0x20)
	if err := drv.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if !emu.Initialized() {
		t.Fatalf("driver's ICW sequence did not initialize the emulated pair")
	}
	if emu.Primary.VectorBase != 0x20 || emu.Secondary.VectorBase != 0x28 {
		t.Fatalf("remap landed at %#x/%#x, want 0x20/0x28",
			emu.Primary.VectorBase, emu.Secondary.VectorBase)
	}
	if emu.Primary.IMR != 0xff || emu.Secondary.IMR != 0xff {
		t.Fatalf("IMR after Init = %#x/%#x, want fully masked",
			emu.Primary.IMR, emu.Secondary.IMR)
	}
}

func TestLegacy8259DriverUnmaskReachesHardware(t *testing.T) {
	emu := hwemu.NewDualPIC()
	withBus(t, emu)

	drv := pic.NewLegacy8259(0x20)
	drv.Init()
	drv.Unmask(0)
	drv.Unmask(12)

	if emu.Primary.IMR&(1<<0) != 0 {
		t.Fatalf("IRQ0 still masked in emulated IMR: %#x", emu.Primary.IMR)
	}
	if emu.Primary.IMR&(1<<2) != 0 {
		t.Fatalf("cascade line still masked after unmasking a secondary IRQ")
	}
	if emu.Secondary.IMR&(1<<4) != 0 {
		t.Fatalf("IRQ12 still masked in emulated secondary IMR: %#x", emu.Secondary.IMR)
	}
}

func TestLegacy8259DriverEOIRetiresInService(t *testing.T) {
	emu := hwemu.NewDualPIC()
	withBus(t, emu)

	drv := pic.NewLegacy8259(0x20)
	drv.Init()
	drv.Unmask(1)

	emu.RaiseIRQ(1)
	if _, ok := emu.Acknowledge(); !ok {
		t.Fatalf("emulator did not deliver the raised IRQ")
	}
	drv.SendEOI(1)
	if emu.Primary.ISR != 0 {
		t.Fatalf("ISR = %#x after driver EOI, want 0", emu.Primary.ISR)
	}
}

func TestLegacy8259DriverSuppressesSpuriousEOI(t *testing.T) {
	emu := hwemu.NewDualPIC()
	withBus(t, emu)

	drv := pic.NewLegacy8259(0x20)
	drv.Init()
	drv.Unmask(3)

	// A real IRQ3 is in service; a spurious IRQ7 arrives. The driver
	// must leave the in-service state of IRQ3 untouched, since an EOI
	// here would retire the wrong line.
	emu.RaiseIRQ(3)
	emu.Acknowledge()
	drv.SendEOI(7)
	if emu.Primary.ISR&(1<<3) == 0 {
		t.Fatalf("spurious IRQ7 EOI retired the in-service IRQ3")
	}
}

func TestPITDriverProgramsEmulatedDivisor(t *testing.T) {
	emu := hwemu.NewPIT8254()
	withBus(t, emu)

	p := timer.NewPIT()
	p.Program(1000)

	if emu.Divisor != 1193 {
		t.Fatalf("emulated divisor = %d, want 1193", emu.Divisor)
	}
	if emu.Mode != 2 {
		t.Fatalf("emulated mode = %d, want rate generator", emu.Mode)
	}
}

func TestPITDelayTerminates(t *testing.T) {
	emu := hwemu.NewPIT8254()
	withBus(t, emu)

	// The emulated countdown drains on every latch, so the polled
	// delay completes without wall-clock time passing.
	timer.DelayMillis(3)
}

func TestClockReadsEmulatedCMOS(t *testing.T) {
	emu := hwemu.NewCMOS(2026, 8, 1, 13, 37, 42)
	withBus(t, emu)

	got := clock.Read()
	if got.Year != 2026 || got.Month != 8 || got.Day != 1 {
		t.Fatalf("date = %d-%d-%d, want 2026-8-1", got.Year, got.Month, got.Day)
	}
	if got.Hour != 13 || got.Minute != 37 || got.Second != 42 {
		t.Fatalf("time = %d:%d:%d, want 13:37:42", got.Hour, got.Minute, got.Second)
	}
}
