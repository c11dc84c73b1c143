// Package timer drives the platform tick sources: the 8254 PIT, used
// either directly as the scheduler's tick generator (legacy PIC
// systems) or as the known-rate reference the local APIC timer is
// calibrated against.
package timer

import "github.com/kitsunebsd/fkernel/internal/cpu"

// The PIT's input oscillator runs at 1.193182 MHz regardless of the
// host chipset.
const BaseFrequency = 1193182

const (
	channel0Port uint16 = 0x40
	commandPort  uint16 = 0x43

	// Channel 0, access lo/hi, rate generator, binary counting.
	cmdRateGenerator = 0x34
	// Channel 0, access lo/hi, interrupt on terminal count, binary.
	cmdOneShot = 0x30
	// Counter latch for channel 0.
	cmdLatch0 = 0x00
)

// DefaultHz is the tick rate early init programs when the boot
// manifest does not choose one: 1 ms granularity.
const DefaultHz = 1000

// PIT is the 8254 programmable interval timer, channel 0, wired to
// IRQ0.
type PIT struct {
	hz      uint32
	divisor uint16
}

// NewPIT returns an unprogrammed PIT driver.
func NewPIT() *PIT { return &PIT{} }

// DivisorFor converts a requested tick frequency into the channel
// reload divisor. Frequencies below ~19 Hz saturate at the maximum
// divisor (0 encodes 65536).
func DivisorFor(hz uint32) uint16 {
	if hz == 0 {
		hz = DefaultHz
	}
	d := uint32(BaseFrequency) / hz
	if d > 0xffff {
		return 0
	}
	if d == 0 {
		return 1
	}
	return uint16(d)
}

// Program places channel 0 in rate-generator mode at hz ticks per
// second: command byte first, then the divisor low byte, then high.
func (p *PIT) Program(hz uint32) {
	d := DivisorFor(hz)
	p.hz = hz
	p.divisor = d

	restore := cpu.IRQDisable()
	defer cpu.IRQRestore(restore)

	cpu.OutB(commandPort, cmdRateGenerator)
	cpu.OutB(channel0Port, byte(d))
	cpu.OutB(channel0Port, byte(d>>8))
}

// Hz returns the programmed tick rate.
func (p *PIT) Hz() uint32 { return p.hz }

// latchCount reads channel 0's live countdown via the latch command.
func latchCount() uint16 {
	cpu.OutB(commandPort, cmdLatch0)
	lo := cpu.InB(channel0Port)
	hi := cpu.InB(channel0Port)
	return uint16(hi)<<8 | uint16(lo)
}

// DelayMillis busy-waits for ms milliseconds by running channel 0 in
// one-shot mode and polling its countdown. Used only during boot,
// before the tick interrupt is live; it reprograms channel 0, so the
// caller must Program the rate generator again afterwards.
func DelayMillis(ms uint32) {
	for i := uint32(0); i < ms; i++ {
		delayOneMilli()
	}
}

// ticksPerMilli is the channel countdown for one millisecond.
var ticksPerMilli uint16 = BaseFrequency / 1000

func delayOneMilli() {
	cpu.OutB(commandPort, cmdOneShot)
	cpu.OutB(channel0Port, byte(ticksPerMilli))
	cpu.OutB(channel0Port, byte(ticksPerMilli>>8))

	// The counter loads on the next oscillator edge and counts down;
	// in mode 0 it keeps decrementing past zero, so watch for either
	// the terminal value or wraparound.
	prev := latchCount()
	for {
		cur := latchCount()
		if cur == 0 || cur > prev {
			return
		}
		prev = cur
		cpu.Pause()
	}
}
