package timer

import "github.com/kitsunebsd/fkernel/internal/pic"

// calibrationMs is how long the one-shot calibration run samples the
// APIC timer against the PIT. Longer runs average out oscillator
// jitter; 10 ms keeps boot fast while staying well above the PIT's
// resolution.
const calibrationMs = 10

// CalibrateAPIC measures the local APIC timer's tick rate by letting
// it count down in one-shot mode across a PIT-timed delay and
// solving for ticks per millisecond. The result feeds
// LocalAPIC.ProgramPeriodic and sleep-duration conversion.
func CalibrateAPIC(lapic *pic.LocalAPIC) (ticksPerMs uint32) {
	const initial = 0xffffffff

	lapic.StartOneShot(initial)
	DelayMillis(calibrationMs)
	elapsed := initial - lapic.CurrentCount()
	lapic.StopTimer()

	ticksPerMs = elapsed / calibrationMs
	if ticksPerMs == 0 {
		ticksPerMs = 1
	}
	return ticksPerMs
}
