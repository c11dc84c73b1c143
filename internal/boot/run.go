package boot

import (
	"github.com/kitsunebsd/fkernel/internal/cpu"
	"github.com/kitsunebsd/fkernel/internal/interrupt"
	"github.com/kitsunebsd/fkernel/internal/klog"
)

// Run hands control to the interrupt-driven steady state: the boot
// thread becomes the idle task, interrupts are enabled, and from here
// on all work happens in timer ticks, device IRQs, and the tasks they
// schedule. Run never returns.
func (k *Kernel) Run() {
	first := k.Sched.Start()
	klog.Infof("boot", "scheduling starts with %q", first.Name)

	cpu.EnableInterrupts()
	for {
		cpu.Halt()
	}
}

// SleepMillis suspends the current task for at least ms milliseconds,
// converting through the configured tick rate. Granularity is one
// tick; sub-tick requests round up.
func (k *Kernel) SleepMillis(frame *interrupt.State, ms uint64) {
	ticks := (ms*uint64(k.tickHz) + 999) / 1000
	if ticks == 0 {
		ticks = 1
	}
	k.Sched.SleepCurrent(frame, ticks)
}
