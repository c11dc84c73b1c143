package boot

import (
	"bytes"

	"github.com/kitsunebsd/fkernel/internal/ata"
	"github.com/kitsunebsd/fkernel/internal/devfs"
	"github.com/kitsunebsd/fkernel/internal/errno"
	"github.com/kitsunebsd/fkernel/internal/interrupt"
	"github.com/kitsunebsd/fkernel/internal/kbd"
	"github.com/kitsunebsd/fkernel/internal/kheap"
	"github.com/kitsunebsd/fkernel/internal/klog"
	"github.com/kitsunebsd/fkernel/internal/mbr"
	"github.com/kitsunebsd/fkernel/internal/pic"
	"github.com/kitsunebsd/fkernel/internal/pmm"
	"github.com/kitsunebsd/fkernel/internal/ramfs"
	"github.com/kitsunebsd/fkernel/internal/sched"
	"github.com/kitsunebsd/fkernel/internal/segment"
	"github.com/kitsunebsd/fkernel/internal/timer"
	"github.com/kitsunebsd/fkernel/internal/vfs"
	"github.com/kitsunebsd/fkernel/internal/vmm"
)

// irqVectorBase is where the 16 legacy IRQ lines (or the IOAPIC's
// first inputs) land in the IDT, just past the exception range.
const irqVectorBase = 0x20

// numISTStacks is the number of IST slots in the TSS; only the double
// fault, NMI and machine check slots are given dedicated stacks.
const numISTStacks = 7

// Config is everything the entry stub gathers before handing over to
// Setup. Addresses are physical; early boot's identity map makes them
// directly usable.
type Config struct {
	Info Info

	// Reserved regions subtracted from the memory map: the kernel
	// image, boot structures, the initial page tables.
	Reserved []pmm.Range

	// Heap is the arena between the link-time heap boundary symbols.
	Heap []byte

	// Stack tops. ISTStacks slots 1-3 serve #DF, NMI and #MC; zero
	// slots are unused. IdleStack is the idle task's kernel stack.
	BootStack uintptr
	ISTStacks [numISTStacks]uintptr
	IdleStack uintptr

	// IdleEntry is the idle task's entry point: a hlt loop provided by
	// the entry stub.
	IdleEntry uintptr

	// Interrupt controller discovery, from ACPI/Multiboot.
	APICPresent bool
	LAPICBase   uintptr
	IOAPICBase  uintptr

	// TickHz is the scheduler tick rate; zero selects the default.
	TickHz uint32

	// InitImage is the serialized initial ramfs embedded in the boot
	// image; empty boots with a bare root.
	InitImage []byte

	Console klog.Sink

	// ProbeATA controls whether the ATA channels are probed. Disabled
	// only by tests and diskless configurations.
	ProbeATA bool
}

// Kernel aggregates the initialized subsystems. There is one, built
// by Setup and alive until power-off.
type Kernel struct {
	Segments   *segment.Manager
	Dispatcher *interrupt.Dispatcher
	PMM        *pmm.Manager
	VMM        *vmm.Manager
	Heap       *kheap.Heap
	Controller pic.Controller
	Kind       pic.Kind
	PIT        *timer.PIT
	VFS        *vfs.VFS
	FDs        *vfs.FDTable
	DevFS      *devfs.FS
	Sched      *sched.Scheduler
	Keyboard   *kbd.Keyboard

	tickHz uint32

	// apicTicksPerMs is the calibration result, kept so later sleep or
	// one-shot reprogramming can convert durations without another
	// calibration run. Zero on legacy-PIC systems.
	apicTicksPerMs uint32
}

// Setup runs early initialization in dependency order. It returns
// with interrupts still disabled; the caller switches into the
// scheduler's first task and enables them.
func Setup(magic uint32, cfg Config) (*Kernel, error) {
	if cfg.Console != nil {
		klog.SetSink(cfg.Console)
	}
	if magic != Magic {
		interrupt.Halt(nil, "boot: bad multiboot2 magic")
	}
	if len(cfg.Info.MemoryMap) == 0 {
		return nil, errno.New(errno.EFAULT, "boot.setup", nil)
	}

	k := &Kernel{tickHz: cfg.TickHz}
	if k.tickHz == 0 {
		k.tickHz = timer.DefaultHz
	}

	k.Segments = segment.New()
	k.Segments.Init(cfg.BootStack, cfg.ISTStacks)

	k.Dispatcher = interrupt.NewDispatcher(nil, irqVectorBase, irqVectorBase+0x0f)
	k.Dispatcher.Init(segment.ISTNMI, segment.ISTDoubleFault, segment.ISTMachineCheck)
	interrupt.Activate(k.Dispatcher)

	k.PMM = pmm.New()
	k.PMM.Init(availableRanges(cfg.Info.MemoryMap), cfg.Reserved)
	klog.Infof("boot", "pmm: %d MiB total, %d MiB free",
		k.PMM.TotalBytes()>>20, k.PMM.FreeBytes()>>20)

	k.VMM = vmm.New(k.PMM)
	if err := k.VMM.InitIdentity(identityLimit(cfg.Info.MemoryMap)); err != nil {
		return nil, err
	}
	k.VMM.Activate()

	if len(cfg.Heap) > 0 {
		k.Heap = kheap.New(cfg.Heap)
	}

	if err := k.initInterruptController(cfg); err != nil {
		return nil, err
	}

	if err := k.initFilesystems(cfg); err != nil {
		return nil, err
	}

	k.initScheduler(cfg)
	k.initDrivers(cfg)

	klog.Infof("boot", "early init complete (%s controller, %d Hz tick)", k.Kind, k.tickHz)
	return k, nil
}

// initInterruptController selects and programs the controller and its
// tick source, then installs the timer tick handler.
func (k *Kernel) initInterruptController(cfg Config) error {
	k.Controller, k.Kind = pic.Select(cfg.APICPresent, cfg.LAPICBase, cfg.IOAPICBase, irqVectorBase)
	k.Dispatcher.SetController(k.Controller)
	if err := k.Controller.Init(); err != nil {
		return err
	}

	k.PIT = timer.NewPIT()
	switch c := k.Controller.(type) {
	case *pic.LocalAPIC:
		ticksPerMs := timer.CalibrateAPIC(c)
		c.ProgramPeriodic(irqVectorBase, ticksPerMs, k.tickHz)
		k.apicTicksPerMs = ticksPerMs
		klog.Infof("boot", "apic timer: %d ticks/ms", ticksPerMs)
	default:
		k.PIT.Program(k.tickHz)
	}

	k.Dispatcher.Register(irqVectorBase, func(frame *interrupt.State) {
		k.Sched.Tick(frame)
	})
	k.Controller.Unmask(0)
	return nil
}

// initFilesystems mounts ramfs at /, unpacks the initial image into
// it, and mounts devfs at /dev.
func (k *Kernel) initFilesystems(cfg Config) error {
	k.VFS = vfs.New()
	k.FDs = vfs.NewFDTable(0)

	var root *vfs.VNode
	if len(cfg.InitImage) > 0 {
		r, err := ramfs.ReadImage(bytes.NewReader(cfg.InitImage))
		if err != nil {
			return errno.New(errno.EFAULT, "boot.initimage", err)
		}
		root = r
	} else {
		root = ramfs.New("ramfs")
	}
	if err := k.VFS.Mount("/", root); err != nil {
		return err
	}

	if _, err := root.LookupChild("dev"); err != nil {
		if _, err := root.CreateChild("dev", vfs.Directory); err != nil {
			return err
		}
	}
	k.DevFS = devfs.New()
	return k.VFS.Mount("/dev", k.DevFS.Root())
}

// initScheduler builds the scheduler with its permanent idle task.
func (k *Kernel) initScheduler(cfg Config) {
	k.Sched = sched.New(k.Segments.TSS())
	idle := k.Sched.NewTask(sched.TaskConfig{
		Name:        "idle",
		Priority:    0,
		Entry:       cfg.IdleEntry,
		KernelStack: cfg.IdleStack,
		Kernel:      true,
		Idle:        true,
	})
	k.Sched.Add(idle)
}

// initDrivers brings up the IRQ consumers: the PS/2 keyboard and the
// ATA drives, with one devfs node per drive and per partition.
func (k *Kernel) initDrivers(cfg Config) {
	k.Keyboard = kbd.New()
	k.Dispatcher.Register(irqVectorBase+kbd.IRQLine, func(*interrupt.State) {
		k.Keyboard.HandleIRQ()
	})
	k.DevFS.MustRegister(k.Keyboard, vfs.CharacterDevice)
	k.Controller.Unmask(kbd.IRQLine)

	if !cfg.ProbeATA {
		return
	}
	channels := []struct {
		name    string
		base    uint16
		control uint16
		irq     int
	}{
		{"ata0", ata.PrimaryBase, ata.PrimaryControl, ata.PrimaryIRQ},
		{"ata1", ata.SecondaryBase, ata.SecondaryControl, ata.SecondaryIRQ},
	}
	for _, ch := range channels {
		drive, ok := ata.NewDrive(ch.name, ch.base, ch.control, false)
		if !ok {
			continue
		}
		k.Dispatcher.Register(irqVectorBase+ch.irq, func(*interrupt.State) {
			drive.AckIRQ()
		})
		k.Controller.Unmask(ch.irq)
		k.DevFS.MustRegister(drive, vfs.BlockDevice)

		parts, err := mbr.Scan(drive)
		if err != nil {
			klog.Warnf("boot", "%s: no partition table: %v", ch.name, err)
			continue
		}
		for _, pd := range mbr.Devices(drive, parts) {
			k.DevFS.MustRegister(pd, vfs.BlockDevice)
		}
	}
}

// availableRanges converts the loader's map into PMM init ranges.
func availableRanges(regions []MemoryRegion) []pmm.Range {
	var out []pmm.Range
	for _, r := range regions {
		if !r.Available() {
			continue
		}
		out = append(out, pmm.Range{Base: uintptr(r.Base), Length: uintptr(r.Length)})
	}
	return out
}

// identityLimit picks how far the initial identity map must reach:
// the end of the highest available region, so every frame the PMM can
// hand out is addressable.
func identityLimit(regions []MemoryRegion) uintptr {
	var limit uint64
	for _, r := range regions {
		if r.Available() && r.Base+r.Length > limit {
			limit = r.Base + r.Length
		}
	}
	return uintptr(limit)
}
