// Package ata drives IDE disks in PIO mode: LBA28 sector reads and
// writes over the legacy primary/secondary port pairs, with the
// device's status register polled between phases. Transfers are
// polled; the IRQ handler only acknowledges the controller so the
// interrupt line is quiesced before EOI.
package ata

import (
	"github.com/kitsunebsd/fkernel/internal/block"
	"github.com/kitsunebsd/fkernel/internal/cpu"
	"github.com/kitsunebsd/fkernel/internal/errno"
	"github.com/kitsunebsd/fkernel/internal/klog"
)

// Channel port bases.
const (
	PrimaryBase      uint16 = 0x1f0
	PrimaryControl   uint16 = 0x3f6
	SecondaryBase    uint16 = 0x170
	SecondaryControl uint16 = 0x376

	PrimaryIRQ   = 14
	SecondaryIRQ = 15
)

// Register offsets from the channel base.
const (
	regData    = 0
	regError   = 1
	regSectors = 2
	regLBALow  = 3
	regLBAMid  = 4
	regLBAHigh = 5
	regDrive   = 6
	regCommand = 7 // write
	regStatus  = 7 // read
)

// Status bits.
const (
	statusERR = 1 << 0
	statusDRQ = 1 << 3
	statusDF  = 1 << 5
	statusRDY = 1 << 6
	statusBSY = 1 << 7
)

// Commands.
const (
	cmdReadSectors  = 0x20
	cmdWriteSectors = 0x30
	cmdCacheFlush   = 0xe7
	cmdIdentify     = 0xec
)

const (
	driveLBA = 0xe0 // LBA addressing, drive select in bit 4

	// maxPoll bounds the busy-wait loops so a dead drive cannot hang
	// boot forever.
	maxPoll = 1_000_000

	// ioRetries is the total number of attempts a transfer gets; a
	// transient error bit starts another attempt until they run out.
	ioRetries = 3

	maxLBA28 = 1 << 28
)

// Drive is one device on one channel.
type Drive struct {
	name    string
	base    uint16
	control uint16
	slave   bool
	sectors uint64
}

// NewDrive probes base/control for a drive and returns it, or ok=false
// when IDENTIFY shows nothing attached.
func NewDrive(name string, base, control uint16, slave bool) (*Drive, bool) {
	d := &Drive{name: name, base: base, control: control, slave: slave}
	sectors, ok := d.identify()
	if !ok {
		return nil, false
	}
	d.sectors = sectors
	klog.Infof("ata", "%s: %d sectors", name, sectors)
	return d, true
}

func (d *Drive) DeviceName() string { return d.name }

func (d *Drive) Sectors() uint64 { return d.sectors }

// ReadSectors performs a PIO LBA28 read of count sectors at lba.
func (d *Drive) ReadSectors(lba uint64, count int, buf []byte) error {
	return d.transfer(lba, count, buf, false)
}

// WriteSectors performs a PIO LBA28 write of count sectors at lba.
func (d *Drive) WriteSectors(lba uint64, count int, buf []byte) error {
	return d.transfer(lba, count, buf, true)
}

// ReadAt adapts the drive to devfs's byte-addressed node contract.
func (d *Drive) ReadAt(off int64, buf []byte) (int, error) {
	if off < 0 || off%block.SectorSize != 0 || len(buf)%block.SectorSize != 0 {
		return 0, errno.New(errno.EINVAL, "ata.read", nil)
	}
	if err := d.ReadSectors(uint64(off/block.SectorSize), len(buf)/block.SectorSize, buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

// WriteAt is ReadAt's write-side counterpart.
func (d *Drive) WriteAt(off int64, buf []byte) (int, error) {
	if off < 0 || off%block.SectorSize != 0 || len(buf)%block.SectorSize != 0 {
		return 0, errno.New(errno.EINVAL, "ata.write", nil)
	}
	if err := d.WriteSectors(uint64(off/block.SectorSize), len(buf)/block.SectorSize, buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

// AckIRQ reads the status register, which clears the drive's pending
// interrupt condition. Installed as the IRQ14/15 handler body; it
// runs before the dispatcher sends EOI, so the line is quiet by the
// time the controller is acknowledged.
func (d *Drive) AckIRQ() {
	cpu.InB(d.base + regStatus)
}

func (d *Drive) transfer(lba uint64, count int, buf []byte, write bool) error {
	if count <= 0 || len(buf) < count*block.SectorSize {
		return errno.New(errno.EINVAL, "ata.io", nil)
	}
	if lba+uint64(count) > maxLBA28 || (d.sectors > 0 && lba+uint64(count) > d.sectors) {
		return errno.New(errno.EINVAL, "ata.io", nil)
	}

	var err error
	for attempt := 0; attempt < ioRetries; attempt++ {
		if err = d.transferOnce(lba, count, buf, write); err == nil {
			return nil
		}
	}
	return err
}

func (d *Drive) transferOnce(lba uint64, count int, buf []byte, write bool) error {
	restore := cpu.IRQDisable()
	defer cpu.IRQRestore(restore)

	if !d.waitClear(statusBSY) {
		return errno.New(errno.EFAULT, "ata.io", nil)
	}

	d.selectDrive(lba)
	cpu.OutB(d.base+regSectors, byte(count))
	cpu.OutB(d.base+regLBALow, byte(lba))
	cpu.OutB(d.base+regLBAMid, byte(lba>>8))
	cpu.OutB(d.base+regLBAHigh, byte(lba>>16))

	cmd := byte(cmdReadSectors)
	if write {
		cmd = cmdWriteSectors
	}
	cpu.OutB(d.base+regCommand, cmd)

	for s := 0; s < count; s++ {
		if !d.waitData() {
			return errno.New(errno.EFAULT, "ata.io", nil)
		}
		sector := buf[s*block.SectorSize : (s+1)*block.SectorSize]
		if write {
			d.writeData(sector)
		} else {
			d.readData(sector)
		}
	}

	if write {
		cpu.OutB(d.base+regCommand, cmdCacheFlush)
		d.waitClear(statusBSY)
	}
	return nil
}

// selectDrive programs the drive/head register with the LBA's top
// nibble, then settles the selection with four status reads (the
// canonical ~400 ns delay).
func (d *Drive) selectDrive(lba uint64) {
	sel := byte(driveLBA) | byte(lba>>24)&0x0f
	if d.slave {
		sel |= 1 << 4
	}
	cpu.OutB(d.base+regDrive, sel)
	for i := 0; i < 4; i++ {
		cpu.InB(d.control)
	}
}

// waitData waits for the drive to raise DRQ with BSY clear; an error
// or drive-fault bit fails the wait.
func (d *Drive) waitData() bool {
	for i := 0; i < maxPoll; i++ {
		s := cpu.InB(d.base + regStatus)
		if s&(statusERR|statusDF) != 0 {
			return false
		}
		if s&statusBSY == 0 && s&statusDRQ != 0 {
			return true
		}
		cpu.Pause()
	}
	return false
}

func (d *Drive) waitClear(bit byte) bool {
	for i := 0; i < maxPoll; i++ {
		if cpu.InB(d.base+regStatus)&bit == 0 {
			return true
		}
		cpu.Pause()
	}
	return false
}

func (d *Drive) readData(sector []byte) {
	for i := 0; i < block.SectorSize; i += 2 {
		w := cpu.InW(d.base + regData)
		sector[i] = byte(w)
		sector[i+1] = byte(w >> 8)
	}
}

func (d *Drive) writeData(sector []byte) {
	for i := 0; i < block.SectorSize; i += 2 {
		cpu.OutW(d.base+regData, uint16(sector[i])|uint16(sector[i+1])<<8)
	}
}

// identify issues IDENTIFY DEVICE and decodes the LBA28 capacity from
// words 60-61 of the response.
func (d *Drive) identify() (sectors uint64, ok bool) {
	restore := cpu.IRQDisable()
	defer cpu.IRQRestore(restore)

	d.selectDrive(0)
	cpu.OutB(d.base+regSectors, 0)
	cpu.OutB(d.base+regLBALow, 0)
	cpu.OutB(d.base+regLBAMid, 0)
	cpu.OutB(d.base+regLBAHigh, 0)
	cpu.OutB(d.base+regCommand, cmdIdentify)

	if cpu.InB(d.base+regStatus) == 0 {
		return 0, false // floating bus, nothing attached
	}
	if !d.waitData() {
		return 0, false
	}

	var ident [256]uint16
	for i := range ident {
		ident[i] = cpu.InW(d.base + regData)
	}
	sectors = uint64(ident[60]) | uint64(ident[61])<<16
	return sectors, sectors > 0
}
