package mbr

import (
	"fmt"

	"github.com/kitsunebsd/fkernel/internal/block"
	"github.com/kitsunebsd/fkernel/internal/errno"
)

// PartitionDevice exposes one partition as a block device in its own
// right: sector addresses are rebased onto the partition's first LBA
// and bounded by its length.
type PartitionDevice struct {
	disk  block.Device
	name  string
	first uint64
	count uint64
}

// Devices wraps every partition of disk. Node names follow the
// disk's: "ata0" yields "ata0p1", "ata0p2", ...
func Devices(disk block.Device, parts []Partition) []*PartitionDevice {
	out := make([]*PartitionDevice, 0, len(parts))
	for i, p := range parts {
		out = append(out, &PartitionDevice{
			disk:  disk,
			name:  fmt.Sprintf("%sp%d", disk.DeviceName(), i+1),
			first: uint64(p.FirstLBA),
			count: uint64(p.Sectors),
		})
	}
	return out
}

func (p *PartitionDevice) DeviceName() string { return p.name }

func (p *PartitionDevice) Sectors() uint64 { return p.count }

func (p *PartitionDevice) ReadSectors(lba uint64, count int, buf []byte) error {
	if err := p.check(lba, count); err != nil {
		return err
	}
	return p.disk.ReadSectors(p.first+lba, count, buf)
}

func (p *PartitionDevice) WriteSectors(lba uint64, count int, buf []byte) error {
	if err := p.check(lba, count); err != nil {
		return err
	}
	return p.disk.WriteSectors(p.first+lba, count, buf)
}

func (p *PartitionDevice) check(lba uint64, count int) error {
	if count < 0 || lba+uint64(count) > p.count {
		return errno.New(errno.EINVAL, "partition.io", nil)
	}
	return nil
}

// ReadAt adapts the partition to devfs's byte-addressed node
// contract; offsets must be sector aligned.
func (p *PartitionDevice) ReadAt(off int64, buf []byte) (int, error) {
	return blockReadAt(p, off, buf)
}

// WriteAt is the write-side devfs adapter.
func (p *PartitionDevice) WriteAt(off int64, buf []byte) (int, error) {
	return blockWriteAt(p, off, buf)
}

// blockReadAt/blockWriteAt bridge a sector device to the
// byte-addressed devfs ops, requiring sector alignment of both offset
// and length.
func blockReadAt(d block.Device, off int64, buf []byte) (int, error) {
	lba, count, err := sectorSpan(off, len(buf))
	if err != nil {
		return 0, err
	}
	if err := d.ReadSectors(lba, count, buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func blockWriteAt(d block.Device, off int64, buf []byte) (int, error) {
	lba, count, err := sectorSpan(off, len(buf))
	if err != nil {
		return 0, err
	}
	if err := d.WriteSectors(lba, count, buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func sectorSpan(off int64, n int) (lba uint64, count int, err error) {
	if off < 0 || off%block.SectorSize != 0 || n%block.SectorSize != 0 {
		return 0, 0, errno.New(errno.EINVAL, "block.span", nil)
	}
	return uint64(off / block.SectorSize), n / block.SectorSize, nil
}
