// Package mbr parses the master boot record's partition table and
// layers per-partition block devices over the raw disk.
package mbr

import (
	"encoding/binary"

	"github.com/kitsunebsd/fkernel/internal/block"
	"github.com/kitsunebsd/fkernel/internal/errno"
)

const (
	// The partition table occupies bytes 446-509 of sector 0; the two
	// bytes after it must hold the boot signature.
	tableOffset   = 446
	entrySize     = 16
	NumPartitions = 4

	sigOffset = 510
	sigLow    = 0x55
	sigHigh   = 0xaa
)

// CHS is a legacy cylinder/head/sector coordinate, carried verbatim;
// LBA fields are authoritative.
type CHS struct {
	Head     uint8
	Sector   uint8 // low 6 bits; high 2 bits are cylinder bits 8-9
	Cylinder uint8 // cylinder bits 0-7
}

// Partition is one decoded table entry.
type Partition struct {
	Bootable bool
	Type     uint8
	FirstCHS CHS
	LastCHS  CHS
	FirstLBA uint32
	Sectors  uint32
}

// Empty reports whether the entry describes no partition.
func (p Partition) Empty() bool { return p.Type == 0 && p.Sectors == 0 }

// Parse decodes the four partition entries from a 512-byte boot
// sector. A missing 0x55 0xAA signature fails the whole parse. The
// result depends only on the sector contents, so reparsing the same
// sector always yields the same list.
func Parse(sector []byte) ([]Partition, error) {
	if len(sector) < block.SectorSize {
		return nil, errno.New(errno.EINVAL, "mbr.parse", nil)
	}
	if sector[sigOffset] != sigLow || sector[sigOffset+1] != sigHigh {
		return nil, errno.New(errno.EINVAL, "mbr.parse", nil)
	}

	var out []Partition
	for i := 0; i < NumPartitions; i++ {
		e := sector[tableOffset+i*entrySize : tableOffset+(i+1)*entrySize]
		p := Partition{
			Bootable: e[0] == 0x80,
			FirstCHS: CHS{Head: e[1], Sector: e[2], Cylinder: e[3]},
			Type:     e[4],
			LastCHS:  CHS{Head: e[5], Sector: e[6], Cylinder: e[7]},
			FirstLBA: binary.LittleEndian.Uint32(e[8:12]),
			Sectors:  binary.LittleEndian.Uint32(e[12:16]),
		}
		if p.Empty() {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Scan reads sector 0 of dev and returns its partitions.
func Scan(dev block.Device) ([]Partition, error) {
	buf := make([]byte, block.SectorSize)
	if err := dev.ReadSectors(0, 1, buf); err != nil {
		return nil, err
	}
	return Parse(buf)
}

// Encode writes the partition list back into a boot-sector image,
// zeroing unused entries and stamping the signature. Used by the
// hosted image-assembly tool; the kernel itself only reads partition
// tables.
func Encode(sector []byte, parts []Partition) error {
	if len(sector) < block.SectorSize || len(parts) > NumPartitions {
		return errno.New(errno.EINVAL, "mbr.encode", nil)
	}
	table := sector[tableOffset : tableOffset+NumPartitions*entrySize]
	clear(table)
	for i, p := range parts {
		e := table[i*entrySize : (i+1)*entrySize]
		if p.Bootable {
			e[0] = 0x80
		}
		e[1], e[2], e[3] = p.FirstCHS.Head, p.FirstCHS.Sector, p.FirstCHS.Cylinder
		e[4] = p.Type
		e[5], e[6], e[7] = p.LastCHS.Head, p.LastCHS.Sector, p.LastCHS.Cylinder
		binary.LittleEndian.PutUint32(e[8:12], p.FirstLBA)
		binary.LittleEndian.PutUint32(e[12:16], p.Sectors)
	}
	sector[sigOffset] = sigLow
	sector[sigOffset+1] = sigHigh
	return nil
}
