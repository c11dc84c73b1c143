package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path"
	"sort"

	"golang.org/x/sys/unix"

	"github.com/kitsunebsd/fkernel/internal/block"
	"github.com/kitsunebsd/fkernel/internal/bootcfg"
	"github.com/kitsunebsd/fkernel/internal/mbr"
	"github.com/kitsunebsd/fkernel/internal/ramfs"
	"github.com/kitsunebsd/fkernel/internal/vfs"
)

// Image layout: sector 0 is the MBR; the payload header sector
// follows, locating the kernel and initial-ramfs blobs, each padded
// to a sector boundary. Partitions from the manifest occupy whatever
// space the manifest assigns them beyond the payload.
const (
	payloadHeaderLBA = 1
	payloadStartLBA  = 2

	payloadMagic = "FKIMG1"
)

// buildInitImage seeds a ramfs tree from the manifest's file map and
// serializes it.
func buildInitImage(files map[string]string) ([]byte, error) {
	root := ramfs.New("ramfs")

	// Create parents before children: sort paths so /etc sorts before
	// /etc/motd.
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, target := range paths {
		data, err := os.ReadFile(files[target])
		if err != nil {
			return nil, fmt.Errorf("initial ramfs: %w", err)
		}
		if err := seedFile(root, target, data); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := ramfs.WriteImage(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// seedFile creates target (and its intermediate directories) inside
// the ramfs tree and fills it with data.
func seedFile(root *vfs.VNode, target string, data []byte) error {
	dir := root
	clean := path.Clean("/" + target)
	parent, name := path.Split(clean)

	for _, comp := range splitComponents(parent) {
		child, err := dir.LookupChild(comp)
		if err != nil {
			child, err = dir.CreateChild(comp, vfs.Directory)
			if err != nil {
				return fmt.Errorf("initial ramfs: mkdir %s: %w", comp, err)
			}
		}
		dir = child
	}

	f, err := dir.CreateChild(name, vfs.Regular)
	if err != nil {
		return fmt.Errorf("initial ramfs: create %s: %w", clean, err)
	}
	if _, err := f.Write(0, data); err != nil {
		return fmt.Errorf("initial ramfs: write %s: %w", clean, err)
	}
	return nil
}

func splitComponents(p string) []string {
	var out []string
	for _, c := range bytes.Split([]byte(p), []byte("/")) {
		if len(c) > 0 {
			out = append(out, string(c))
		}
	}
	return out
}

// buildBootSector encodes the manifest's partition table into a
// 512-byte MBR.
func buildBootSector(parts []bootcfg.Partition) ([]byte, error) {
	sector := make([]byte, block.SectorSize)
	table := make([]mbr.Partition, 0, len(parts))
	for _, p := range parts {
		table = append(table, mbr.Partition{
			Bootable: p.Bootable,
			Type:     p.Type,
			FirstLBA: p.FirstLBA,
			Sectors:  p.Sectors,
		})
	}
	if err := mbr.Encode(sector, table); err != nil {
		return nil, fmt.Errorf("boot sector: %w", err)
	}
	return sector, nil
}

// writeImage lays the pieces out on disk and sizes the file to cover
// the last manifest partition.
func writeImage(m *bootcfg.Manifest, bootSec, kernel, initrd []byte) error {
	f, err := os.OpenFile(m.Output, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteAt(bootSec, 0); err != nil {
		return err
	}

	kernelLBA := uint64(payloadStartLBA)
	kernelSectors := sectorsFor(len(kernel))
	initrdLBA := kernelLBA + kernelSectors
	initrdSectors := sectorsFor(len(initrd))

	hdr := make([]byte, block.SectorSize)
	copy(hdr, payloadMagic)
	binary.LittleEndian.PutUint64(hdr[8:16], kernelLBA)
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(len(kernel)))
	binary.LittleEndian.PutUint64(hdr[24:32], initrdLBA)
	binary.LittleEndian.PutUint64(hdr[32:40], uint64(len(initrd)))
	if _, err := f.WriteAt(hdr, payloadHeaderLBA*block.SectorSize); err != nil {
		return err
	}

	if _, err := f.WriteAt(kernel, int64(kernelLBA)*block.SectorSize); err != nil {
		return err
	}
	if _, err := f.WriteAt(initrd, int64(initrdLBA)*block.SectorSize); err != nil {
		return err
	}

	// Size the image to the furthest extent of payload and partitions,
	// and make sure it hits the disk before a smoke test boots it.
	end := (initrdLBA + initrdSectors) * block.SectorSize
	for _, p := range m.Partitions {
		pEnd := (uint64(p.FirstLBA) + uint64(p.Sectors)) * block.SectorSize
		if pEnd > end {
			end = pEnd
		}
	}
	if err := unix.Ftruncate(int(f.Fd()), int64(end)); err != nil {
		return fmt.Errorf("sizing %s: %w", m.Output, err)
	}
	if err := unix.Fsync(int(f.Fd())); err != nil {
		return fmt.Errorf("syncing %s: %w", m.Output, err)
	}
	return nil
}

func sectorsFor(n int) uint64 {
	return uint64((n + block.SectorSize - 1) / block.SectorSize)
}
