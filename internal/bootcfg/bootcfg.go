// Package bootcfg reads the YAML boot manifest the hosted tools
// (cmd/mkimage, cmd/qtest) share: what goes into the boot image, how
// the disk is partitioned, and how the smoke-test boots it.
package bootcfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the top-level document.
type Manifest struct {
	// Kernel is the path of the kernel ELF built with the
	// freestanding tag.
	Kernel string `yaml:"kernel"`

	// Output is the disk image path mkimage writes.
	Output string `yaml:"output"`

	// MemoryMiB sizes the QEMU guest for smoke tests.
	MemoryMiB int `yaml:"memory_mib"`

	// TickHz is the scheduler tick rate the kernel is asked to
	// program.
	TickHz uint32 `yaml:"tick_hz"`

	// Files seeds the initial ramfs image: target path -> host source
	// file.
	Files map[string]string `yaml:"files"`

	// Partitions lays out the MBR of the produced disk image.
	Partitions []Partition `yaml:"partitions"`

	// QEMU configures the smoke-test runner.
	QEMU QEMU `yaml:"qemu"`
}

// Partition is one MBR entry in the manifest.
type Partition struct {
	Type     uint8  `yaml:"type"`
	Bootable bool   `yaml:"bootable"`
	FirstLBA uint32 `yaml:"first_lba"`
	Sectors  uint32 `yaml:"sectors"`
}

// QEMU holds smoke-test runner settings.
type QEMU struct {
	Binary  string `yaml:"binary"`
	Timeout int    `yaml:"timeout_seconds"`
	// Marker is the serial-log line that counts as a successful boot.
	Marker string `yaml:"marker"`
}

// Defaults fills in everything a minimal manifest may omit.
func (m *Manifest) Defaults() {
	if m.Output == "" {
		m.Output = "fkernel.img"
	}
	if m.MemoryMiB == 0 {
		m.MemoryMiB = 128
	}
	if m.TickHz == 0 {
		m.TickHz = 1000
	}
	if m.QEMU.Binary == "" {
		m.QEMU.Binary = "qemu-system-x86_64"
	}
	if m.QEMU.Timeout == 0 {
		m.QEMU.Timeout = 60
	}
	if m.QEMU.Marker == "" {
		m.QEMU.Marker = "early init complete"
	}
}

// Validate rejects manifests that cannot produce a bootable image.
func (m *Manifest) Validate() error {
	if m.Kernel == "" {
		return fmt.Errorf("bootcfg: manifest names no kernel ELF")
	}
	for i, p := range m.Partitions {
		if p.Sectors == 0 {
			return fmt.Errorf("bootcfg: partition %d has zero length", i)
		}
		for j, q := range m.Partitions[:i] {
			if overlaps(p, q) {
				return fmt.Errorf("bootcfg: partitions %d and %d overlap", j, i)
			}
		}
	}
	return nil
}

func overlaps(a, b Partition) bool {
	aEnd := uint64(a.FirstLBA) + uint64(a.Sectors)
	bEnd := uint64(b.FirstLBA) + uint64(b.Sectors)
	return uint64(a.FirstLBA) < bEnd && uint64(b.FirstLBA) < aEnd
}

// Load reads, decodes, defaults, and validates a manifest file.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bootcfg: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("bootcfg: parsing %s: %w", path, err)
	}
	m.Defaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
