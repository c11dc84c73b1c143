package main

import (
	"debug/elf"
	"fmt"
	"log/slog"
	"os"
)

// loadKernel reads the kernel image and verifies it is something a
// Multiboot2 loader on this platform can start: a 64-bit x86 ELF
// executable with at least one loadable segment below the 4 GiB line
// the 32-bit loader stage can reach.
func loadKernel(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}

	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("kernel %s: %w", path, err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_X86_64 {
		return nil, fmt.Errorf("kernel %s: not an x86_64 ELF (class %v, machine %v)",
			path, f.Class, f.Machine)
	}
	if f.Entry == 0 {
		return nil, fmt.Errorf("kernel %s: no entry point", path)
	}

	loadable := 0
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		loadable++
		if p.Paddr >= 1<<32 {
			return nil, fmt.Errorf("kernel %s: load segment at %#x is beyond the loader's reach",
				path, p.Paddr)
		}
		slog.Debug("kernel load segment",
			"paddr", fmt.Sprintf("%#x", p.Paddr),
			"filesz", p.Filesz, "memsz", p.Memsz)
	}
	if loadable == 0 {
		return nil, fmt.Errorf("kernel %s: no loadable segments", path)
	}
	return raw, nil
}
