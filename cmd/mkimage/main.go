// Command mkimage assembles a bootable disk image from a boot
// manifest: an MBR with the manifest's partition table, the kernel
// ELF, and a serialized initial ramfs, laid out so the loader stage
// can find each piece.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/kitsunebsd/fkernel/internal/bootcfg"
)

func main() {
	manifestPath := flag.String("manifest", "boot.yaml", "boot manifest path")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*manifestPath); err != nil {
		slog.Error("mkimage failed", "err", err)
		os.Exit(1)
	}
}

func run(manifestPath string) error {
	m, err := bootcfg.Load(manifestPath)
	if err != nil {
		return err
	}

	// The three inputs of the image are independent; build them
	// concurrently.
	var (
		kernel  []byte
		initrd  []byte
		bootSec []byte
	)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		kernel, err = loadKernel(m.Kernel)
		return err
	})
	g.Go(func() error {
		var err error
		initrd, err = buildInitImage(m.Files)
		return err
	})
	g.Go(func() error {
		var err error
		bootSec, err = buildBootSector(m.Partitions)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Debug("image inputs ready",
		"kernel_bytes", len(kernel), "initrd_bytes", len(initrd))

	if err := writeImage(m, bootSec, kernel, initrd); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d byte kernel, %d byte initial ramfs)\n",
		m.Output, len(kernel), len(initrd))
	return nil
}
