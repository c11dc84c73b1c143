// Command qtest boots a disk image produced by cmd/mkimage under
// QEMU and watches the serial console for the boot marker, failing
// if the marker does not appear before the manifest's timeout.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/kitsunebsd/fkernel/internal/bootcfg"
)

func main() {
	manifestPath := flag.String("manifest", "boot.yaml", "boot manifest path")
	showSerial := flag.Bool("serial", false, "echo every serial line")
	flag.Parse()

	if err := run(*manifestPath, *showSerial); err != nil {
		slog.Error("qtest failed", "err", err)
		os.Exit(1)
	}
}

func run(manifestPath string, showSerial bool) error {
	m, err := bootcfg.Load(manifestPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(m.Output); err != nil {
		return fmt.Errorf("boot image %s missing; run mkimage first: %w", m.Output, err)
	}

	timeout := time.Duration(m.QEMU.Timeout) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.QEMU.Binary,
		"-m", fmt.Sprintf("%d", m.MemoryMiB),
		"-drive", fmt.Sprintf("file=%s,format=raw,if=ide", m.Output),
		"-serial", "stdio",
		"-display", "none",
		"-no-reboot",
	)
	serial, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.QEMU.Binary, err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(fmt.Sprintf("booting %s", m.Output)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWriter(os.Stderr),
	)

	found := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(serial)
		for scanner.Scan() {
			line := scanner.Text()
			_ = bar.Add(1)
			if showSerial {
				fmt.Fprintln(os.Stderr, line)
			}
			if strings.Contains(line, m.QEMU.Marker) {
				found <- line
				return
			}
		}
	}()

	select {
	case line := <-found:
		_ = bar.Finish()
		fmt.Printf("\nboot marker seen: %q\n", line)
		return nil
	case <-ctx.Done():
		_ = bar.Finish()
		return fmt.Errorf("marker %q not seen within %s", m.QEMU.Marker, timeout)
	}
}
