// Command fsck-ram checks a serialized ramfs image offline: it
// decodes the tree, walks every node, and reports totals or the
// first corruption it hits.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/kitsunebsd/fkernel/internal/ramfs"
	"github.com/kitsunebsd/fkernel/internal/vfs"
)

func main() {
	list := flag.Bool("l", false, "list every node")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: fsck-ram [-l] <image>")
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *list); err != nil {
		slog.Error("fsck-ram failed", "err", err)
		os.Exit(1)
	}
}

func run(path string, list bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	root, err := ramfs.ReadImage(f)
	if err != nil {
		return err
	}

	var files, dirs int
	var bytes int64
	if err := walk(root, "/", list, &files, &dirs, &bytes); err != nil {
		return err
	}
	fmt.Printf("%s: ok — %d directories, %d files, %d bytes\n", path, dirs, files, bytes)
	return nil
}

func walk(n *vfs.VNode, where string, list bool, files, dirs *int, bytes *int64) error {
	switch n.Type {
	case vfs.Directory:
		*dirs++
		entries, err := n.ReadDir()
		if err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		for _, e := range entries {
			child, err := n.LookupChild(e.Name)
			if err != nil {
				return fmt.Errorf("%s: entry %q listed but not resolvable: %w", where, e.Name, err)
			}
			if child.Parent != n {
				return fmt.Errorf("%s/%s: parent pointer does not match containing directory", where, e.Name)
			}
			childPath := where + e.Name
			if child.Type == vfs.Directory {
				childPath += "/"
			}
			if err := walk(child, childPath, list, files, dirs, bytes); err != nil {
				return err
			}
		}
	case vfs.Regular:
		*files++
		*bytes += n.Size
		// Confirm the advertised size is actually readable.
		buf := make([]byte, n.Size)
		got, err := n.Read(0, buf)
		if err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		if int64(got) != n.Size {
			return fmt.Errorf("%s: size %d but only %d bytes readable", where, n.Size, got)
		}
	default:
		return fmt.Errorf("%s: unexpected node type %v in an image", where, n.Type)
	}
	if list {
		fmt.Printf("%-9s %8d %s\n", n.Type, n.Size, where)
	}
	return nil
}
