package ramfs

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kitsunebsd/fkernel/internal/vfs"
)

// Image format: how a ramfs tree is serialized into the initial
// filesystem blob cmd/mkimage embeds in the boot image and early init
// unpacks into the freshly-mounted root. One record per node, parents
// before children, depth-first:
//
//	magic   "RFS1"
//	record  kind(1) nameLen(2 LE) name dataLen(4 LE) data
//
// kind is 'd' (push directory), 'f' (file in the current directory),
// or 'u' (pop back to the parent directory). The stream ends at EOF
// with every directory popped.
const imageMagic = "RFS1"

const (
	recDir  = 'd'
	recFile = 'f'
	recUp   = 'u'
)

// WriteImage serializes the tree rooted at root (which must be a
// ramfs directory) to w.
func WriteImage(w io.Writer, root *vfs.VNode) error {
	if _, err := io.WriteString(w, imageMagic); err != nil {
		return err
	}
	return writeNode(w, root, true)
}

func writeNode(w io.Writer, n *vfs.VNode, isRoot bool) error {
	switch n.Type {
	case vfs.Directory:
		if !isRoot {
			if err := writeRecord(w, recDir, n.Name, nil); err != nil {
				return err
			}
		}
		d, err := dirOf(n)
		if err != nil {
			return err
		}
		for _, c := range d.children {
			if err := writeNode(w, c, false); err != nil {
				return err
			}
		}
		if !isRoot {
			return writeRecord(w, recUp, "", nil)
		}
		return nil
	case vfs.Regular:
		f, err := fileOf(n)
		if err != nil {
			return err
		}
		return writeRecord(w, recFile, n.Name, f.buf)
	default:
		// Device/special nodes never appear in an initial image.
		return nil
	}
}

func writeRecord(w io.Writer, kind byte, name string, data []byte) error {
	var hdr [7]byte
	hdr[0] = kind
	binary.LittleEndian.PutUint16(hdr[1:3], uint16(len(name)))
	binary.LittleEndian.PutUint32(hdr[3:7], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := io.WriteString(w, name); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ReadImage deserializes an image produced by WriteImage into a fresh
// ramfs tree and returns its root.
func ReadImage(r io.Reader) (*vfs.VNode, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("ramfs image: reading magic: %w", err)
	}
	if string(magic[:]) != imageMagic {
		return nil, fmt.Errorf("ramfs image: bad magic %q", magic[:])
	}

	root := New("ramfs")
	stack := []*vfs.VNode{root}
	for {
		kind, name, data, err := readRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		cur := stack[len(stack)-1]
		switch kind {
		case recDir:
			child, err := create(cur, name, vfs.Directory)
			if err != nil {
				return nil, fmt.Errorf("ramfs image: mkdir %q: %w", name, err)
			}
			stack = append(stack, child)
		case recFile:
			child, err := create(cur, name, vfs.Regular)
			if err != nil {
				return nil, fmt.Errorf("ramfs image: create %q: %w", name, err)
			}
			if len(data) > 0 {
				if _, err := write(child, 0, data); err != nil {
					return nil, fmt.Errorf("ramfs image: write %q: %w", name, err)
				}
			}
		case recUp:
			if len(stack) == 1 {
				return nil, fmt.Errorf("ramfs image: unbalanced directory pop")
			}
			stack = stack[:len(stack)-1]
		default:
			return nil, fmt.Errorf("ramfs image: unknown record kind %#x", kind)
		}
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("ramfs image: %d directories left unpopped", len(stack)-1)
	}
	return root, nil
}

func readRecord(r io.Reader) (kind byte, name string, data []byte, err error) {
	var hdr [7]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = fmt.Errorf("ramfs image: truncated record header")
		}
		return
	}
	kind = hdr[0]
	nameLen := binary.LittleEndian.Uint16(hdr[1:3])
	dataLen := binary.LittleEndian.Uint32(hdr[3:7])

	nb := make([]byte, nameLen)
	if _, err = io.ReadFull(r, nb); err != nil {
		err = fmt.Errorf("ramfs image: truncated name: %w", err)
		return
	}
	name = string(nb)

	data = make([]byte, dataLen)
	if _, err = io.ReadFull(r, data); err != nil {
		err = fmt.Errorf("ramfs image: truncated data for %q: %w", name, err)
		return
	}
	return
}
