// Package ramfs is the in-memory filesystem mounted at / during early
// init. Directories hold an ordered child list; regular files hold a
// growable byte buffer. All state lives in kernel heap memory and is
// lost at power-off.
package ramfs

import (
	"github.com/kitsunebsd/fkernel/internal/errno"
	"github.com/kitsunebsd/fkernel/internal/vfs"
)

// minCapacity is the smallest buffer a file grows into; growth beyond
// it doubles the capacity each time.
const minCapacity = 64

// fileData is the Private state of a regular file node.
type fileData struct {
	buf  []byte // len == file size
	capa int
}

// dirData is the Private state of a directory node.
type dirData struct {
	children []*vfs.VNode
}

var ops vfs.Ops

func init() {
	ops = vfs.Ops{
		Read:    read,
		Write:   write,
		Close:   close_,
		Lookup:  lookup,
		Create:  create,
		ReadDir: readDir,
		Unlink:  unlink,
	}
}

// New returns an empty ramfs root directory ready to mount.
func New(name string) *vfs.VNode {
	n := vfs.NewVNode(name, vfs.Directory, &ops)
	n.Private = &dirData{}
	return n
}

func dirOf(n *vfs.VNode) (*dirData, error) {
	d, ok := n.Private.(*dirData)
	if !ok {
		return nil, errno.New(errno.ENOTDIR, "ramfs", nil)
	}
	return d, nil
}

func fileOf(n *vfs.VNode) (*fileData, error) {
	f, ok := n.Private.(*fileData)
	if !ok {
		return nil, errno.New(errno.EINVAL, "ramfs", nil)
	}
	return f, nil
}

func lookup(n *vfs.VNode, name string) (*vfs.VNode, error) {
	d, err := dirOf(n)
	if err != nil {
		return nil, err
	}
	for _, c := range d.children {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, errno.New(errno.ENOENT, "ramfs.lookup", nil)
}

func create(n *vfs.VNode, name string, typ vfs.NodeType) (*vfs.VNode, error) {
	d, err := dirOf(n)
	if err != nil {
		return nil, err
	}
	for _, c := range d.children {
		if c.Name == name {
			return nil, errno.New(errno.EEXIST, "ramfs.create", nil)
		}
	}

	child := vfs.NewVNode(name, typ, &ops)
	switch typ {
	case vfs.Directory:
		child.Private = &dirData{}
	case vfs.Regular:
		child.Private = &fileData{}
	default:
		return nil, errno.New(errno.EINVAL, "ramfs.create", nil)
	}
	child.Parent = n
	d.children = append(d.children, child)
	return child, nil
}

func readDir(n *vfs.VNode) ([]vfs.DirEntry, error) {
	d, err := dirOf(n)
	if err != nil {
		return nil, err
	}
	out := make([]vfs.DirEntry, 0, len(d.children))
	for _, c := range d.children {
		out = append(out, vfs.DirEntry{Name: c.Name, Type: c.Type})
	}
	return out, nil
}

func unlink(n *vfs.VNode, name string) error {
	d, err := dirOf(n)
	if err != nil {
		return err
	}
	for i, c := range d.children {
		if c.Name != name {
			continue
		}
		d.children = append(d.children[:i], d.children[i+1:]...)
		c.Parent = nil
		c.Unref() // drop the directory's reference
		return nil
	}
	return errno.New(errno.ENOENT, "ramfs.unlink", nil)
}

func read(n *vfs.VNode, off int64, buf []byte) (int, error) {
	f, err := fileOf(n)
	if err != nil {
		return 0, err
	}
	if off >= int64(len(f.buf)) {
		return 0, nil
	}
	return copy(buf, f.buf[off:]), nil
}

func write(n *vfs.VNode, off int64, buf []byte) (int, error) {
	f, err := fileOf(n)
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, errno.New(errno.EINVAL, "ramfs.write", nil)
	}
	end := off + int64(len(buf))
	if end > int64(f.capa) {
		grow(f, int(end))
	}
	if end > int64(len(f.buf)) {
		f.buf = f.buf[:end]
	}
	copy(f.buf[off:], buf)
	n.Size = int64(len(f.buf))
	return len(buf), nil
}

// grow raises the file's capacity to at least want by doubling from
// the 64-byte floor, preserving contents.
func grow(f *fileData, want int) {
	capa := f.capa
	if capa < minCapacity {
		capa = minCapacity
	}
	for capa < want {
		capa *= 2
	}
	nb := make([]byte, len(f.buf), capa)
	copy(nb, f.buf)
	f.buf = nb
	f.capa = capa
}

func close_(n *vfs.VNode) error {
	// Dropping the last reference releases the buffer with the node;
	// nothing device-side to flush.
	return nil
}
