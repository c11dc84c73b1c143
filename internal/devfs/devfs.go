// Package devfs exposes device drivers as vnodes under /dev. Drivers
// register themselves by name after early init has mounted the
// filesystem; each registration becomes a character or block device
// node whose read/write pass through to the driver.
package devfs

import (
	"github.com/kitsunebsd/fkernel/internal/cpu"
	"github.com/kitsunebsd/fkernel/internal/errno"
	"github.com/kitsunebsd/fkernel/internal/interrupt"
	"github.com/kitsunebsd/fkernel/internal/klog"
	"github.com/kitsunebsd/fkernel/internal/vfs"
)

// Device is the driver side of a devfs node. A device supports reads
// by also implementing Reader and writes by implementing Writer; on a
// node whose device lacks one, that operation fails with ENOSYS.
type Device interface {
	DeviceName() string
}

// Reader is implemented by devices that support reads.
type Reader interface {
	ReadAt(off int64, buf []byte) (int, error)
}

// Writer is implemented by devices that support writes.
type Writer interface {
	WriteAt(off int64, buf []byte) (int, error)
}

// binding ties a devfs node to its driver.
type binding struct {
	dev Device
}

// FS is the devfs instance: one directory of device nodes.
type FS struct {
	root *vfs.VNode
}

// New builds an empty devfs with the null and zero pseudo-devices
// pre-registered.
func New() *FS {
	fs := &FS{}
	fs.root = vfs.NewVNode("devfs", vfs.Directory, &dirOps)
	fs.root.Private = &dirState{}
	fs.MustRegister(nullDevice{}, vfs.CharacterDevice)
	fs.MustRegister(zeroDevice{}, vfs.CharacterDevice)
	return fs
}

// Root returns the directory to mount at /dev.
func (fs *FS) Root() *vfs.VNode { return fs.root }

// Register adds a device node named after dev. Registration after
// mount is the normal case: drivers come up later in boot than the
// VFS.
func (fs *FS) Register(dev Device, typ vfs.NodeType) error {
	if typ != vfs.CharacterDevice && typ != vfs.BlockDevice {
		return errno.New(errno.EINVAL, "devfs.register", nil)
	}
	d := fs.root.Private.(*dirState)

	restore := cpu.IRQDisable()
	defer cpu.IRQRestore(restore)

	for _, c := range d.children {
		if c.Name == dev.DeviceName() {
			return errno.New(errno.EEXIST, "devfs.register", nil)
		}
	}
	n := vfs.NewVNode(dev.DeviceName(), typ, &nodeOps)
	n.Private = &binding{dev: dev}
	n.Parent = fs.root
	d.children = append(d.children, n)
	klog.Infof("devfs", "registered /dev/%s", dev.DeviceName())
	return nil
}

// MustRegister is Register for boot-time devices whose registration
// cannot collide; a failure is an init-order bug and halts.
func (fs *FS) MustRegister(dev Device, typ vfs.NodeType) {
	if err := fs.Register(dev, typ); err != nil {
		interrupt.Halt(nil, "devfs: register "+dev.DeviceName()+": "+err.Error())
	}
}

type dirState struct {
	children []*vfs.VNode
}

var dirOps = vfs.Ops{
	Lookup: func(n *vfs.VNode, name string) (*vfs.VNode, error) {
		d := n.Private.(*dirState)
		for _, c := range d.children {
			if c.Name == name {
				return c, nil
			}
		}
		return nil, errno.New(errno.ENOENT, "devfs.lookup", nil)
	},
	ReadDir: func(n *vfs.VNode) ([]vfs.DirEntry, error) {
		d := n.Private.(*dirState)
		out := make([]vfs.DirEntry, 0, len(d.children))
		for _, c := range d.children {
			out = append(out, vfs.DirEntry{Name: c.Name, Type: c.Type})
		}
		return out, nil
	},
}

var nodeOps = vfs.Ops{
	Read: func(n *vfs.VNode, off int64, buf []byte) (int, error) {
		b := n.Private.(*binding)
		r, ok := b.dev.(Reader)
		if !ok {
			return 0, errno.New(errno.ENOSYS, "devfs.read", nil)
		}
		return r.ReadAt(off, buf)
	},
	Write: func(n *vfs.VNode, off int64, buf []byte) (int, error) {
		b := n.Private.(*binding)
		w, ok := b.dev.(Writer)
		if !ok {
			return 0, errno.New(errno.ENOSYS, "devfs.write", nil)
		}
		return w.WriteAt(off, buf)
	},
}

// nullDevice discards writes and returns EOF on read.
type nullDevice struct{}

func (nullDevice) DeviceName() string { return "null" }

func (nullDevice) ReadAt(off int64, buf []byte) (int, error) { return 0, nil }

func (nullDevice) WriteAt(off int64, buf []byte) (int, error) { return len(buf), nil }

// zeroDevice yields an endless run of zero bytes and discards writes.
type zeroDevice struct{}

func (zeroDevice) DeviceName() string { return "zero" }

func (zeroDevice) ReadAt(off int64, buf []byte) (int, error) {
	clear(buf)
	return len(buf), nil
}

func (zeroDevice) WriteAt(off int64, buf []byte) (int, error) { return len(buf), nil }
