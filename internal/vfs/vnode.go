// Package vfs is the virtual filesystem layer: a tree of reference
// counted vnodes with per-filesystem operation tables, a mount table,
// absolute path resolution, and the file-descriptor table syscalls
// would index into. Filesystem bodies (internal/ramfs,
// internal/devfs) plug in by populating Ops on their nodes.
package vfs

import (
	"github.com/kitsunebsd/fkernel/internal/cpu"
	"github.com/kitsunebsd/fkernel/internal/errno"
)

// NodeType classifies a vnode.
type NodeType int

const (
	Unknown NodeType = iota
	Regular
	Directory
	Symlink
	CharacterDevice
	BlockDevice
	Socket
	FIFO
)

func (t NodeType) String() string {
	switch t {
	case Regular:
		return "regular"
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	case CharacterDevice:
		return "chardev"
	case BlockDevice:
		return "blockdev"
	case Socket:
		return "socket"
	case FIFO:
		return "fifo"
	default:
		return "unknown"
	}
}

// OpenFlags select the access mode of an open.
type OpenFlags int

const (
	ReadOnly  OpenFlags = 1 << 0
	WriteOnly OpenFlags = 1 << 1
	ReadWrite           = ReadOnly | WriteOnly
	Create    OpenFlags = 1 << 2
)

// DirEntry is one name in a directory listing.
type DirEntry struct {
	Name string
	Type NodeType
}

// Ops is a vnode's capability table. A filesystem populates only the
// operations it supports; a nil entry makes the corresponding
// operation fail with ENOSYS.
type Ops struct {
	Read    func(n *VNode, off int64, buf []byte) (int, error)
	Write   func(n *VNode, off int64, buf []byte) (int, error)
	Open    func(n *VNode, flags OpenFlags) error
	Close   func(n *VNode) error
	Lookup  func(n *VNode, name string) (*VNode, error)
	Create  func(n *VNode, name string, typ NodeType) (*VNode, error)
	ReadDir func(n *VNode) ([]DirEntry, error)
	Unlink  func(n *VNode, name string) error
}

// VNode is one filesystem object. It is shared: its parent directory,
// any open descriptor, and a mount table entry all hold counted
// references; the last Unref runs the close op. Parent is a
// non-owning back pointer so the parent/child cycle never keeps a
// subtree alive.
type VNode struct {
	Name string
	Type NodeType
	Perm uint16
	Size int64

	Ops *Ops

	Parent  *VNode
	Mounted *VNode // set on a directory that is a mount point

	// Private carries the owning filesystem's per-node state (a ramfs
	// buffer, a devfs device binding).
	Private any

	refs int
}

// NewVNode returns a node with one reference, owned by the caller.
func NewVNode(name string, typ NodeType, ops *Ops) *VNode {
	return &VNode{Name: name, Type: typ, Ops: ops, refs: 1}
}

// Ref takes another counted reference.
func (n *VNode) Ref() *VNode {
	restore := cpu.IRQDisable()
	n.refs++
	cpu.IRQRestore(restore)
	return n
}

// Unref drops one reference; on the last drop the node's close op
// runs and the node must not be used again.
func (n *VNode) Unref() {
	restore := cpu.IRQDisable()
	n.refs--
	last := n.refs == 0
	cpu.IRQRestore(restore)

	if last && n.Ops != nil && n.Ops.Close != nil {
		_ = n.Ops.Close(n)
	}
}

// Refs reports the live reference count.
func (n *VNode) Refs() int {
	restore := cpu.IRQDisable()
	defer cpu.IRQRestore(restore)
	return n.refs
}

// Read delegates to the capability table.
func (n *VNode) Read(off int64, buf []byte) (int, error) {
	if n.Ops == nil || n.Ops.Read == nil {
		return 0, errno.New(errno.ENOSYS, "vfs.read", nil)
	}
	return n.Ops.Read(n, off, buf)
}

// Write delegates to the capability table.
func (n *VNode) Write(off int64, buf []byte) (int, error) {
	if n.Ops == nil || n.Ops.Write == nil {
		return 0, errno.New(errno.ENOSYS, "vfs.write", nil)
	}
	return n.Ops.Write(n, off, buf)
}

// Open delegates to the capability table; filesystems without an open
// op accept every open.
func (n *VNode) Open(flags OpenFlags) error {
	if n.Ops == nil || n.Ops.Open == nil {
		return nil
	}
	return n.Ops.Open(n, flags)
}

// LookupChild resolves one name in this directory.
func (n *VNode) LookupChild(name string) (*VNode, error) {
	if n.Type != Directory {
		return nil, errno.New(errno.ENOTDIR, "vfs.lookup", nil)
	}
	if n.Ops == nil || n.Ops.Lookup == nil {
		return nil, errno.New(errno.ENOSYS, "vfs.lookup", nil)
	}
	return n.Ops.Lookup(n, name)
}

// CreateChild makes a new entry in this directory.
func (n *VNode) CreateChild(name string, typ NodeType) (*VNode, error) {
	if n.Type != Directory {
		return nil, errno.New(errno.ENOTDIR, "vfs.create", nil)
	}
	if n.Ops == nil || n.Ops.Create == nil {
		return nil, errno.New(errno.ENOSYS, "vfs.create", nil)
	}
	return n.Ops.Create(n, name, typ)
}

// ReadDir lists this directory.
func (n *VNode) ReadDir() ([]DirEntry, error) {
	if n.Type != Directory {
		return nil, errno.New(errno.ENOTDIR, "vfs.readdir", nil)
	}
	if n.Ops == nil || n.Ops.ReadDir == nil {
		return nil, errno.New(errno.ENOSYS, "vfs.readdir", nil)
	}
	return n.Ops.ReadDir(n)
}

// UnlinkChild removes a name from this directory.
func (n *VNode) UnlinkChild(name string) error {
	if n.Type != Directory {
		return errno.New(errno.ENOTDIR, "vfs.unlink", nil)
	}
	if n.Ops == nil || n.Ops.Unlink == nil {
		return errno.New(errno.ENOSYS, "vfs.unlink", nil)
	}
	return n.Ops.Unlink(n, name)
}
