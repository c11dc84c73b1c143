package vfs

import (
	"github.com/kitsunebsd/fkernel/internal/cpu"
	"github.com/kitsunebsd/fkernel/internal/errno"
)

// fdEntry is one descriptor slot: a strong vnode reference plus the
// per-descriptor cursor.
type fdEntry struct {
	vnode  *VNode
	flags  OpenFlags
	offset int64
	used   bool
}

// FDTable maps small dense non-negative integers to open vnodes.
// Allocate always returns the lowest free index, so closing {a,b,c}
// makes min(a,b,c) the next descriptor handed out.
type FDTable struct {
	entries []fdEntry
	limit   int
}

// NewFDTable builds a table that will grow on demand up to limit
// descriptors (0 means the default of 256).
func NewFDTable(limit int) *FDTable {
	if limit <= 0 {
		limit = 256
	}
	return &FDTable{limit: limit}
}

// Allocate binds a descriptor to vnode, taking a strong reference.
func (t *FDTable) Allocate(n *VNode, flags OpenFlags) (int, error) {
	restore := cpu.IRQDisable()
	defer cpu.IRQRestore(restore)

	for fd := range t.entries {
		if !t.entries[fd].used {
			t.entries[fd] = fdEntry{vnode: n.Ref(), flags: flags, used: true}
			return fd, nil
		}
	}
	if len(t.entries) >= t.limit {
		return -1, errno.New(errno.ENOMEM, "fd.allocate", nil)
	}
	t.entries = append(t.entries, fdEntry{vnode: n.Ref(), flags: flags, used: true})
	return len(t.entries) - 1, nil
}

// Close releases fd, dropping the table's vnode reference (which runs
// the close op if it was the last).
func (t *FDTable) Close(fd int) error {
	restore := cpu.IRQDisable()
	e, err := t.entry(fd)
	if err != nil {
		cpu.IRQRestore(restore)
		return err
	}
	n := e.vnode
	*e = fdEntry{}
	cpu.IRQRestore(restore)

	n.Unref()
	return nil
}

// Read fills buf from fd's vnode at the descriptor's offset, then
// advances the offset by the bytes transferred.
func (t *FDTable) Read(fd int, buf []byte) (int, error) {
	e, err := t.entry(fd)
	if err != nil {
		return 0, err
	}
	if e.flags&ReadOnly == 0 {
		return 0, errno.New(errno.EPERM, "fd.read", nil)
	}
	n, err := e.vnode.Read(e.offset, buf)
	e.offset += int64(n)
	return n, err
}

// Write stores buf into fd's vnode at the descriptor's offset, then
// advances the offset by the bytes transferred.
func (t *FDTable) Write(fd int, buf []byte) (int, error) {
	e, err := t.entry(fd)
	if err != nil {
		return 0, err
	}
	if e.flags&WriteOnly == 0 {
		return 0, errno.New(errno.EPERM, "fd.write", nil)
	}
	n, err := e.vnode.Write(e.offset, buf)
	e.offset += int64(n)
	return n, err
}

// Seek repositions fd's cursor to an absolute offset.
func (t *FDTable) Seek(fd int, offset int64) error {
	e, err := t.entry(fd)
	if err != nil {
		return err
	}
	if offset < 0 {
		return errno.New(errno.EINVAL, "fd.seek", nil)
	}
	e.offset = offset
	return nil
}

// VNode returns fd's underlying vnode without taking a reference.
func (t *FDTable) VNode(fd int) (*VNode, error) {
	e, err := t.entry(fd)
	if err != nil {
		return nil, err
	}
	return e.vnode, nil
}

func (t *FDTable) entry(fd int) (*fdEntry, error) {
	if fd < 0 || fd >= len(t.entries) || !t.entries[fd].used {
		return nil, errno.New(errno.EINVAL, "fd.lookup", nil)
	}
	return &t.entries[fd], nil
}
