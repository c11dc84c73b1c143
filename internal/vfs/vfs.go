package vfs

import (
	"strings"

	"github.com/kitsunebsd/fkernel/internal/cpu"
	"github.com/kitsunebsd/fkernel/internal/errno"
	"github.com/kitsunebsd/fkernel/internal/klog"
)

// maxResolveDepth caps path component traversal, bounding symlink
// loops without full loop detection.
const maxResolveDepth = 40

// VFS is the mount tree root and the operations that walk it. There
// is one instance for the kernel; mutation of the mount table happens
// with interrupts disabled.
type VFS struct {
	root *VNode
}

// New returns a VFS with no root mounted.
func New() *VFS { return &VFS{} }

// Mount attaches fsRoot at path. Mounting at "/" installs the VFS
// root; any other path must resolve to an existing directory, which
// becomes a mount point whose lookups are redirected to fsRoot. The
// mount table holds a reference to fsRoot for the mount's lifetime.
func (v *VFS) Mount(path string, fsRoot *VNode) error {
	if fsRoot == nil || fsRoot.Type != Directory {
		return errno.New(errno.ENOTDIR, "vfs.mount", nil)
	}

	if path == "/" {
		restore := cpu.IRQDisable()
		v.root = fsRoot.Ref()
		cpu.IRQRestore(restore)
		klog.Infof("vfs", "mounted %s at /", fsRoot.Name)
		return nil
	}

	dir, err := v.Lookup(path)
	if err != nil {
		return err
	}
	if dir.Type != Directory {
		dir.Unref()
		return errno.New(errno.ENOTDIR, "vfs.mount", nil)
	}
	if dir.Mounted != nil {
		dir.Unref()
		return errno.New(errno.EEXIST, "vfs.mount", nil)
	}

	restore := cpu.IRQDisable()
	dir.Mounted = fsRoot.Ref()
	fsRoot.Parent = dir
	cpu.IRQRestore(restore)

	// The mount table's reference to the directory replaces the one
	// Lookup took; it is held until an unmount, which this core never
	// performs.
	klog.Infof("vfs", "mounted %s at %s", fsRoot.Name, path)
	return nil
}

// Lookup resolves an absolute path to a vnode, returning a counted
// reference the caller must Unref. Crossing a mount point substitutes
// the mounted filesystem's root.
func (v *VFS) Lookup(path string) (*VNode, error) {
	if v.root == nil {
		return nil, errno.New(errno.ENOENT, "vfs.lookup", nil)
	}
	if len(path) == 0 || path[0] != '/' {
		return nil, errno.New(errno.EINVAL, "vfs.lookup", nil)
	}

	cur := followMount(v.root)
	depth := 0
	for _, comp := range splitPath(path) {
		depth++
		if depth > maxResolveDepth {
			return nil, errno.New(errno.EINVAL, "vfs.lookup", nil)
		}
		next, err := cur.LookupChild(comp)
		if err != nil {
			return nil, err
		}
		cur = followMount(next)
	}
	return cur.Ref(), nil
}

// Open resolves path and runs the node's open op. With Create set and
// the final component missing, a regular file is created in the
// parent directory first.
func (v *VFS) Open(path string, flags OpenFlags) (*VNode, error) {
	n, err := v.Lookup(path)
	if err != nil {
		if flags&Create == 0 || !errno.Is(err, errno.ENOENT) {
			return nil, err
		}
		n, err = v.createAt(path)
		if err != nil {
			return nil, err
		}
	}
	if err := n.Open(flags); err != nil {
		n.Unref()
		return nil, err
	}
	return n, nil
}

// CreateFile makes a regular file at path; the parent directory must
// already exist. Returns a counted reference.
func (v *VFS) CreateFile(path string) (*VNode, error) {
	return v.createAt(path)
}

func (v *VFS) createAt(path string) (*VNode, error) {
	dirPath, name := splitDir(path)
	if name == "" {
		return nil, errno.New(errno.EINVAL, "vfs.create", nil)
	}
	dir, err := v.Lookup(dirPath)
	if err != nil {
		return nil, err
	}
	defer dir.Unref()
	child, err := followMount(dir).CreateChild(name, Regular)
	if err != nil {
		return nil, err
	}
	return child.Ref(), nil
}

// followMount redirects a mount-point directory to the root of the
// filesystem mounted on it.
func followMount(n *VNode) *VNode {
	for n.Mounted != nil {
		n = n.Mounted
	}
	return n
}

// splitPath breaks an absolute path into its non-empty components;
// "/" yields none.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			out = append(out, p)
		}
	}
	return out
}

// splitDir separates a path into its directory portion and final
// component.
func splitDir(path string) (dir, name string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "/", path
	}
	dir = path[:i]
	if dir == "" {
		dir = "/"
	}
	return dir, path[i+1:]
}
