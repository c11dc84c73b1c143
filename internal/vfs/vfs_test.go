package vfs

import (
	"testing"

	"github.com/kitsunebsd/fkernel/internal/errno"
)

// testDir builds a minimal in-package directory node so vfs can be
// tested without pulling in a filesystem body.
func testDir(name string) *VNode {
	n := NewVNode(name, Directory, &testOps)
	n.Private = &[]*VNode{}
	return n
}

func testFile(name string) *VNode {
	return NewVNode(name, Regular, &testOps)
}

func children(n *VNode) *[]*VNode { return n.Private.(*[]*VNode) }

var testOps = Ops{
	Lookup: func(n *VNode, name string) (*VNode, error) {
		for _, c := range *children(n) {
			if c.Name == name {
				return c, nil
			}
		}
		return nil, errno.New(errno.ENOENT, "test.lookup", nil)
	},
}

func addChild(parent, child *VNode) {
	child.Parent = parent
	*children(parent) = append(*children(parent), child)
}

func TestLookupWalksComponents(t *testing.T) {
	root := testDir("root")
	etc := testDir("etc")
	conf := testFile("conf")
	addChild(root, etc)
	addChild(etc, conf)

	v := New()
	if err := v.Mount("/", root); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	n, err := v.Lookup("/etc/conf")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if n != conf {
		t.Fatalf("Lookup returned %q, want %q", n.Name, conf.Name)
	}
	n.Unref()
}

func TestLookupReturnsCountedReference(t *testing.T) {
	root := testDir("root")
	f := testFile("a")
	addChild(root, f)

	v := New()
	v.Mount("/", root)

	before := f.Refs()
	n1, err := v.Lookup("/a")
	if err != nil {
		t.Fatalf("first Lookup: %v", err)
	}
	n2, err := v.Lookup("/a")
	if err != nil {
		t.Fatalf("second Lookup: %v", err)
	}
	if n1 != n2 {
		t.Fatalf("two lookups of one path returned distinct nodes")
	}
	if got := f.Refs(); got != before+2 {
		t.Fatalf("refcount after two lookups = %d, want %d", got, before+2)
	}
	n1.Unref()
	n2.Unref()
	if got := f.Refs(); got != before {
		t.Fatalf("refcount after unrefs = %d, want %d", got, before)
	}
}

func TestLookupCrossesMountPoint(t *testing.T) {
	root := testDir("root")
	mnt := testDir("mnt")
	addChild(root, mnt)

	other := testDir("otherfs")
	inner := testFile("inner")
	addChild(other, inner)

	v := New()
	v.Mount("/", root)
	if err := v.Mount("/mnt", other); err != nil {
		t.Fatalf("Mount /mnt: %v", err)
	}

	n, err := v.Lookup("/mnt/inner")
	if err != nil {
		t.Fatalf("Lookup across mount: %v", err)
	}
	if n != inner {
		t.Fatalf("Lookup returned %q, want the mounted fs's node", n.Name)
	}
	n.Unref()
}

func TestMountOnFileFails(t *testing.T) {
	root := testDir("root")
	f := testFile("f")
	addChild(root, f)

	v := New()
	v.Mount("/", root)
	err := v.Mount("/f", testDir("fs"))
	if !errno.Is(err, errno.ENOTDIR) {
		t.Fatalf("Mount on a file = %v, want ENOTDIR", err)
	}
}

func TestLookupRelativePathRejected(t *testing.T) {
	v := New()
	v.Mount("/", testDir("root"))
	if _, err := v.Lookup("etc"); !errno.Is(err, errno.EINVAL) {
		t.Fatalf("relative Lookup = %v, want EINVAL", err)
	}
}

func TestFDNumbersStayDense(t *testing.T) {
	tbl := NewFDTable(0)
	n := testFile("f")

	var fds []int
	for i := 0; i < 3; i++ {
		fd, err := tbl.Allocate(n, ReadWrite)
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		fds = append(fds, fd)
	}
	if fds[0] != 0 || fds[1] != 1 || fds[2] != 2 {
		t.Fatalf("fds = %v, want 0 1 2", fds)
	}

	tbl.Close(fds[1])
	tbl.Close(fds[0])
	tbl.Close(fds[2])

	fd, err := tbl.Allocate(n, ReadWrite)
	if err != nil {
		t.Fatalf("Allocate after closes: %v", err)
	}
	if fd != 0 {
		t.Fatalf("fd after closing {0,1,2} = %d, want the minimum 0", fd)
	}
}

func TestFDCloseDropsReference(t *testing.T) {
	tbl := NewFDTable(0)
	n := testFile("f")
	before := n.Refs()

	fd, _ := tbl.Allocate(n, ReadOnly)
	if got := n.Refs(); got != before+1 {
		t.Fatalf("refcount after allocate = %d, want %d", got, before+1)
	}
	tbl.Close(fd)
	if got := n.Refs(); got != before {
		t.Fatalf("refcount after close = %d, want %d", got, before)
	}
}

func TestFDReadOnMissingOpIsENOSYS(t *testing.T) {
	tbl := NewFDTable(0)
	n := testFile("f") // testOps has no Read
	fd, _ := tbl.Allocate(n, ReadOnly)
	if _, err := tbl.Read(fd, make([]byte, 4)); !errno.Is(err, errno.ENOSYS) {
		t.Fatalf("Read without a read op = %v, want ENOSYS", err)
	}
}

func TestFDWriteNeedsWriteMode(t *testing.T) {
	tbl := NewFDTable(0)
	n := testFile("f")
	fd, _ := tbl.Allocate(n, ReadOnly)
	if _, err := tbl.Write(fd, []byte("x")); !errno.Is(err, errno.EPERM) {
		t.Fatalf("Write on a read-only fd = %v, want EPERM", err)
	}
}
