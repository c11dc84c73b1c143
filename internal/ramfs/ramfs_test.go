package ramfs

import (
	"bytes"
	"testing"

	"github.com/kitsunebsd/fkernel/internal/errno"
	"github.com/kitsunebsd/fkernel/internal/vfs"
)

func TestCreateWriteReadThroughDescriptors(t *testing.T) {
	v := vfs.New()
	if err := v.Mount("/", New("ramfs")); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	tbl := vfs.NewFDTable(0)

	f, err := v.CreateFile("/foo")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	f.Unref()

	n1, err := v.Open("/foo", vfs.ReadWrite)
	if err != nil {
		t.Fatalf("Open rw: %v", err)
	}
	fd1, err := tbl.Allocate(n1, vfs.ReadWrite)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	n1.Unref()

	wrote, err := tbl.Write(fd1, []byte("hello"))
	if err != nil || wrote != 5 {
		t.Fatalf("Write = (%d, %v), want (5, nil)", wrote, err)
	}
	if err := tbl.Close(fd1); err != nil {
		t.Fatalf("Close fd1: %v", err)
	}

	n2, err := v.Open("/foo", vfs.ReadOnly)
	if err != nil {
		t.Fatalf("Open ro: %v", err)
	}
	fd2, _ := tbl.Allocate(n2, vfs.ReadOnly)
	n2.Unref()

	buf := make([]byte, 5)
	read, err := tbl.Read(fd2, buf)
	if err != nil || read != 5 {
		t.Fatalf("Read = (%d, %v), want (5, nil)", read, err)
	}
	if string(buf) != "hello" {
		t.Fatalf("read back %q, want %q", buf, "hello")
	}
	tbl.Close(fd2)
}

func TestOpenWithCreateMakesFile(t *testing.T) {
	v := vfs.New()
	v.Mount("/", New("ramfs"))

	n, err := v.Open("/new", vfs.WriteOnly|vfs.Create)
	if err != nil {
		t.Fatalf("Open with Create: %v", err)
	}
	defer n.Unref()
	if n.Type != vfs.Regular {
		t.Fatalf("created node type = %v, want regular", n.Type)
	}
}

func TestWriteGrowsBuffer(t *testing.T) {
	root := New("ramfs")
	f, err := create(root, "f", vfs.Regular)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	fd := f.Private.(*fileData)
	if _, err := write(f, 0, []byte("a")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if fd.capa != minCapacity {
		t.Fatalf("capacity after first byte = %d, want the %d floor", fd.capa, minCapacity)
	}

	big := bytes.Repeat([]byte{0xab}, minCapacity+1)
	if _, err := write(f, 0, big); err != nil {
		t.Fatalf("write big: %v", err)
	}
	if fd.capa != minCapacity*2 {
		t.Fatalf("capacity after growth = %d, want doubled %d", fd.capa, minCapacity*2)
	}
	if f.Size != int64(len(big)) {
		t.Fatalf("size = %d, want %d", f.Size, len(big))
	}
}

func TestWriteAtOffsetPastEndZeroFills(t *testing.T) {
	root := New("ramfs")
	f, _ := create(root, "f", vfs.Regular)

	if _, err := write(f, 10, []byte("x")); err != nil {
		t.Fatalf("write at offset: %v", err)
	}
	buf := make([]byte, 11)
	n, _ := read(f, 0, buf)
	if n != 11 {
		t.Fatalf("read = %d, want 11", n)
	}
	for i := 0; i < 10; i++ {
		if buf[i] != 0 {
			t.Fatalf("gap byte %d = %#x, want 0", i, buf[i])
		}
	}
	if buf[10] != 'x' {
		t.Fatalf("byte 10 = %#x, want 'x'", buf[10])
	}
}

func TestReadPastEndIsEOF(t *testing.T) {
	root := New("ramfs")
	f, _ := create(root, "f", vfs.Regular)
	write(f, 0, []byte("abc"))

	n, err := read(f, 3, make([]byte, 4))
	if n != 0 || err != nil {
		t.Fatalf("read past end = (%d, %v), want (0, nil)", n, err)
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	root := New("ramfs")
	if _, err := create(root, "x", vfs.Regular); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := create(root, "x", vfs.Regular); !errno.Is(err, errno.EEXIST) {
		t.Fatalf("duplicate create = %v, want EEXIST", err)
	}
}

func TestUnlinkRemovesChild(t *testing.T) {
	root := New("ramfs")
	create(root, "x", vfs.Regular)
	if err := unlink(root, "x"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if _, err := lookup(root, "x"); !errno.Is(err, errno.ENOENT) {
		t.Fatalf("lookup after unlink = %v, want ENOENT", err)
	}
	if err := unlink(root, "x"); !errno.Is(err, errno.ENOENT) {
		t.Fatalf("second unlink = %v, want ENOENT", err)
	}
}

func TestImageRoundTrip(t *testing.T) {
	root := New("ramfs")
	etc, err := create(root, "etc", vfs.Directory)
	if err != nil {
		t.Fatalf("mkdir etc: %v", err)
	}
	conf, _ := create(etc, "motd", vfs.Regular)
	write(conf, 0, []byte("welcome\n"))
	top, _ := create(root, "boot.cfg", vfs.Regular)
	write(top, 0, []byte("tick_hz: 1000\n"))

	var buf bytes.Buffer
	if err := WriteImage(&buf, root); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}

	got, err := ReadImage(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}

	etc2, err := lookup(got, "etc")
	if err != nil {
		t.Fatalf("lookup etc: %v", err)
	}
	motd, err := lookup(etc2, "motd")
	if err != nil {
		t.Fatalf("lookup motd: %v", err)
	}
	out := make([]byte, 8)
	if n, _ := read(motd, 0, out); n != 8 || string(out) != "welcome\n" {
		t.Fatalf("motd contents = %q (%d bytes), want %q", out[:n], n, "welcome\n")
	}
}

func TestImageRejectsBadMagic(t *testing.T) {
	if _, err := ReadImage(bytes.NewReader([]byte("XXXX"))); err == nil {
		t.Fatalf("ReadImage accepted a bad magic")
	}
}
