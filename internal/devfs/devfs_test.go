package devfs

import (
	"testing"

	"github.com/kitsunebsd/fkernel/internal/errno"
	"github.com/kitsunebsd/fkernel/internal/ramfs"
	"github.com/kitsunebsd/fkernel/internal/vfs"
)

func mountedAtDev(t *testing.T) (*vfs.VFS, *FS) {
	t.Helper()
	v := vfs.New()
	root := ramfs.New("ramfs")
	if err := v.Mount("/", root); err != nil {
		t.Fatalf("Mount /: %v", err)
	}
	dev, err := v.Lookup("/")
	if err != nil {
		t.Fatalf("Lookup /: %v", err)
	}
	if _, err := dev.CreateChild("dev", vfs.Directory); err != nil {
		t.Fatalf("mkdir /dev: %v", err)
	}
	dev.Unref()

	fs := New()
	if err := v.Mount("/dev", fs.Root()); err != nil {
		t.Fatalf("Mount /dev: %v", err)
	}
	return v, fs
}

func TestNullDiscardsAndEOFs(t *testing.T) {
	v, _ := mountedAtDev(t)

	n, err := v.Open("/dev/null", vfs.ReadWrite)
	if err != nil {
		t.Fatalf("Open /dev/null: %v", err)
	}
	defer n.Unref()

	if w, err := n.Write(0, []byte("discard me")); err != nil || w != 10 {
		t.Fatalf("Write = (%d, %v), want (10, nil)", w, err)
	}
	if r, err := n.Read(0, make([]byte, 8)); err != nil || r != 0 {
		t.Fatalf("Read = (%d, %v), want (0, nil)", r, err)
	}
}

func TestZeroFillsBuffer(t *testing.T) {
	v, _ := mountedAtDev(t)

	n, err := v.Open("/dev/zero", vfs.ReadOnly)
	if err != nil {
		t.Fatalf("Open /dev/zero: %v", err)
	}
	defer n.Unref()

	buf := []byte{1, 2, 3, 4}
	r, err := n.Read(0, buf)
	if err != nil || r != 4 {
		t.Fatalf("Read = (%d, %v), want (4, nil)", r, err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, b)
		}
	}
}

// fakeBlock is a registration-order test double.
type fakeBlock struct{ name string }

func (f fakeBlock) DeviceName() string { return f.name }

func (f fakeBlock) ReadAt(off int64, buf []byte) (int, error) {
	for i := range buf {
		buf[i] = byte(off) + byte(i)
	}
	return len(buf), nil
}

func TestDriverRegistrationAfterMount(t *testing.T) {
	v, fs := mountedAtDev(t)

	if err := fs.Register(fakeBlock{name: "ata0"}, vfs.BlockDevice); err != nil {
		t.Fatalf("Register: %v", err)
	}

	n, err := v.Open("/dev/ata0", vfs.ReadOnly)
	if err != nil {
		t.Fatalf("Open /dev/ata0: %v", err)
	}
	defer n.Unref()
	if n.Type != vfs.BlockDevice {
		t.Fatalf("node type = %v, want blockdev", n.Type)
	}

	buf := make([]byte, 3)
	if _, err := n.Read(5, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if buf[0] != 5 || buf[2] != 7 {
		t.Fatalf("device read produced %v, want offset pass-through", buf)
	}
}

func TestDuplicateRegistrationFails(t *testing.T) {
	fs := New()
	if err := fs.Register(fakeBlock{name: "dup"}, vfs.BlockDevice); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := fs.Register(fakeBlock{name: "dup"}, vfs.BlockDevice); !errno.Is(err, errno.EEXIST) {
		t.Fatalf("duplicate Register = %v, want EEXIST", err)
	}
}

func TestWriteOnReadOnlyDeviceIsENOSYS(t *testing.T) {
	v, fs := mountedAtDev(t)
	fs.Register(fakeBlock{name: "ro"}, vfs.BlockDevice)

	n, err := v.Open("/dev/ro", vfs.ReadWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer n.Unref()
	if _, err := n.Write(0, []byte("x")); !errno.Is(err, errno.ENOSYS) {
		t.Fatalf("Write on read-only driver = %v, want ENOSYS", err)
	}
}

func TestReadDirListsDevices(t *testing.T) {
	fs := New()
	entries, err := fs.Root().ReadDir()
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	if !names["null"] || !names["zero"] {
		t.Fatalf("devfs listing %v missing the null/zero pseudo-devices", entries)
	}
}
