package vmm

import (
	"testing"

	"github.com/kitsunebsd/fkernel/internal/pmm"
)

func newTestManager(t *testing.T) (*Manager, *pmm.Manager) {
	t.Helper()
	p := pmm.New()
	p.Init([]pmm.Range{{Base: 0, Length: 16 * 1024 * 1024}}, nil)
	m := New(p)
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return m, p
}

// TestMapTranslateRoundTrip mirrors Scenario C: map a page, translate
// it back, and confirm the physical address and flags survive.
func TestMapTranslateRoundTrip(t *testing.T) {
	m, p := newTestManager(t)

	phys, ok := p.AllocPage(pmm.NORMAL)
	if !ok {
		t.Fatal("AllocPage failed")
	}
	virt := uintptr(0x0000_7f00_0000_0000)

	if err := m.MapPage(virt, phys, Writable|NoExecute); err != nil {
		t.Fatalf("MapPage: %v", err)
	}

	gotPhys, gotFlags, ok := m.Translate(virt)
	if !ok {
		t.Fatal("Translate reported not mapped")
	}
	if gotPhys != phys {
		t.Fatalf("Translate phys = %#x, want %#x", gotPhys, phys)
	}
	if gotFlags&Writable == 0 {
		t.Error("Writable flag lost across round trip")
	}
	if gotFlags&NoExecute == 0 {
		t.Error("NoExecute flag lost across round trip")
	}
}

func TestUnmapClearsTranslation(t *testing.T) {
	m, p := newTestManager(t)
	phys, _ := p.AllocPage(pmm.NORMAL)
	virt := uintptr(0x0000_7f00_0010_0000)

	if err := m.MapPage(virt, phys, Writable); err != nil {
		t.Fatalf("MapPage: %v", err)
	}
	if err := m.UnmapPage(virt); err != nil {
		t.Fatalf("UnmapPage: %v", err)
	}
	if _, _, ok := m.Translate(virt); ok {
		t.Fatal("Translate still reports mapped after UnmapPage")
	}
}

func TestTranslateUnmappedFails(t *testing.T) {
	m, _ := newTestManager(t)
	if _, _, ok := m.Translate(0x0000_1234_0000_0000); ok {
		t.Fatal("Translate succeeded on a never-mapped address")
	}
}

func TestMapRangeCoversEveryPage(t *testing.T) {
	m, p := newTestManager(t)
	phys, _ := p.AllocContiguous(14, pmm.NORMAL) // 16 KiB, 4 pages
	virt := uintptr(0x0000_7f00_0020_0000)

	if err := m.MapRange(virt, phys, 4*pmm.FrameSize, Writable); err != nil {
		t.Fatalf("MapRange: %v", err)
	}
	for i := 0; i < 4; i++ {
		off := uintptr(i) * pmm.FrameSize
		got, _, ok := m.Translate(virt + off)
		if !ok || got != phys+off {
			t.Fatalf("page %d: Translate = %#x, %v; want %#x, true", i, got, ok, phys+off)
		}
	}
}

func TestInitIdentityMapsLowMemory(t *testing.T) {
	p := pmm.New()
	p.Init([]pmm.Range{{Base: 0, Length: 8 * 1024 * 1024}}, nil)
	m := New(p)
	if err := m.InitIdentity(4 * 1024 * 1024); err != nil {
		t.Fatalf("InitIdentity: %v", err)
	}

	for _, virt := range []uintptr{0, 0x200000, 0x3ff000} {
		phys, flags, ok := m.Translate(virt)
		if !ok || phys != virt {
			t.Fatalf("Translate(%#x) = %#x, %v; want identity", virt, phys, ok)
		}
		if flags&Writable == 0 {
			t.Fatalf("identity mapping at %#x not writable", virt)
		}
	}
	if _, _, ok := m.Translate(0x400000); ok {
		t.Fatal("Translate succeeded past the identity limit")
	}
}
