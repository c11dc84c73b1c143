package segment

import "testing"

func TestBuildLayout(t *testing.T) {
	var tss TSS
	var table Table
	table.Build(&tss)

	if table.Limit() != numEntries*entrySize-1 {
		t.Fatalf("limit = %d, want %d", table.Limit(), numEntries*entrySize-1)
	}

	kernelCS := table.raw[SelectorKernelCS+5]
	if kernelCS&accessPresent == 0 {
		t.Fatalf("kernel CS descriptor not marked present")
	}
	if kernelCS&accessDPL3 != 0 {
		t.Fatalf("kernel CS descriptor must be DPL 0")
	}

	userCS := table.raw[SelectorUserCS+5]
	if userCS&accessDPL3 != accessDPL3 {
		t.Fatalf("user CS descriptor must be DPL 3")
	}

	tssAccess := table.raw[SelectorTSS+5]
	if tssAccess&accessPresent == 0 {
		t.Fatalf("TSS descriptor not marked present")
	}
	if tssAccess&0x0f != accessTSSType9 {
		t.Fatalf("TSS descriptor type = %#x, want %#x", tssAccess&0x0f, accessTSSType9)
	}

	gotLimit := uint32(table.raw[SelectorTSS]) | uint32(table.raw[SelectorTSS+1])<<8
	if gotLimit != tssSize-1 {
		t.Fatalf("TSS descriptor limit = %d, want %d", gotLimit, tssSize-1)
	}

	gotBase := uintptr(table.raw[SelectorTSS+2]) |
		uintptr(table.raw[SelectorTSS+3])<<8 |
		uintptr(table.raw[SelectorTSS+4])<<16 |
		uintptr(table.raw[SelectorTSS+7])<<24
	if gotBase != tss.Address()&0xffffffff {
		t.Fatalf("TSS descriptor base = %#x, want %#x", gotBase, tss.Address())
	}
}

func TestTSSSetIST(t *testing.T) {
	var tss TSS
	tss.SetIST(ISTNMI, 0xdead0000)
	if tss.IST[ISTNMI-1] != 0xdead0000 {
		t.Fatalf("IST[%d] = %#x, want 0xdead0000", ISTNMI-1, tss.IST[ISTNMI-1])
	}
}
