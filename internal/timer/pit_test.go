package timer

import "testing"

func TestDivisorFor(t *testing.T) {
	cases := []struct {
		hz   uint32
		want uint16
	}{
		{1000, 1193},
		{100, 11931},
		{DefaultHz, 1193},
		{18, 0},      // below the divisor range: 0 encodes 65536
		{0, 1193},    // unset falls back to the default rate
		{1193182, 1}, // at the oscillator rate the divisor floors at 1
		{2386364, 1}, // above it too
	}
	for _, c := range cases {
		if got := DivisorFor(c.hz); got != c.want {
			t.Errorf("DivisorFor(%d) = %d, want %d", c.hz, got, c.want)
		}
	}
}

func TestProgramRecordsRate(t *testing.T) {
	p := NewPIT()
	p.Program(1000)
	if p.Hz() != 1000 {
		t.Fatalf("Hz = %d, want 1000", p.Hz())
	}
	if p.divisor != 1193 {
		t.Fatalf("divisor = %d, want 1193", p.divisor)
	}
}
