package kbd

import "testing"

// The decode path is exercised by feeding raw set-1 scancodes
// directly; the port-draining loop above it is a two-line wrapper
// over the i8042 status/data registers.

func press(k *Keyboard, code byte) {
	k.consume(code)
	k.consume(code | breakBit)
}

func readAll(k *Keyboard) string {
	buf := make([]byte, bufSize)
	n, _ := k.ReadAt(0, buf)
	return string(buf[:n])
}

func TestPlainKeys(t *testing.T) {
	k := New()
	press(k, 0x23) // h
	press(k, 0x12) // e
	press(k, 0x26) // l
	press(k, 0x26) // l
	press(k, 0x18) // o
	if got := readAll(k); got != "hello" {
		t.Fatalf("decoded %q, want %q", got, "hello")
	}
}

func TestShiftModifiesWhileHeld(t *testing.T) {
	k := New()
	k.consume(scanLeftShift) // shift down
	press(k, 0x1e)           // a -> A
	press(k, 0x02)           // 1 -> !
	k.consume(scanLeftShift | breakBit)
	press(k, 0x1e) // a again, unshifted
	if got := readAll(k); got != "A!a" {
		t.Fatalf("decoded %q, want %q", got, "A!a")
	}
}

func TestCapsLockLatchesLettersOnly(t *testing.T) {
	k := New()
	press(k, scanCapsLock)
	press(k, 0x1e) // a -> A
	press(k, 0x02) // 1 stays 1
	press(k, scanCapsLock)
	press(k, 0x1e) // a again
	if got := readAll(k); got != "A1a" {
		t.Fatalf("decoded %q, want %q", got, "A1a")
	}
}

func TestCapsAndShiftCancel(t *testing.T) {
	k := New()
	press(k, scanCapsLock)
	k.consume(scanLeftShift)
	press(k, 0x1e) // caps+shift -> lowercase
	k.consume(scanLeftShift | breakBit)
	if got := readAll(k); got != "a" {
		t.Fatalf("decoded %q, want %q", got, "a")
	}
}

func TestBreakCodesProduceNothing(t *testing.T) {
	k := New()
	k.consume(0x1e | breakBit)
	if k.Pending() != 0 {
		t.Fatalf("break code buffered %d chars, want 0", k.Pending())
	}
}

func TestExtendedPrefixSwallowed(t *testing.T) {
	k := New()
	k.consume(scanExtended)
	k.consume(0x48) // up arrow make
	k.consume(scanExtended)
	k.consume(0x48 | breakBit)
	if k.Pending() != 0 {
		t.Fatalf("extended key buffered %d chars, want 0", k.Pending())
	}
}

func TestRingBufferDropsWhenFull(t *testing.T) {
	k := New()
	for i := 0; i < bufSize+10; i++ {
		press(k, 0x1e)
	}
	if k.Pending() != bufSize-1 {
		t.Fatalf("pending = %d, want the %d-slot capacity", k.Pending(), bufSize-1)
	}
	// Drain and confirm the buffer is usable again.
	readAll(k)
	press(k, 0x30) // b
	if got := readAll(k); got != "b" {
		t.Fatalf("post-overflow decode %q, want %q", got, "b")
	}
}
