package klog

import (
	"strings"
	"testing"
)

type captureSink struct {
	lines []string
}

func (c *captureSink) Write(p []byte) (int, error) {
	c.lines = append(c.lines, string(p))
	return len(p), nil
}

func TestRecordShape(t *testing.T) {
	sink := &captureSink{}
	SetSink(sink)

	Infof("pmm", "registered %d frames", 42)
	if len(sink.lines) != 1 {
		t.Fatalf("got %d records, want 1", len(sink.lines))
	}
	line := sink.lines[0]
	if !strings.Contains(line, "[INFO] pmm: registered 42 frames") {
		t.Fatalf("record %q missing level/component/message", line)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("record %q not newline terminated", line)
	}
}

func TestSequenceNumbersAreMonotonic(t *testing.T) {
	sink := &captureSink{}
	SetSink(sink)

	Warnf("vfs", "first")
	Warnf("vfs", "second")
	if len(sink.lines) != 2 {
		t.Fatalf("got %d records, want 2", len(sink.lines))
	}
	n1 := seqOf(t, sink.lines[0])
	n2 := seqOf(t, sink.lines[1])
	if n2 <= n1 {
		t.Fatalf("sequence did not advance: %d then %d", n1, n2)
	}
}

func seqOf(t *testing.T, line string) int {
	t.Helper()
	var n int
	for i := 0; i < len(line) && line[i] >= '0' && line[i] <= '9'; i++ {
		n = n*10 + int(line[i]-'0')
	}
	if n == 0 {
		t.Fatalf("record %q has no leading sequence number", line)
	}
	return n
}
