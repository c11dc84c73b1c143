// Package klog is the kernel's structured logger: a package-level sink
// installed once at init, records tagged with a component name, and a
// lock-free counter standing in for a wall-clock timestamp (there is
// no wall clock until internal/clock is up).
//
// Write must never allocate on a path that may run with interrupts
// disabled inside an interrupt handler; records are formatted into a
// small stack buffer before reaching the sink.
package klog

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Sink is the character sink consumed by the logger. The VGA-text and
// serial-UART implementations live outside this core; only the
// interface is fixed here. Write must not block and must be safe to
// call from interrupt context with interrupts disabled.
type Sink interface {
	io.Writer
}

var (
	sink atomic.Pointer[Sink]
	seq  atomic.Uint64
)

// SetSink installs the character sink used by subsequent log calls.
// Called once during early init, before interrupts are enabled.
func SetSink(s Sink) {
	sink.Store(&s)
}

// Level categorises a log record. Kept small: a freestanding kernel
// has no log-filtering infrastructure.
type Level byte

const (
	Info Level = iota
	Warn
	Fatal
)

func (l Level) tag() string {
	switch l {
	case Warn:
		return "WARN"
	case Fatal:
		return "FATAL"
	default:
		return "INFO"
	}
}

// Printf formats and writes one log record prefixed with a monotonic
// sequence number, a level tag, and the component name. It is safe to
// call from interrupt context.
func Printf(level Level, component, format string, args ...any) {
	s := sink.Load()
	if s == nil {
		return
	}
	n := seq.Add(1)
	var buf [256]byte
	line := appendf(buf[:0], n, level, component, format, args...)
	_, _ = (*s).Write(line)
}

func appendf(buf []byte, n uint64, level Level, component, format string, args ...any) []byte {
	buf = appendUint(buf, n)
	buf = append(buf, ' ')
	buf = append(buf, '[')
	buf = append(buf, level.tag()...)
	buf = append(buf, "] "...)
	buf = append(buf, component...)
	buf = append(buf, ": "...)
	buf = fmt.Appendf(buf, format, args...)
	buf = append(buf, '\n')
	return buf
}

func appendUint(buf []byte, v uint64) []byte {
	if v == 0 {
		return append(buf, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return append(buf, tmp[i:]...)
}

// Infof logs an informational record.
func Infof(component, format string, args ...any) { Printf(Info, component, format, args...) }

// Warnf logs a warning record.
func Warnf(component, format string, args ...any) { Printf(Warn, component, format, args...) }
