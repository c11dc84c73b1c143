// Package clock reads the CMOS real-time clock for wall-clock
// stamping. It is independent of whichever tick source (PIT or local
// APIC timer, see internal/timer) drives the scheduler's time slices:
// the tick counts scheduling quanta, the RTC answers what time it is.
package clock

import "github.com/kitsunebsd/fkernel/internal/cpu"

const (
	cmosIndexPort uint16 = 0x70
	cmosDataPort  uint16 = 0x71

	regSeconds  = 0x00
	regMinutes  = 0x02
	regHours    = 0x04
	regWeekday  = 0x06
	regDay      = 0x07
	regMonth    = 0x08
	regYear     = 0x09
	regCentury  = 0x32 // not present on all chipsets; treated best-effort
	regStatusA  = 0x0a
	regStatusB  = 0x0b
	statusAUIP  = 1 << 7
	statusBBCD  = 1 << 2
	statusB24Hr = 1 << 1

	// hourPMBit flags PM in the hour register when the chip runs in
	// 12-hour mode.
	hourPMBit = 0x80
)

// Time is a decoded CMOS reading. Year is always 2000 plus the
// two-digit year register; no century register is read.
type Time struct {
	Second, Minute, Hour uint8
	Day, Month           uint8
	Year                 uint16
}

func readReg(reg byte) byte {
	cpu.OutB(cmosIndexPort, reg)
	return cpu.InB(cmosDataPort)
}

func updateInProgress() bool {
	return readReg(regStatusA)&statusAUIP != 0
}

func bcdToBin(v byte) byte {
	return (v & 0x0f) + ((v >> 4) * 10)
}

// Read returns the current wall-clock time, retrying while the RTC's
// update-in-progress flag is set (the fields may be mid-update and
// inconsistent otherwise) and
// reading twice to confirm a stable result.
func Read() Time {
	var t Time
	for {
		for updateInProgress() {
			cpu.Pause()
		}
		t = readOnce()
		for updateInProgress() {
			cpu.Pause()
		}
		if t == readOnce() {
			break
		}
	}
	return t
}

func readOnce() Time {
	statusB := readReg(regStatusB)
	bcd := statusB&statusBBCD == 0
	hr24 := statusB&statusB24Hr != 0

	sec := readReg(regSeconds)
	min := readReg(regMinutes)
	hour := readReg(regHours)
	day := readReg(regDay)
	month := readReg(regMonth)
	year := readReg(regYear)

	// In 12-hour mode the hour register's top bit flags PM; strip it
	// before decoding in either encoding.
	pm := hour&hourPMBit != 0
	hour &^= hourPMBit

	if bcd {
		sec = bcdToBin(sec)
		min = bcdToBin(min)
		hour = bcdToBin(hour)
		day = bcdToBin(day)
		month = bcdToBin(month)
		year = bcdToBin(year)
	}

	if !hr24 {
		// 12 AM is hour 0, 12 PM stays 12.
		hour %= 12
		if pm {
			hour += 12
		}
	}

	return Time{
		Second: sec,
		Minute: min,
		Hour:   hour,
		Day:    day,
		Month:  month,
		Year:   2000 + uint16(year),
	}
}
