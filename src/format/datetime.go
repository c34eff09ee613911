package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DisplayDateLayout = "2006-01-02"
	CompactDateLayout = "20060102"

	// Sub-second digits in display time.
	MicroDigits = 6
	MilliDigits = 3
)

// -----------------------------------------------------------------------------
// Dates
// -----------------------------------------------------------------------------

// ParseDate accepts YYYY-MM-DD, YYYY/MM/DD and YYYYMMDD and returns midnight UTC of that day.
func ParseDate(text string) (time.Time, error) {
	text = strings.TrimSpace(text)

	var layout string
	switch {
	case strings.Contains(text, "-"):
		layout = "2006-01-02"
	case strings.Contains(text, "/"):
		layout = "2006/01/02"
	case len(text) == 8 && isDigits(text):
		layout = CompactDateLayout
	default:
		return time.Time{}, fmt.Errorf("%w: %q, use YYYY-MM-DD, YYYY/MM/DD or YYYYMMDD", ErrInvalidDate, text)
	}

	t, err := time.Parse(layout, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, text)
	}
	return t, nil
}

// -----------------------------------------------------------------------------

// NormalizeDate turns a YYYYMMDD integer into "YYYY-MM-DD".
func NormalizeDate(raw int) (string, error) {
	t, err := dateFromInt(raw)
	if err != nil {
		return "", err
	}
	return t.Format(DisplayDateLayout), nil
}

// -----------------------------------------------------------------------------

// DenormalizeDate is the inverse of NormalizeDate.
func DenormalizeDate(display string) (int, error) {
	t, err := time.Parse(DisplayDateLayout, strings.TrimSpace(display))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDate, display)
	}
	return DateKey(t), nil
}

// -----------------------------------------------------------------------------

// DateKey encodes the calendar day of t as YYYYMMDD.
func DateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// -----------------------------------------------------------------------------

func dateFromInt(raw int) (time.Time, error) {
	if raw < 10000101 || raw > 99991231 {
		return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidDate, raw)
	}
	year, month, day := raw/10000, (raw/100)%100, raw%100
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidDate, raw)
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes Feb 30 into March; reject instead
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidDate, raw)
	}
	return t, nil
}

// -----------------------------------------------------------------------------
// Times
// -----------------------------------------------------------------------------

// FracDigitsFor guesses how many low digits of a raw time are sub-second.
// Backends emit either bare HHMMSS or HHMMSS followed by microseconds.
func FracDigitsFor(raw int64) int {
	if raw > 999999 {
		return MicroDigits
	}
	return 0
}

// -----------------------------------------------------------------------------

// NormalizeTime renders raw, whose low fracDigits digits are sub-second units,
// as "HH:MM:SS.ffffff". The fraction is right-padded or truncated to six digits;
// the seconds are never rounded.
func NormalizeTime(raw int64, fracDigits int) (string, error) {
	clock, frac, err := splitTime(raw, fracDigits)
	if err != nil {
		return "", err
	}
	return clock + "." + fitDigits(frac, MicroDigits), nil
}

// -----------------------------------------------------------------------------

// NormalizeTimeMillis is NormalizeTime truncated to "HH:MM:SS.fff".
func NormalizeTimeMillis(raw int64, fracDigits int) (string, error) {
	clock, frac, err := splitTime(raw, fracDigits)
	if err != nil {
		return "", err
	}
	return clock + "." + fitDigits(frac, MilliDigits), nil
}

// -----------------------------------------------------------------------------

// DenormalizeTime parses "HH:MM:SS" with an optional fraction back into
// HHMMSS followed by six sub-second digits.
func DenormalizeTime(display string) (int64, error) {
	display = strings.TrimSpace(display)
	clock, frac, _ := strings.Cut(display, ".")

	parts := strings.Split(clock, ":")
	if len(parts) != 3 || !isDigits(frac) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, display)
	}

	var hms [3]int64
	for i, p := range parts {
		if len(p) != 2 || !isDigits(p) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, display)
		}
		hms[i], _ = strconv.ParseInt(p, 10, 64)
	}
	if err := checkClock(hms[0], hms[1], hms[2]); err != nil {
		return 0, err
	}

	micro, _ := strconv.ParseInt(fitDigits(frac, MicroDigits), 10, 64)
	return (hms[0]*10000+hms[1]*100+hms[2])*1_000_000 + micro, nil
}

// -----------------------------------------------------------------------------

// ParseClock reads a time-of-day filter (HH:MM:SS, HHMMSS, HH:MM, HHMM or HH)
// and returns it as an HHMMSS integer.
func ParseClock(text string) (int, error) {
	digits := strings.ReplaceAll(strings.TrimSpace(text), ":", "")
	if !isDigits(digits) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, text)
	}

	switch len(digits) {
	case 6:
	case 4:
		digits += "00"
	case 2:
		digits += "0000"
	default:
		return 0, fmt.Errorf("%w: %q, use HH:MM:SS, HHMMSS, HH:MM, HHMM or HH", ErrInvalidTime, text)
	}

	n, _ := strconv.Atoi(digits)
	if err := checkClock(int64(n/10000), int64(n/100%100), int64(n%100)); err != nil {
		return 0, err
	}
	return n, nil
}

// -----------------------------------------------------------------------------

func splitTime(raw int64, fracDigits int) (string, string, error) {
	if raw < 0 || fracDigits < 0 || fracDigits > 18 {
		return "", "", fmt.Errorf("%w: %d", ErrInvalidTime, raw)
	}

	pow := int64(1)
	for i := 0; i < fracDigits; i++ {
		pow *= 10
	}
	hhmmss, sub := raw/pow, raw%pow

	h, m, s := hhmmss/10000, hhmmss/100%100, hhmmss%100
	if err := checkClock(h, m, s); err != nil {
		return "", "", fmt.Errorf("%w (raw %d)", err, raw)
	}

	frac := ""
	if fracDigits > 0 {
		frac = fmt.Sprintf("%0*d", fracDigits, sub)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s), frac, nil
}

// -----------------------------------------------------------------------------

func checkClock(h, m, s int64) error {
	if h < 0 || h > 23 || m < 0 || m > 59 || s < 0 || s > 59 {
		return fmt.Errorf("%w: %02d:%02d:%02d out of range", ErrInvalidTime, h, m, s)
	}
	return nil
}

// -----------------------------------------------------------------------------

// fitDigits right-pads with zeros or truncates to width.
func fitDigits(digits string, width int) string {
	if len(digits) >= width {
		return digits[:width]
	}
	return digits + strings.Repeat("0", width-len(digits))
}

// -----------------------------------------------------------------------------

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
