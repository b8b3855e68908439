package laptime

import (
	"cmp"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInvalidFormat      = errors.New("invalid time format, expected m:ss.ms")
	ErrSecondsOutOfBounds = errors.New("seconds out of bounds")
	ErrMinutesOutOfBounds = errors.New("minutes out of bounds")
)

// DefaultMillis is used when a time is entered without milliseconds.
const DefaultMillis = "999"

var timePattern = regexp.MustCompile(`^(\d{1,2}):(\d{1,2})(?:[.,:](\d{1,3}))?$`)

// LapTime is a validated lap time. The zero value is 0:00.000.
type LapTime struct {
	Minutes int
	Seconds int
	Millis  int
}

// Normalize parses a human entered lap time such as "1:5", "1:05.2" or
// "01:05,250" into its canonical form.
//
// Milliseconds are right-padded with nines, so "1:05.2" becomes 1:05.299 and a
// missing fraction becomes .999. Partial precision always ranks on the slow side.
func Normalize(raw string) (LapTime, error) {
	match := timePattern.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return LapTime{}, ErrInvalidFormat
	}

	millis := match[3]
	if millis == "" {
		millis = DefaultMillis
	}
	for len(millis) < 3 {
		millis += "9"
	}

	// The pattern guarantees digits, so Atoi cannot fail here.
	m, _ := strconv.Atoi(match[1])
	s, _ := strconv.Atoi(match[2])
	ms, _ := strconv.Atoi(millis)

	if s > 59 {
		return LapTime{}, ErrSecondsOutOfBounds
	}
	if m > 59 {
		return LapTime{}, ErrMinutesOutOfBounds
	}

	return LapTime{Minutes: m, Seconds: s, Millis: ms}, nil
}

// String renders the canonical M:SS.mmm form.
func (t LapTime) String() string {
	return fmt.Sprintf("%d:%02d.%03d", t.Minutes, t.Seconds, t.Millis)
}

// Compare returns -1, 0 or +1 ordering by minutes, seconds, then milliseconds.
func (t LapTime) Compare(other LapTime) int {
	if c := cmp.Compare(t.Minutes, other.Minutes); c != 0 {
		return c
	}
	if c := cmp.Compare(t.Seconds, other.Seconds); c != 0 {
		return c
	}
	return cmp.Compare(t.Millis, other.Millis)
}

// Less reports whether t is faster than other.
func (t LapTime) Less(other LapTime) bool {
	return t.Compare(other) < 0
}

func (t LapTime) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *LapTime) UnmarshalText(text []byte) error {
	parsed, err := Normalize(string(text))
	if err != nil {
		return fmt.Errorf("parse lap time %q: %w", string(text), err)
	}
	*t = parsed
	return nil
}
