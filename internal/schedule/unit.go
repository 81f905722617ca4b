package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinMinuteInterval is the shortest interval accepted when the unit is minutes.
const MinMinuteInterval = 15

// MaxInterval is the longest trigger period in any unit.
const MaxInterval = 365 * 24 * time.Hour

// ErrUnknownUnit is returned when a unit string is not minute, hour or day.
var ErrUnknownUnit = errors.New("schedule: unknown interval unit")

// Unit is the closed set of interval units a schedule can use.
type Unit int

const (
	UnitMinute Unit = iota + 1
	UnitHour
	UnitDay
)

// ParseUnit accepts the singular or plural unit name, case-insensitive.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minute", "minutes", "min", "m":
		return UnitMinute, nil
	case "hour", "hours", "h":
		return UnitHour, nil
	case "day", "days", "d":
		return UnitDay, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, s)
}

func (u Unit) String() string {
	switch u {
	case UnitMinute:
		return "minute"
	case UnitHour:
		return "hour"
	case UnitDay:
		return "day"
	}
	return fmt.Sprintf("unit(%d)", int(u))
}

// Valid reports whether u is one of the declared units.
func (u Unit) Valid() bool {
	return u >= UnitMinute && u <= UnitDay
}

// MaxValue is the largest value of u that fits in MaxInterval.
func (u Unit) MaxValue() int {
	step := u.step()
	if step <= 0 {
		return 0
	}
	return int(MaxInterval / step)
}

// Duration converts value units of u into a time.Duration. Values past
// MaxInterval saturate instead of overflowing.
func (u Unit) Duration(value int) time.Duration {
	step := u.step()
	if step == 0 {
		return 0
	}
	if value > u.MaxValue() {
		return MaxInterval
	}
	return time.Duration(value) * step
}

func (u Unit) step() time.Duration {
	switch u {
	case UnitMinute:
		return time.Minute
	case UnitHour:
		return time.Hour
	case UnitDay:
		return 24 * time.Hour
	}
	return 0
}

func (u Unit) MarshalText() ([]byte, error) {
	if !u.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownUnit, int(u))
	}
	return []byte(u.String()), nil
}

func (u *Unit) UnmarshalText(text []byte) error {
	parsed, err := ParseUnit(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
