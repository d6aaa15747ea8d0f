// Package billing prices parking sessions. The policy is tiered by the hour:
// the first hour or any part of it costs one rate unit and every further
// started hour adds another.
package billing

import (
	"fmt"
	"strings"
)

// DefaultRatePerHour is the facility tariff used when none is configured.
const DefaultRatePerHour int64 = 50

const secondsPerHour = 3600

// Policy carries the hourly rate. The zero value charges DefaultRatePerHour.
type Policy struct {
	RatePerHour int64
}

// NewPolicy returns a Policy for rate, falling back to DefaultRatePerHour
// when rate is not positive.
func NewPolicy(rate int64) Policy {
	if rate <= 0 {
		rate = DefaultRatePerHour
	}
	return Policy{RatePerHour: rate}
}

// Charge maps elapsed seconds to an amount. Zero elapsed time still consumes
// the first tier, so Charge(0) == Charge(3600) == R and Charge(3601) == 2R.
func (p Policy) Charge(elapsedSeconds int64) int64 {
	rate := p.RatePerHour
	if rate <= 0 {
		rate = DefaultRatePerHour
	}
	if elapsedSeconds < 1 {
		elapsedSeconds = 1
	}
	hours := (elapsedSeconds + secondsPerHour - 1) / secondsPerHour
	return rate * hours
}

// FormatDuration renders seconds for gate displays and statements:
// "45 seconds", "12 minutes 3 seconds", "2 hours 35 minutes".
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / secondsPerHour
	m := (seconds % secondsPerHour) / 60
	s := seconds % 60

	switch {
	case h == 0 && m == 0:
		return plural(s, "second")
	case h == 0:
		return strings.Join([]string{plural(m, "minute"), plural(s, "second")}, " ")
	default:
		return strings.Join([]string{plural(h, "hour"), plural(m, "minute")}, " ")
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
