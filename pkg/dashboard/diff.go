package dashboard

import (
	"fmt"
	"math"
)

// Change is the difference between a current and a previous value.
type Change struct {
	Delta   int
	Percent float64

	// Known is false when there is no previous value or nothing changed.
	// Such changes are not displayed.
	Known bool
}

// Diff compares current with previous.
func Diff(current int, previous *int) Change {
	if previous == nil || current == *previous {
		return Change{}
	}
	c := Change{Delta: current - *previous, Known: true}
	if *previous != 0 {
		c.Percent = float64(c.Delta) / float64(*previous) * 100
	} else {
		c.Percent = math.Inf(1)
	}
	return c
}

// String formats the change as a signed number, or "" when unknown.
func (c Change) String() string {
	if !c.Known {
		return ""
	}
	return signed(c.Delta)
}

// PercentString formats the change as a signed percentage with one
// decimal, or "" when unknown or the previous value was zero.
func (c Change) PercentString() string {
	if !c.Known || math.IsInf(c.Percent, 0) {
		return ""
	}
	return fmt.Sprintf("%+.1f%%", c.Percent)
}

// signed formats n with thousands separators and an explicit sign.
func signed(n int) string {
	sign := "+"
	if n < 0 {
		sign = "-"
		n = -n
	}
	return sign + Thousands(n)
}

// Thousands formats n with comma separators.
func Thousands(n int) string {
	s := fmt.Sprint(n)
	neg := n < 0
	if neg {
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		return "-" + s
	}
	return s
}
