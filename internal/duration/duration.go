// Package duration accumulates edit time into a formatted duration string.
package duration

import (
	"math"
	"strings"
	"time"

	"github.com/starford/timethings/internal/timefmt"
)

// Increment adds tick to the duration stored in prev and renders the sum
// with layout, keeping every token ("00:00:05", never "5"). An empty or
// unparseable prev counts as zero; callers that must not reset a stored value
// check Valid first.
func Increment(prev string, tick time.Duration, layout string) string {
	base, err := timefmt.ParseDuration(strings.TrimSpace(prev), layout)
	if err != nil {
		base = 0
	}
	total := base + tick
	if tick > 0 && total < base {
		total = math.MaxInt64
	}
	return timefmt.FormatDuration(total, layout)
}

// Valid reports whether value parses as a duration under layout. An empty
// value is valid and stands for zero.
func Valid(value, layout string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return true
	}
	_, err := timefmt.ParseDuration(value, layout)
	return err == nil
}

// Zero renders an empty duration with layout.
func Zero(layout string) string {
	return timefmt.FormatDuration(0, layout)
}
