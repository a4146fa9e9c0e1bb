package timefmt

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Duration units. Months and years are fixed-length.
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

var durationUnits = map[byte]time.Duration{
	'y': Year, 'Y': Year,
	'M': Month,
	'w': Week, 'W': Week,
	'd': Day, 'D': Day,
	'h': time.Hour, 'H': time.Hour,
	'm': time.Minute,
	's': time.Second,
	'S': time.Millisecond,
}

// ErrDurationPattern is returned for patterns without any unit token.
var ErrDurationPattern = errors.New("timefmt: duration pattern has no unit tokens")

type durationToken struct {
	literal string
	unit    time.Duration
	width   int
}

func tokenizeDuration(pattern string) []durationToken {
	var out []durationToken
	for i := 0; i < len(pattern); {
		c := pattern[i]
		if c == '[' {
			if end := strings.IndexByte(pattern[i:], ']'); end > 0 {
				out = append(out, durationToken{literal: pattern[i+1 : i+end]})
				i += end + 1
				continue
			}
		}
		unit, ok := durationUnits[c]
		if !ok {
			out = append(out, durationToken{literal: pattern[i : i+1]})
			i++
			continue
		}
		j := i
		for j < len(pattern) && durationUnits[pattern[j]] == unit {
			j++
		}
		out = append(out, durationToken{unit: unit, width: j - i})
		i = j
	}
	return out
}

// ValidateDurationPattern reports whether pattern contains at least one unit.
func ValidateDurationPattern(pattern string) error {
	for _, tok := range tokenizeDuration(pattern) {
		if tok.unit > 0 {
			return nil
		}
	}
	return ErrDurationPattern
}

// FormatDuration renders d with every token of pattern kept, zero-padded to
// the token width ("HH:mm:ss" renders 5s as "00:00:05"). The largest unit
// absorbs overflow, so 100 hours render as "100:00:00". The smallest unit is
// rounded half away from zero. Negative durations render as zero.
func FormatDuration(d time.Duration, pattern string) string {
	tokens := tokenizeDuration(pattern)
	var units []time.Duration
	for _, tok := range tokens {
		if tok.unit > 0 {
			units = append(units, tok.unit)
		}
	}
	if len(units) == 0 {
		return pattern
	}
	units = sortedDesc(units)
	smallest := units[len(units)-1]

	d = max(d, 0)
	q, r := d/smallest, d%smallest
	if r >= smallest-r && q < math.MaxInt64/smallest {
		q++
	}
	total := q * smallest

	values := make(map[time.Duration]int64, len(units))
	remaining := total
	for _, u := range units {
		if _, done := values[u]; done {
			continue
		}
		values[u] = int64(remaining / u)
		remaining -= time.Duration(values[u]) * u
	}

	var b strings.Builder
	for _, tok := range tokens {
		if tok.unit == 0 {
			b.WriteString(tok.literal)
			continue
		}
		fmt.Fprintf(&b, "%0*d", tok.width, values[tok.unit])
	}
	return b.String()
}

// ParseDuration reads s according to pattern. The leading unit token accepts
// any number of digits; later ones accept up to their natural width (two
// digits, three for milliseconds) so "HHmmss" still splits. Literals must
// match exactly and the whole input must be consumed.
func ParseDuration(s, pattern string) (time.Duration, error) {
	tokens := tokenizeDuration(pattern)
	if err := ValidateDurationPattern(pattern); err != nil {
		return 0, err
	}
	var total time.Duration
	rest := s
	leading := true
	for _, tok := range tokens {
		if tok.unit == 0 {
			if !strings.HasPrefix(rest, tok.literal) {
				return 0, fmt.Errorf("timefmt: parse duration %q with %q: expected %q", s, pattern, tok.literal)
			}
			rest = rest[len(tok.literal):]
			continue
		}
		limit := len(rest)
		if !leading {
			limit = min(limit, max(tok.width, naturalWidth(tok.unit)))
		}
		leading = false
		n := 0
		for n < limit && rest[n] >= '0' && rest[n] <= '9' {
			n++
		}
		if n == 0 {
			return 0, fmt.Errorf("timefmt: parse duration %q with %q: expected digits", s, pattern)
		}
		v, err := strconv.ParseInt(rest[:n], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("timefmt: parse duration %q: %w", s, err)
		}
		if v > math.MaxInt64/int64(tok.unit) || time.Duration(v)*tok.unit > math.MaxInt64-total {
			return 0, fmt.Errorf("timefmt: parse duration %q: out of range", s)
		}
		total += time.Duration(v) * tok.unit
		rest = rest[n:]
	}
	if rest != "" {
		return 0, fmt.Errorf("timefmt: parse duration %q with %q: trailing %q", s, pattern, rest)
	}
	return total, nil
}

func naturalWidth(unit time.Duration) int {
	if unit == time.Millisecond {
		return 3
	}
	return 2
}

func sortedDesc(units []time.Duration) []time.Duration {
	out := slices.Clone(units)
	slices.SortFunc(out, func(a, b time.Duration) int { return cmp.Compare(b, a) })
	return out
}
