// Package duration parses the compact week/day/hour/minute/second durations
// used by poll and giveaway commands, e.g. "1w2d", "90m" or "1h30m15s".
package duration

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is returned for input that does not follow the duration grammar.
var ErrInvalid = errors.New("invalid duration")

var pattern = regexp.MustCompile(`(?i)^(?:(\d+)w)?(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

var units = [...]time.Duration{week, day, time.Hour, time.Minute, time.Second}

// Parse converts s into a time.Duration. Components must appear in the order
// w, d, h, m, s; each is optional but at least one must be present.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	m := pattern.FindStringSubmatch(s)
	if s == "" || m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}

	var total time.Duration
	for i, unit := range units {
		raw := m[i+1]
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n > int64(math.MaxInt64/unit) {
			return 0, fmt.Errorf("%w: %q is too large", ErrInvalid, s)
		}
		part := time.Duration(n) * unit
		if total > math.MaxInt64-part {
			return 0, fmt.Errorf("%w: %q is too large", ErrInvalid, s)
		}
		total += part
	}
	return total, nil
}

// Format renders d in the same grammar Parse accepts, omitting zero
// components. Sub-second precision is truncated.
func Format(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	var b strings.Builder
	for i, unit := range units {
		n := d / unit
		if n == 0 {
			continue
		}
		d -= n * unit
		b.WriteString(strconv.FormatInt(int64(n), 10))
		b.WriteByte("wdhms"[i])
	}
	return b.String()
}
