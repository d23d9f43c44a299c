// Package renewal holds the decision core for free-tier renewal runs:
// expiry parsing, cooldown detection, and outcome classification.
// Everything here is pure; all I/O lives in the panel and notify packages.
package renewal

import (
	"regexp"
	"strings"
	"time"
)

// The panel emits the renewal expiry through several code paths that disagree
// on formatting: fractional seconds of varying width, "Z" vs explicit offsets,
// slashes for dashes, and a space where RFC 3339 wants a "T". The parser
// absorbs all of that so nothing downstream ever branches on formatting.
var (
	fractionRe = regexp.MustCompile(`\.\d+`)
	offsetRe   = regexp.MustCompile(`(Z|[+-]\d{2}:\d{2})$`)
)

// ParseRemainingHours converts a raw expiry timestamp into whole hours left
// relative to now, truncated toward zero and clamped at 0. Absent or
// malformed input yields 0; the caller always gets a usable integer.
func ParseRemainingHours(raw string, now time.Time) int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}

	s = strings.ReplaceAll(s, "/", "-")
	s = fractionRe.ReplaceAllString(s, "")
	if !strings.ContainsRune(s, 'T') && strings.ContainsRune(s, ' ') {
		s = strings.Replace(s, " ", "T", 1)
	}
	if !offsetRe.MatchString(s) {
		// No offset means the panel produced a bare local form; it runs in UTC.
		s += "Z"
	}

	expiry, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}

	diff := expiry.Sub(now)
	if diff <= 0 {
		return 0
	}
	return int(diff / time.Hour)
}
