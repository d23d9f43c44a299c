package renewal

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

var parseNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestParseRemainingHours(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"rfc3339 zulu", "2026-03-15T12:00:00Z", 120},
		{"fractional millis", "2026-03-15T12:00:00.202Z", 120},
		{"fractional nanos", "2026-03-15T12:00:00.123456789Z", 120},
		{"explicit offset", "2026-03-15T20:00:00+08:00", 120},
		{"space separated assumes utc", "2026-03-15 12:00:00", 120},
		{"slash date", "2026/03/15T12:00:00Z", 120},
		{"slash date space separated", "2026/03/15 12:00:00", 120},
		{"truncates toward zero", "2026-03-12T04:30:00Z", 40},
		{"under one hour", "2026-03-10T12:59:59Z", 0},
		{"expired clamps to zero", "2026-03-01T00:00:00Z", 0},
		{"empty", "", 0},
		{"whitespace only", "   ", 0},
		{"garbage", "not a timestamp", 0},
		{"bare date", "2026-03-15", 0},
		{"partial time", "2026-03-15T12", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseRemainingHours(tt.raw, parseNow); got != tt.want {
				t.Errorf("ParseRemainingHours(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

// All sub-second widths must agree with the offset-normalized equivalent.
func TestParseRemainingHours_FractionWidths(t *testing.T) {
	want := ParseRemainingHours("2026-03-15T12:00:00Z", parseNow)
	for width := 1; width <= 9; width++ {
		raw := fmt.Sprintf("2026-03-15T12:00:00.%sZ", strings.Repeat("7", width))
		if got := ParseRemainingHours(raw, parseNow); got != want {
			t.Errorf("width %d: got %d, want %d", width, got, want)
		}
	}
}

func TestParseRemainingHours_OffsetEquivalence(t *testing.T) {
	zulu := ParseRemainingHours("2026-03-20T00:00:00Z", parseNow)
	offset := ParseRemainingHours("2026-03-19T19:00:00-05:00", parseNow)
	if zulu != offset {
		t.Errorf("zulu=%d offset=%d, want equal", zulu, offset)
	}
}
