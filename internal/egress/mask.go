package egress

import "strings"

// maskMarker replaces the middle of an address wherever an identity has to be
// surfaced in a log line or notification. Full-precision identities never
// leave this package once verification is configured.
const maskMarker = "***"

// Mask redacts an egress identity down to its first two and last segments:
// "203.0.113.57" → "203.0.***.57", "2001:db8:85a3:8d3:1319:8a2e:370:7348" →
// "2001:db8:***:7348". Values too short to mask meaningfully collapse to the
// marker alone.
func Mask(identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return maskMarker
	}
	if strings.Contains(identity, ":") {
		return maskParts(strings.Split(identity, ":"), ":")
	}
	if strings.Contains(identity, ".") {
		return maskParts(strings.Split(identity, "."), ".")
	}
	return maskMarker
}

func maskParts(parts []string, sep string) string {
	if len(parts) < 4 {
		// Showing first-two-plus-last of a three-part value reveals all of it.
		return maskMarker
	}
	return parts[0] + sep + parts[1] + sep + maskMarker + sep + parts[len(parts)-1]
}
