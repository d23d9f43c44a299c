package renewal

import "strings"

// Verdict is the single classified result of one run. Exactly one is produced
// per run across all exit paths.
type Verdict string

const (
	VerdictRenewed    Verdict = "renewed"
	VerdictAtCapacity Verdict = "at_capacity"
	VerdictCooldown   Verdict = "cooldown" // emitted by the eligibility short-circuit, never by ClassifyOutcome
	VerdictFailed     Verdict = "failed"
	VerdictError      Verdict = "error" // emitted by the orchestrator fault path, never by ClassifyOutcome
)

// DefaultCapacityThresholdHours is the accumulated-hours level at which the
// panel stops granting more time. Deployments have shipped both 108 and 120;
// the value is configuration, this is only the fallback.
const DefaultCapacityThresholdHours = 108

// limitMarkers are the response fragments the panel uses to reject a renewal
// that would exceed the accumulation cap ("No puedes renovar ... 5 días").
var limitMarkers = []string{"5 d", "limit reached"}

// Measurement captures one before/after observation of a renewal attempt.
// BeforeHours is read strictly before the mutating call and AfterHours
// strictly after the settle delay; the panel is eventually consistent, not
// transactional. When the post-action read failed transiently, the caller
// substitutes BeforeHours for AfterHours before classifying, which lands the
// run in VerdictFailed instead of crashing.
type Measurement struct {
	BeforeHours     int
	AfterHours      int
	ActionSucceeded bool
	ResponseText    string
}

// ClassifyOutcome maps a measurement to a verdict. Evaluation order encodes
// real-world precedence, first match wins:
//
//  1. renewed: the action reported success and hours measurably increased.
//  2. at_capacity: the response carries a limit marker, or the pre-action
//     level was already at or above the threshold.
//  3. failed: the action ran without fault but produced no increase below
//     the threshold. This is the needs-human-attention bucket.
//
// VerdictCooldown and VerdictError are reserved for the paths that never
// reach this function; keeping them in the same enum keeps verdict handling
// exhaustive across both detectors.
func ClassifyOutcome(m Measurement, thresholdHours int) Verdict {
	if thresholdHours <= 0 {
		thresholdHours = DefaultCapacityThresholdHours
	}
	if m.ActionSucceeded && m.AfterHours > m.BeforeHours {
		return VerdictRenewed
	}
	if hasLimitMarker(m.ResponseText) || m.BeforeHours >= thresholdHours {
		return VerdictAtCapacity
	}
	return VerdictFailed
}

func hasLimitMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range limitMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
