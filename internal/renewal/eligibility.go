package renewal

import (
	"regexp"
	"strings"
)

// cooldownMarker is the token the panel renders into the renew button while a
// cooldown is active ("Wait 12h 15m", "Wait 45 minutes", ...).
const cooldownMarker = "Wait"

var waitRe = regexp.MustCompile(`Wait\s+([0-9][\w\s]*)`)

// Signal bundles the three independent eligibility sources the panel exposes.
// CanRenew comes from the contract API and may lag; RemainingHours is derived
// from the expiry timestamp; ButtonText is the rendered affordance and is
// always present. They disagree during transitions, which is why eligibility
// is decided here with a fixed precedence instead of ad hoc conditionals.
type Signal struct {
	CanRenew       *bool // nil when the API omitted the field
	RemainingHours *int  // nil when no expiry timestamp was available
	ButtonText     string
}

// State is the eligibility determination for a run.
type State string

const (
	Eligible    State = "eligible"
	CoolingDown State = "cooling_down"
)

// Eligibility is the merged verdict. WaitHint carries a human-readable
// remaining-wait estimate when one could be extracted from the button text;
// it is empty otherwise, never fabricated.
type Eligibility struct {
	State    State
	WaitHint string
}

// Classify reconciles the signals. Precedence, first match wins:
//
//  1. CanRenew present and false → cooling down. The API explicitly said no.
//  2. Button text carries the cooldown marker → cooling down. The rendered
//     affordance reflects the freshest server-side state, so it overrides a
//     stale CanRenew=true.
//  3. Otherwise eligible.
func Classify(sig Signal) Eligibility {
	if sig.CanRenew != nil && !*sig.CanRenew {
		return Eligibility{State: CoolingDown, WaitHint: waitHint(sig.ButtonText)}
	}
	if strings.Contains(sig.ButtonText, cooldownMarker) {
		return Eligibility{State: CoolingDown, WaitHint: waitHint(sig.ButtonText)}
	}
	return Eligibility{State: Eligible}
}

// waitHint pulls the countdown out of button text like "Wait 12h 15m". When
// the marker is present but the quantity cannot be extracted, the raw text is
// surfaced verbatim rather than inventing a number.
func waitHint(text string) string {
	if !strings.Contains(text, cooldownMarker) {
		return ""
	}
	if m := waitRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}
