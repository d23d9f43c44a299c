// Package egress verifies that the network egress identity actually in effect
// matches the configured expectation before any credentialed work starts.
// Verification is opt-in; once configured it fails closed, and both sides of
// a failed comparison are redacted before they surface anywhere.
package egress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultProbeTimeout = 15 * time.Second

// ipv6MatchGroups is how many leading colon-delimited groups must agree for
// two IPv6 addresses to count as the same egress. The trailing groups vary
// across connection instances to the same endpoint.
const ipv6MatchGroups = 4

// ProbeFunc reports the currently observed egress identity. The orchestrator
// wires this to an ip-echo read performed over the same path the credentialed
// traffic will use, so the check observes the path it is guarding.
type ProbeFunc func(ctx context.Context) (string, error)

// Result records one identity check. Expected is empty when no verification
// was configured, in which case the check trivially passes without probing.
type Result struct {
	Observed string
	Expected string
	Matched  bool
}

// MismatchError means the probe answered with an identity that does not match
// the expectation. It carries only masked forms.
type MismatchError struct {
	ExpectedMasked string
	ObservedMasked string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("egress identity mismatch: expected %s, observed %s", e.ExpectedMasked, e.ObservedMasked)
}

// ProbeError means the identity could not be observed at all: the probe timed
// out or failed in transport. Distinct from a mismatch, equally fatal.
type ProbeError struct {
	cause error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("egress identity probe unreachable: %v", e.cause)
}

func (e *ProbeError) Unwrap() error { return e.cause }

// Verifier is the fail-closed gate in front of the credentialed flow.
type Verifier struct {
	expected   string
	connection string // originally configured connection string, e.g. the proxy URL
	timeout    time.Duration
	log        *zap.Logger
}

// NewVerifier builds a verifier. expected may be empty (verification off);
// connection is the raw configured connection string used as a secondary
// match target, since the expectation may be a bare host while the probe
// reports a full address.
func NewVerifier(expected, connection string, timeout time.Duration, log *zap.Logger) *Verifier {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{
		expected:   strings.TrimSpace(expected),
		connection: connection,
		timeout:    timeout,
		log:        log,
	}
}

// Verify runs the check. With no expectation configured it returns a matching
// result without invoking the probe. Otherwise it probes under a bounded
// timeout and returns ProbeError or MismatchError when the check cannot be
// satisfied; either error must terminate the run before credentials are used.
func (v *Verifier) Verify(ctx context.Context, probe ProbeFunc) (Result, error) {
	if v.expected == "" {
		return Result{Matched: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	observed, err := probe(ctx)
	if err != nil {
		v.log.Warn("egress probe unreachable", zap.Error(err))
		return Result{Expected: v.expected}, &ProbeError{cause: err}
	}
	observed = strings.TrimSpace(observed)

	res := Result{Observed: observed, Expected: v.expected}
	if identityMatches(v.expected, observed, v.connection) {
		res.Matched = true
		v.log.Debug("egress identity verified", zap.String("observed", Mask(observed)))
		return res, nil
	}

	v.log.Warn("egress identity mismatch",
		zap.String("expected", Mask(v.expected)),
		zap.String("observed", Mask(observed)))
	return res, &MismatchError{
		ExpectedMasked: Mask(v.expected),
		ObservedMasked: Mask(observed),
	}
}

// identityMatches implements the containment-based comparison. Exact equality
// is too strict: the expectation may be a bare host inside a full observed
// address, the observed address may be one of several behind the configured
// connection string, and IPv6 endpoints rotate their trailing groups.
func identityMatches(expected, observed, connection string) bool {
	if expected == "" || observed == "" {
		return false
	}
	if strings.Contains(observed, expected) {
		return true
	}
	if connection != "" && strings.Contains(connection, observed) {
		return true
	}
	return leadingGroupsEqual(expected, observed)
}

func leadingGroupsEqual(a, b string) bool {
	ga := strings.Split(a, ":")
	gb := strings.Split(b, ":")
	if len(ga) < ipv6MatchGroups || len(gb) < ipv6MatchGroups {
		return false
	}
	for i := 0; i < ipv6MatchGroups; i++ {
		if ga[i] != gb[i] {
			return false
		}
	}
	return true
}
