package egress

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func staticProbe(ip string) ProbeFunc {
	return func(ctx context.Context) (string, error) { return ip, nil }
}

func TestVerify_NoExpectationSkipsProbe(t *testing.T) {
	v := NewVerifier("", "", 0, nil)
	probed := false
	res, err := v.Verify(context.Background(), func(ctx context.Context) (string, error) {
		probed = true
		return "203.0.113.57", nil
	})
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !res.Matched {
		t.Error("expected trivially matching result")
	}
	if probed {
		t.Error("probe must not be invoked when no expectation is configured")
	}
}

func TestVerify_Match(t *testing.T) {
	tests := []struct {
		name       string
		expected   string
		connection string
		observed   string
	}{
		{"exact", "10.0.0.5", "", "10.0.0.5"},
		{"expected inside observed", "10.0.0.5", "", "10.0.0.5:8080"},
		{"bare host inside observed", "proxy.example.net", "", "proxy.example.net:1080"},
		{"observed inside connection string", "proxy.example.net", "http://user:pw@203.0.113.57:1080", "203.0.113.57"},
		{"ipv6 leading groups", "2001:db8:85a3:8d3:1319:8a2e:370:7348", "", "2001:db8:85a3:8d3:ffff:ffff:ffff:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVerifier(tt.expected, tt.connection, time.Second, nil)
			res, err := v.Verify(context.Background(), staticProbe(tt.observed))
			if err != nil {
				t.Fatalf("Verify returned error: %v", err)
			}
			if !res.Matched {
				t.Errorf("expected %q / observed %q should match", tt.expected, tt.observed)
			}
		})
	}
}

func TestVerify_MismatchIsRedacted(t *testing.T) {
	v := NewVerifier("10.0.0.5", "", time.Second, nil)
	res, err := v.Verify(context.Background(), staticProbe("10.0.0.9"))
	if res.Matched {
		t.Fatal("10.0.0.5 vs 10.0.0.9 must not match")
	}

	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("want MismatchError, got %T: %v", err, err)
	}
	msg := mismatch.Error()
	if strings.Contains(msg, "10.0.0.5") || strings.Contains(msg, "10.0.0.9") {
		t.Errorf("error leaks full identity: %q", msg)
	}
	if !strings.Contains(msg, "10.0.***.5") || !strings.Contains(msg, "10.0.***.9") {
		t.Errorf("error missing masked forms: %q", msg)
	}
}

func TestVerify_ProbeUnreachable(t *testing.T) {
	v := NewVerifier("10.0.0.5", "", time.Second, nil)
	cause := errors.New("connection refused")
	_, err := v.Verify(context.Background(), func(ctx context.Context) (string, error) {
		return "", cause
	})

	var probeErr *ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("want ProbeError, got %T: %v", err, err)
	}
	if !errors.Is(err, cause) {
		t.Error("ProbeError should wrap the transport cause")
	}
	var mismatch *MismatchError
	if errors.As(err, &mismatch) {
		t.Error("unreachable probe must not be reported as a mismatch")
	}
}

func TestVerify_ProbeTimeoutBounded(t *testing.T) {
	v := NewVerifier("10.0.0.5", "", 20*time.Millisecond, nil)
	_, err := v.Verify(context.Background(), func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	var probeErr *ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("want ProbeError on timeout, got %T: %v", err, err)
	}
}

func TestVerify_IPv6TrailingGroupsDiffer(t *testing.T) {
	v := NewVerifier("2001:db8:85a3:8d3:1:2:3:4", "", time.Second, nil)
	res, err := v.Verify(context.Background(), staticProbe("2001:db8:85a3:ffff:1:2:3:4"))
	if err == nil || res.Matched {
		t.Error("differing leading groups must not match")
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.0.0.5", "10.0.***.5"},
		{"203.0.113.57", "203.0.***.57"},
		{"2001:db8:85a3:8d3:1319:8a2e:370:7348", "2001:db8:***:7348"},
		{"proxy.internal.example.net", "proxy.internal.***.net"},
		{"short.host", "***"},
		{"nodots", "***"},
		{"", "***"},
	}
	for _, tt := range tests {
		if got := Mask(tt.in); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
