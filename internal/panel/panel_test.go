package panel

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSelectServer(t *testing.T) {
	one := []Server{{ID: "srv-1", Name: "loveMC"}}
	many := []Server{{ID: "srv-1", Name: "loveMC"}, {ID: "srv-2", Name: "backup"}}

	tests := []struct {
		name    string
		servers []Server
		target  string
		wantID  string
		wantErr bool
	}{
		{"explicit target found", many, "backup", "srv-2", false},
		{"explicit target missing", many, "ghost", "", true},
		{"no target single server", one, "", "srv-1", false},
		{"no target multiple servers", many, "", "", true},
		{"no servers at all", nil, "loveMC", "", true},
		{"no servers no target", nil, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectServer(tt.servers, tt.target)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ID != tt.wantID {
				t.Errorf("got server %s, want %s", got.ID, tt.wantID)
			}
		})
	}
}

func TestStatusDisplay(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"running", "🟢 Running"},
		{"RUNNING", "🟢 Running"},
		{" stopped ", "🔴 Stopped"},
		{"suspended", "🚫 Suspended"},
		{"rebooting", "❓ rebooting"},
	}
	for _, tt := range tests {
		if got := StatusDisplay(tt.status); got != tt.want {
			t.Errorf("StatusDisplay(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestParseHoursText(t *testing.T) {
	tests := []struct {
		text   string
		want   int
		wantOK bool
	}{
		{"64 hours", 64, true},
		{"  112h", 112, true},
		{"0 hours", 0, true},
		{"loading...", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseHoursText(tt.text)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseHoursText(%q) = (%d, %v), want (%d, %v)", tt.text, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestTryStrategies_FirstSuccessWins(t *testing.T) {
	var ran []string
	err := tryStrategies(context.Background(), time.Second, "act", []strategy{
		{name: "a", fn: func(ctx context.Context) error { ran = append(ran, "a"); return errors.New("nope") }},
		{name: "b", fn: func(ctx context.Context) error { ran = append(ran, "b"); return nil }},
		{name: "c", fn: func(ctx context.Context) error { ran = append(ran, "c"); return nil }},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(ran, ",") != "a,b" {
		t.Errorf("ran %v, want a then b only", ran)
	}
}

func TestTryStrategies_AllFail(t *testing.T) {
	err := tryStrategies(context.Background(), time.Second, "act", []strategy{
		{name: "a", fn: func(ctx context.Context) error { return errors.New("first") }},
		{name: "b", fn: func(ctx context.Context) error { return errors.New("second") }},
	})
	if err == nil {
		t.Fatal("expected error when every strategy fails")
	}
	for _, frag := range []string{"a: first", "b: second"} {
		if !strings.Contains(err.Error(), frag) {
			t.Errorf("error %q missing %q", err.Error(), frag)
		}
	}
}

func TestTryStrategies_SharedBudget(t *testing.T) {
	start := time.Now()
	err := tryStrategies(context.Background(), 50*time.Millisecond, "act", []strategy{
		{name: "slow", fn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
		{name: "never", fn: func(ctx context.Context) error {
			t.Error("strategy ran after budget exhausted")
			return nil
		}},
	})
	if err == nil {
		t.Fatal("expected budget exhaustion error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("budget not enforced, took %v", elapsed)
	}
}
