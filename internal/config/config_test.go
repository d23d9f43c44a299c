package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GREATHOST_EMAIL", "GREATHOST_PASSWORD", "TARGET_NAME", "PROXY_URL",
		"EXPECTED_EGRESS_IP", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
		"CAPACITY_THRESHOLD_HOURS",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	clearEnv(t)
	cfg := DefaultConfig()

	if cfg.Panel.BaseURL != "https://greathost.es" {
		t.Errorf("expected greathost base URL, got %s", cfg.Panel.BaseURL)
	}
	if !cfg.Panel.Headless {
		t.Error("expected headless by default")
	}
	if cfg.Renewal.CapacityThresholdHours != 108 {
		t.Errorf("expected threshold 108, got %d", cfg.Renewal.CapacityThresholdHours)
	}
	if cfg.Panel.SettleDelay() != 8*time.Second {
		t.Errorf("expected 8s settle delay, got %v", cfg.Panel.SettleDelay())
	}
	if cfg.Egress.ExpectedIP != "" {
		t.Error("egress verification must be opt-in")
	}
}

func TestLoad_FileThenEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
panel:
  email: file@example.com
  password: file-secret
  target_name: loveMC
  headless: false
renewal:
  capacity_threshold_hours: 120
telegram:
  timezone: UTC
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GREATHOST_EMAIL", "env@example.com")
	t.Setenv("CAPACITY_THRESHOLD_HOURS", "110")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Panel.Email != "env@example.com" {
		t.Errorf("env must override file, got %s", cfg.Panel.Email)
	}
	if cfg.Panel.Password != "file-secret" {
		t.Errorf("file value must survive, got %s", cfg.Panel.Password)
	}
	if cfg.Panel.TargetName != "loveMC" {
		t.Errorf("expected target loveMC, got %s", cfg.Panel.TargetName)
	}
	if cfg.Panel.Headless {
		t.Error("file set headless false")
	}
	if cfg.Renewal.CapacityThresholdHours != 110 {
		t.Errorf("env threshold must win, got %d", cfg.Renewal.CapacityThresholdHours)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config differs from defaults (-want +got):\n%s", diff)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("panel: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed yaml must error")
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("missing credentials must fail validation")
	}

	cfg.Panel.Email = "a@b.c"
	cfg.Panel.Password = "pw"
	if err := cfg.Validate(); err != nil {
		t.Errorf("complete config must validate: %v", err)
	}

	cfg.Telegram.Timezone = "Not/AZone"
	if err := cfg.Validate(); err == nil {
		t.Error("bogus timezone must fail validation")
	}
}

func TestLocation(t *testing.T) {
	cfg := DefaultConfig()
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location failed: %v", err)
	}
	if loc.String() != "Asia/Shanghai" {
		t.Errorf("expected Asia/Shanghai, got %s", loc)
	}

	cfg.Telegram.Timezone = ""
	loc, err = cfg.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("empty timezone must resolve to UTC, got %v / %v", loc, err)
	}
}
