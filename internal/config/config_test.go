package config

import (
	"testing"
	"time"
)

func TestValidate_RequiresSecrets(t *testing.T) {
	cfg := &Config{
		SweepInterval:     time.Hour,
		WarningWindowDays: 7,
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing PAYSTACK_SECRET_KEY")
	}

	cfg.PaystackSecretKey = "sk_test_abc"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing JWT_SECRET")
	}

	cfg.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate returned %v", err)
	}
}

func TestValidate_SweepInterval(t *testing.T) {
	cfg := &Config{
		PaystackSecretKey: "sk_test_abc",
		JWTSecret:         "secret",
		SweepInterval:     time.Second,
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for sub-minute sweep interval")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test_abc")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %q, want %q", cfg.Port, DefaultPort)
	}
	if cfg.SweepInterval != DefaultSweepInterval {
		t.Errorf("SweepInterval = %s, want %s", cfg.SweepInterval, DefaultSweepInterval)
	}
	if cfg.WarningWindowDays != DefaultWarningWindow {
		t.Errorf("WarningWindowDays = %d, want %d", cfg.WarningWindowDays, DefaultWarningWindow)
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development mode by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test_abc")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SWEEP_INTERVAL", "30m")
	t.Setenv("WARNING_WINDOW_DAYS", "3")
	t.Setenv("ENV", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned %v", err)
	}
	if cfg.SweepInterval != 30*time.Minute {
		t.Errorf("SweepInterval = %s, want 30m", cfg.SweepInterval)
	}
	if cfg.WarningWindowDays != 3 {
		t.Errorf("WarningWindowDays = %d, want 3", cfg.WarningWindowDays)
	}
	if !cfg.IsProduction() {
		t.Error("expected production mode")
	}
}
