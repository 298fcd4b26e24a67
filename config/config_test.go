package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "DB_DSN", "PAYPAL_API_BASE", "GIFT_SWEEP_INTERVAL_SECONDS"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.DBDsn == "" {
		t.Error("DBDsn should default to local postgres")
	}
	if cfg.PayPalAPIBase != "https://api-m.paypal.com" {
		t.Errorf("PayPalAPIBase = %q", cfg.PayPalAPIBase)
	}
	if cfg.GiftSweepInterval != 5*time.Minute {
		t.Errorf("GiftSweepInterval = %v, want 5m", cfg.GiftSweepInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("PAYPAL_API_BASE", "https://api-m.sandbox.paypal.com")
	t.Setenv("GIFT_SWEEP_INTERVAL_SECONDS", "30")
	t.Setenv("GIFT_SWEEP_MIN_AGE_SECONDS", "garbage")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.PayPalAPIBase != "https://api-m.sandbox.paypal.com" {
		t.Errorf("PayPalAPIBase = %q", cfg.PayPalAPIBase)
	}
	if cfg.GiftSweepInterval != 30*time.Second {
		t.Errorf("GiftSweepInterval = %v, want 30s", cfg.GiftSweepInterval)
	}
	if cfg.GiftSweepMinAge != 10*time.Minute {
		t.Errorf("invalid duration should fall back to default, got %v", cfg.GiftSweepMinAge)
	}
}

func TestValidateMirrorReady(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateMirrorReady(); err == nil {
		t.Fatal("expected error with missing twitch env")
	}
	cfg.TwitchChannel = "streamer"
	cfg.TwitchBotUsername = "bot"
	cfg.TwitchOAuthToken = "oauth:abc"
	if err := cfg.ValidateMirrorReady(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
