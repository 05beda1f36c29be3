package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PAYIN_MODE", "")
	t.Setenv("PROVIDER_TIMEOUT", "")
	t.Setenv("PROVIDER_MAX_ATTEMPTS", "")

	cfg := Load()
	if !cfg.IsOffline() {
		t.Fatalf("expected offline mode for empty PAYIN_MODE, got %q", cfg.PayinMode)
	}
	if cfg.ProviderTimeout != 10*time.Second {
		t.Fatalf("expected default provider timeout 10s, got %s", cfg.ProviderTimeout)
	}
	if cfg.ProviderMaxAttempts != 3 {
		t.Fatalf("expected default 3 attempts, got %d", cfg.ProviderMaxAttempts)
	}
}

func TestLoadLiveMode(t *testing.T) {
	t.Setenv("PAYIN_MODE", " LIVE ")
	t.Setenv("PROVIDER_RETRY_DELAY", "250ms")

	cfg := Load()
	if cfg.IsOffline() {
		t.Fatal("expected live mode")
	}
	if cfg.ProviderRetryDelay != 250*time.Millisecond {
		t.Fatalf("unexpected retry delay: %s", cfg.ProviderRetryDelay)
	}
}

func TestParseStringSlice(t *testing.T) {
	got := parseStringSlice("http://a, ,http://b,")
	if len(got) != 2 || got[0] != "http://a" || got[1] != "http://b" {
		t.Fatalf("unexpected origins: %#v", got)
	}
}

func TestArchiveEnabled(t *testing.T) {
	cfg := &Config{ArchiveDriver: "s3"}
	if !cfg.ArchiveEnabled() {
		t.Fatal("expected s3 archive to be enabled")
	}
	cfg.ArchiveDriver = "ftp"
	if cfg.ArchiveEnabled() {
		t.Fatal("unknown driver must not enable archive")
	}
}

func TestEnvironmentPredicates(t *testing.T) {
	cases := []struct {
		env        string
		dev, prod bool
	}{
		{"development", true, false},
		{"dev", true, false},
		{"production", false, true},
		{"staging", false, false},
	}
	for _, tc := range cases {
		cfg := &Config{Env: tc.env}
		if cfg.IsDevelopment() != tc.dev || cfg.IsProduction() != tc.prod {
			t.Fatalf("%s: got dev=%v prod=%v", tc.env, cfg.IsDevelopment(), cfg.IsProduction())
		}
	}
}
