package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if !cfg.Browser.Headless {
		t.Error("Browser.Headless should default to true")
	}
	if cfg.Browser.MaxSessions != 10 {
		t.Errorf("Browser.MaxSessions = %d, want 10", cfg.Browser.MaxSessions)
	}
	if cfg.Browser.WindowWidth != 1920 || cfg.Browser.WindowHeight != 1080 {
		t.Errorf("window geometry = %dx%d, want 1920x1080",
			cfg.Browser.WindowWidth, cfg.Browser.WindowHeight)
	}
	if cfg.Fetcher.NavigationTimeout != 60*time.Second {
		t.Errorf("NavigationTimeout = %v, want 60s", cfg.Fetcher.NavigationTimeout)
	}
	if cfg.Fetcher.ReadinessTimeout != 10*time.Second {
		t.Errorf("ReadinessTimeout = %v, want 10s", cfg.Fetcher.ReadinessTimeout)
	}
	if cfg.Captcha.SolveTimeout != 120*time.Second {
		t.Errorf("Captcha.SolveTimeout = %v, want 120s", cfg.Captcha.SolveTimeout)
	}

	want := []string{"Image", "Stylesheet", "Font", "Media"}
	if len(cfg.Fetcher.BlockedResourceTypes) != len(want) {
		t.Fatalf("BlockedResourceTypes = %v, want %v", cfg.Fetcher.BlockedResourceTypes, want)
	}
	for i, rt := range want {
		if cfg.Fetcher.BlockedResourceTypes[i] != rt {
			t.Errorf("BlockedResourceTypes[%d] = %q, want %q", i, cfg.Fetcher.BlockedResourceTypes[i], rt)
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SPECTER_PORT", "9090")
	t.Setenv("SPECTER_HEADLESS", "false")
	t.Setenv("SPECTER_NAV_TIMEOUT", "30s")
	t.Setenv("SPECTER_BLOCKED_RESOURCES", "Image, Font")
	t.Setenv("SPECTER_API_KEYS", "key-a,key-b")
	t.Setenv("SPECTER_RATE_RPS", "2.5")

	cfg := Load()

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Browser.Headless {
		t.Error("Browser.Headless should be overridden to false")
	}
	if cfg.Fetcher.NavigationTimeout != 30*time.Second {
		t.Errorf("NavigationTimeout = %v, want 30s", cfg.Fetcher.NavigationTimeout)
	}
	if len(cfg.Fetcher.BlockedResourceTypes) != 2 || cfg.Fetcher.BlockedResourceTypes[1] != "Font" {
		t.Errorf("BlockedResourceTypes = %v, want [Image Font]", cfg.Fetcher.BlockedResourceTypes)
	}
	if len(cfg.Auth.APIKeys) != 2 {
		t.Errorf("Auth.APIKeys = %v, want two keys", cfg.Auth.APIKeys)
	}
	if cfg.RateLimit.RequestsPerSecond != 2.5 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 2.5", cfg.RateLimit.RequestsPerSecond)
	}
}

func TestLoad_MalformedEnvFallsBack(t *testing.T) {
	t.Setenv("SPECTER_PORT", "not-a-number")
	t.Setenv("SPECTER_NAV_TIMEOUT", "soon")

	cfg := Load()

	if cfg.Server.Port != 8080 {
		t.Errorf("malformed port should fall back to 8080, got %d", cfg.Server.Port)
	}
	if cfg.Fetcher.NavigationTimeout != 60*time.Second {
		t.Errorf("malformed duration should fall back to 60s, got %v", cfg.Fetcher.NavigationTimeout)
	}
}
