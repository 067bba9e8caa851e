package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Fetcher   FetcherConfig
	Captcha   CaptchaConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the per-fetch Chrome processes.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// MaxSessions caps concurrently running browser processes.
	// Each fetch owns exactly one process; beyond the cap fetches
	// fail fast instead of queueing.
	MaxSessions int // default: 10

	// DefaultProxy is the proxy URL used when a request carries none.
	DefaultProxy string

	// WindowWidth / WindowHeight fix the browser window geometry so the
	// reported viewport is stable across fetches.
	WindowWidth  int // default: 1920
	WindowHeight int // default: 1080
}

// FetcherConfig controls fetch behavior.
type FetcherConfig struct {
	// NavigationTimeout bounds navigation up to DOMContentLoaded.
	NavigationTimeout time.Duration // default: 60s

	// ReadinessTimeout bounds the wait for the root content element.
	ReadinessTimeout time.Duration // default: 10s

	// MaxTimeout is the maximum navigation timeout a client may request.
	MaxTimeout time.Duration // default: 300s

	// BlockedResourceTypes lists sub-resource types to abort during load.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string
}

// CaptchaConfig controls reCAPTCHA solving.
type CaptchaConfig struct {
	// APIKey is the default 2Captcha API key. Empty disables solving
	// unless a request supplies its own key.
	APIKey string

	// SolveTimeout bounds one captcha solve, submission to token.
	SolveTimeout time.Duration // default: 120s

	// PollInterval is the delay between result polls.
	PollInterval time.Duration // default: 5s
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// CacheConfig controls the fetch response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 1000
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("SPECTER_HOST", "0.0.0.0"),
			Port: envIntOr("SPECTER_PORT", 8080),
			Mode: envOr("SPECTER_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("SPECTER_HEADLESS", true),
			NoSandbox:    envBoolOr("SPECTER_NO_SANDBOX", true),
			BrowserBin:   os.Getenv("SPECTER_BROWSER_BIN"),
			MaxSessions:  envIntOr("SPECTER_MAX_SESSIONS", 10),
			DefaultProxy: os.Getenv("SPECTER_PROXY"),
			WindowWidth:  envIntOr("SPECTER_WINDOW_WIDTH", 1920),
			WindowHeight: envIntOr("SPECTER_WINDOW_HEIGHT", 1080),
		},
		Fetcher: FetcherConfig{
			NavigationTimeout: envDurationOr("SPECTER_NAV_TIMEOUT", 60*time.Second),
			ReadinessTimeout:  envDurationOr("SPECTER_READY_TIMEOUT", 10*time.Second),
			MaxTimeout:        envDurationOr("SPECTER_MAX_TIMEOUT", 300*time.Second),
			BlockedResourceTypes: envSliceOr("SPECTER_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
		},
		Captcha: CaptchaConfig{
			APIKey:       os.Getenv("SPECTER_CAPTCHA_API_KEY"),
			SolveTimeout: envDurationOr("SPECTER_CAPTCHA_TIMEOUT", 120*time.Second),
			PollInterval: envDurationOr("SPECTER_CAPTCHA_POLL_INTERVAL", 5*time.Second),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("SPECTER_AUTH_ENABLED", true),
			APIKeys: envSliceOr("SPECTER_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SPECTER_RATE_RPS", 5.0),
			Burst:             envIntOr("SPECTER_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("SPECTER_CACHE_MAX_ENTRIES", 1000),
		},
		Log: LogConfig{
			Level:  envOr("SPECTER_LOG_LEVEL", "info"),
			Format: envOr("SPECTER_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
