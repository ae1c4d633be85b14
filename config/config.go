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
	Render    RenderConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls how each render launches Chromium.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// UserDataDir is a persistent profile directory. Empty uses a
	// temporary profile that is removed after each render.
	UserDataDir string

	// AutoClose kills the browser when this process exits. Always on
	// when Headless is set.
	AutoClose bool // default: true

	// WindowWidth and WindowHeight set --window-size when both are > 0.
	WindowWidth  int
	WindowHeight int

	// Maximize adds --start-maximized unless a window size is set.
	Maximize bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// Proxy is passed to Chromium as --proxy-server.
	Proxy string

	// ExtraArgs are appended to the launch arguments.
	ExtraArgs []string
}

// RenderConfig controls per-render defaults and limits.
type RenderConfig struct {
	// NavigationTimeout is the deadline for reaching the load event.
	NavigationTimeout time.Duration // default: 30s

	// WaitTimeout bounds the wait_for condition.
	WaitTimeout time.Duration // default: 30s

	// MaxTimeout caps the whole request, including launch and teardown.
	MaxTimeout time.Duration // default: 120s

	// MaxConcurrent is the number of browsers the server runs at once.
	MaxConcurrent int // default: 4

	// UserAgent overrides the built-in default user agent.
	UserAgent string

	// PageWidth and PageHeight are the default viewport.
	PageWidth  int // default: 800
	PageHeight int // default: 600

	// BlockedResourceTypes are aborted by the "block" interceptor.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string
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
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// CacheConfig controls the render response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 1000
}

// WebhookConfig controls delivery of completed renders to callback URLs.
type WebhookConfig struct {
	// Secret signs webhook payloads with HMAC-SHA256. Empty disables signing.
	Secret string
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
			Host: envOr("PAGERENDER_HOST", "0.0.0.0"),
			Port: envIntOr("PAGERENDER_PORT", 8080),
			Mode: envOr("PAGERENDER_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("PAGERENDER_HEADLESS", true),
			BrowserBin:   os.Getenv("PAGERENDER_BROWSER_BIN"),
			UserDataDir:  os.Getenv("PAGERENDER_USER_DATA_DIR"),
			AutoClose:    envBoolOr("PAGERENDER_AUTO_CLOSE", true),
			WindowWidth:  envIntOr("PAGERENDER_WINDOW_WIDTH", 0),
			WindowHeight: envIntOr("PAGERENDER_WINDOW_HEIGHT", 0),
			Maximize:     envBoolOr("PAGERENDER_MAXIMIZE", true),
			NoSandbox:    envBoolOr("PAGERENDER_NO_SANDBOX", false),
			Proxy:        os.Getenv("PAGERENDER_PROXY"),
			ExtraArgs:    envSliceOr("PAGERENDER_BROWSER_ARGS", nil),
		},
		Render: RenderConfig{
			NavigationTimeout: envDurationOr("PAGERENDER_NAV_TIMEOUT", 30*time.Second),
			WaitTimeout:       envDurationOr("PAGERENDER_WAIT_TIMEOUT", 30*time.Second),
			MaxTimeout:        envDurationOr("PAGERENDER_MAX_TIMEOUT", 120*time.Second),
			MaxConcurrent:     envIntOr("PAGERENDER_MAX_CONCURRENT", 4),
			UserAgent:         os.Getenv("PAGERENDER_USER_AGENT"),
			PageWidth:         envIntOr("PAGERENDER_PAGE_WIDTH", 800),
			PageHeight:        envIntOr("PAGERENDER_PAGE_HEIGHT", 600),
			BlockedResourceTypes: envSliceOr("PAGERENDER_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PAGERENDER_AUTH_ENABLED", true),
			APIKeys: envSliceOr("PAGERENDER_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PAGERENDER_RATE_RPS", 2.0),
			Burst:             envIntOr("PAGERENDER_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("PAGERENDER_CACHE_MAX_ENTRIES", 1000),
		},
		Webhook: WebhookConfig{
			Secret: os.Getenv("PAGERENDER_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("PAGERENDER_LOG_LEVEL", "info"),
			Format: envOr("PAGERENDER_LOG_FORMAT", "json"),
		},
	}
}

// LaunchArgs returns the Chromium arguments implied by the browser config,
// before window-size and maximize normalization.
func (b BrowserConfig) LaunchArgs() []string {
	args := make([]string, 0, len(b.ExtraArgs)+2)
	if b.NoSandbox {
		args = append(args, "--no-sandbox")
	}
	if b.Proxy != "" {
		args = append(args, "--proxy-server="+b.Proxy)
	}
	return append(args, b.ExtraArgs...)
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
