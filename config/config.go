package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Session policies for the browser session manager.
const (
	PolicySingleton = "singleton"
	PolicyEphemeral = "ephemeral"
)

// DefaultUserAgent is the fixed desktop UA sent by every page.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Site    SiteConfig
	Browser BrowserConfig
	Proxy   ProxyConfig
	Scraper ScraperConfig
	Cache   CacheConfig
	Log     LogConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8000
	Mode string // gin mode: "debug", "release", "test"; default: "release"
}

// SiteConfig describes the scraped site.
type SiteConfig struct {
	// BaseURL is prefixed to "/@<username>" for profile lookups.
	BaseURL string // default: "https://www.tiktok.com"

	// DomainMarker must appear in every video URL accepted by the API.
	DomainMarker string // default: "tiktok.com"
}

// BrowserConfig controls the headless browser.
type BrowserConfig struct {
	// Policy is PolicySingleton (one shared engine) or PolicyEphemeral
	// (one engine per extraction call).
	Policy string // default: "singleton"

	// Headless toggles headless mode.
	Headless bool // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// UserAgent is sent by every page.
	UserAgent string

	// AcceptLanguage is sent as the Accept-Language header.
	AcceptLanguage string // default: "en-US,en;q=0.9"

	// ViewportWidth and ViewportHeight fix the window and viewport size.
	ViewportWidth  int // default: 1920
	ViewportHeight int // default: 1080

	// LaunchesPerSecond paces engine launches. 0 disables pacing.
	LaunchesPerSecond float64 // default: 0
	LaunchBurst       int     // default: 1

	// Singleton recycling triggers. 0 disables a trigger.
	RecycleErrorScore float64       // default: 3
	RecycleAfterUses  int           // default: 0
	RecycleAfterAge   time.Duration // default: 0

	// Proxy is copied from Config.Proxy by Load so the launcher sees it.
	Proxy ProxyConfig
}

// ProxyConfig is a single optional static proxy. If Server is set, User and
// Password must be set too.
type ProxyConfig struct {
	Server   string
	User     string
	Password string
}

// Enabled reports whether a proxy is configured.
func (p ProxyConfig) Enabled() bool { return p.Server != "" }

// ScraperConfig controls navigation and retry behavior.
type ScraperConfig struct {
	// NavigationTimeout bounds the initial load up to DOMContentLoaded.
	NavigationTimeout time.Duration // default: 60s

	// ReadyTimeout bounds the wait for the hydration marker.
	ReadyTimeout time.Duration // default: 15s

	// MaxAttempts is the per-request attempt budget.
	MaxAttempts int // default: 3

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration // default: 0
}

// CacheConfig controls the optional record cache.
type CacheConfig struct {
	// TTL is how long a successful record is served from memory. 0 disables.
	TTL time.Duration // default: 0

	MaxEntries int // default: 1000
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"

	// File, when set, receives a copy of every log line with size-based rotation.
	File string
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	proxy := ProxyConfig{
		Server:   os.Getenv("PROXY_SERVER"),
		User:     os.Getenv("PROXY_USER"),
		Password: os.Getenv("PROXY_PASSWORD"),
	}
	return &Config{
		Server: ServerConfig{
			Host: envOr("TOKSCRAPE_HOST", "0.0.0.0"),
			Port: envIntOr("PORT", 8000),
			Mode: envOr("TOKSCRAPE_MODE", "release"),
		},
		Site: SiteConfig{
			BaseURL:      strings.TrimRight(envOr("TOKSCRAPE_SITE_URL", "https://www.tiktok.com"), "/"),
			DomainMarker: envOr("TOKSCRAPE_SITE_MARKER", "tiktok.com"),
		},
		Browser: BrowserConfig{
			Policy:            strings.ToLower(envOr("TOKSCRAPE_SESSION_POLICY", PolicySingleton)),
			Headless:          envBoolOr("TOKSCRAPE_HEADLESS", true),
			BrowserBin:        os.Getenv("TOKSCRAPE_BROWSER_BIN"),
			UserAgent:         envOr("TOKSCRAPE_USER_AGENT", DefaultUserAgent),
			AcceptLanguage:    envOr("TOKSCRAPE_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			ViewportWidth:     1920,
			ViewportHeight:    1080,
			LaunchesPerSecond: envFloatOr("TOKSCRAPE_LAUNCH_RATE", 0),
			LaunchBurst:       envIntOr("TOKSCRAPE_LAUNCH_BURST", 1),
			RecycleErrorScore: envFloatOr("TOKSCRAPE_RECYCLE_ERROR_SCORE", 3),
			RecycleAfterUses:  envIntOr("TOKSCRAPE_RECYCLE_AFTER_USES", 0),
			RecycleAfterAge:   envDurationOr("TOKSCRAPE_RECYCLE_AFTER_AGE", 0),
			Proxy:             proxy,
		},
		Proxy: proxy,
		Scraper: ScraperConfig{
			NavigationTimeout: envDurationOr("TOKSCRAPE_NAV_TIMEOUT", 60*time.Second),
			ReadyTimeout:      envDurationOr("TOKSCRAPE_READY_TIMEOUT", 15*time.Second),
			MaxAttempts:       envIntOr("TOKSCRAPE_MAX_ATTEMPTS", 3),
			RetryDelay:        envDurationOr("TOKSCRAPE_RETRY_DELAY", 0),
		},
		Cache: CacheConfig{
			TTL:        envDurationOr("TOKSCRAPE_CACHE_TTL", 0),
			MaxEntries: envIntOr("TOKSCRAPE_CACHE_MAX_ENTRIES", 1000),
		},
		Log: LogConfig{
			Level:  envOr("TOKSCRAPE_LOG_LEVEL", "info"),
			Format: envOr("TOKSCRAPE_LOG_FORMAT", "json"),
			File:   os.Getenv("TOKSCRAPE_LOG_FILE"),
		},
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Browser.Policy {
	case PolicySingleton, PolicyEphemeral:
	default:
		errs = append(errs, fmt.Errorf("session policy %q: want %q or %q", c.Browser.Policy, PolicySingleton, PolicyEphemeral))
	}
	if c.Proxy.Enabled() && (c.Proxy.User == "" || c.Proxy.Password == "") {
		errs = append(errs, errors.New("PROXY_SERVER is set but PROXY_USER or PROXY_PASSWORD is missing"))
	}
	if !c.Proxy.Enabled() && (c.Proxy.User != "" || c.Proxy.Password != "") {
		errs = append(errs, errors.New("proxy credentials are set but PROXY_SERVER is empty"))
	}
	if c.Scraper.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be >= 1, got %d", c.Scraper.MaxAttempts))
	}
	if c.Scraper.NavigationTimeout <= 0 || c.Scraper.ReadyTimeout <= 0 {
		errs = append(errs, errors.New("navigation and ready timeouts must be positive"))
	}
	if u, err := url.Parse(c.Site.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("site url %q is not absolute", c.Site.BaseURL))
	}

	return errors.Join(errs...)
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

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
