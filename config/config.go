package config

import (
	"log"
	"os"
	"strings"
	"time"

	"marketwatchv1/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Remote persistence API (required when BACKEND=remote)
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string
	APIRootURL string

	// Watchlist identity
	RefID string

	// Backend selects the watchlist store: "remote" or "sqlite"
	Backend string

	// Feeds
	FlatFeedURL string
	BookFeedURL string

	// Exchange rate
	RateURL     string
	RateRefresh time.Duration

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Categories (comma-separated tab ids, e.g. "MCX,NSE,CRYPTO")
	EnabledCategories string
	InitialCategory   string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	cfg := &Config{
		APIKey:     getEnv("TRADE_API_KEY", ""),
		ClientCode: getEnv("TRADE_CLIENT_CODE", ""),
		Password:   getEnv("TRADE_PASSWORD", ""),
		TOTPSecret: getEnv("TRADE_TOTP_SECRET", ""),
		APIRootURL: getEnv("TRADE_API_URL", ""),

		RefID:   mustEnv("WATCH_REF_ID"),
		Backend: getEnv("WATCH_BACKEND", "sqlite"),

		FlatFeedURL: getEnv("FLAT_FEED_URL", "ws://localhost:9001/ws"),
		BookFeedURL: getEnv("BOOK_FEED_URL", "ws://localhost:9001/fx"),

		RateURL:     getEnv("RATE_URL", ""),
		RateRefresh: getDuration("RATE_REFRESH", 5*time.Minute),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/marketwatch.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		EnabledCategories: getEnv("ENABLED_CATEGORIES", "MCX,NSE,OPT,CRYPTO,FOREX,COMMODITY"),
		InitialCategory:   getEnv("INITIAL_CATEGORY", "MCX"),
	}

	if cfg.Backend == "remote" {
		if cfg.APIKey == "" || cfg.ClientCode == "" || cfg.Password == "" || cfg.TOTPSecret == "" {
			log.Fatal("[config] BACKEND=remote requires TRADE_API_KEY, TRADE_CLIENT_CODE, TRADE_PASSWORD and TRADE_TOTP_SECRET")
		}
	}
	return cfg
}

// ParseCategories parses EnabledCategories into Category values, skipping
// unknown ids with a warning.
func (c *Config) ParseCategories() []model.Category {
	parts := strings.Split(c.EnabledCategories, ",")
	cats := make([]model.Category, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		cat, ok := model.ParseCategory(strings.ToUpper(p))
		if !ok {
			log.Printf("[config] skipping unknown category: %q", p)
			continue
		}
		cats = append(cats, cat)
	}
	return cats
}

// ReloadCategories re-reads ENABLED_CATEGORIES from the environment and
// returns the parsed set. Used for SIGHUP-driven category changes
// without a restart; an unset variable keeps the current value.
func (c *Config) ReloadCategories() []model.Category {
	c.EnabledCategories = getEnv("ENABLED_CATEGORIES", c.EnabledCategories)
	return c.ParseCategories()
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid duration for %s: %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
