// Package config loads process configuration from environment variables,
// with an optional YAML venue catalog. Environment always wins over file
// values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/arbwatch/arbwatch/internal/fees"
)

// Config is the full runtime configuration.
type Config struct {
	// Thresholds
	MinSpreadBPS  float64
	MinTriGainBPS float64
	MinNotional   float64

	// Universe
	SymbolUniverse   []string
	HotSymbols       []string
	TriBases         []string
	TriExcludeQuotes []string
	IncludeExchanges []string
	ExcludeExchanges []string

	// Pipeline tuning
	DepthLevels            int
	CoalesceWindow         time.Duration
	ScanInterval           time.Duration
	MaxConcurrentExchanges int
	HealthCheckInterval    time.Duration
	MaxReconnectAttempts   int
	BackoffMax             time.Duration

	// Sinks
	TelegramBotToken string
	TelegramChatID   string
	PostgresDSN      string
	RedisAddr        string
	MetricsAddr      string

	LogLevel string

	// Per-venue fee overrides keyed by lowercase venue name.
	FeeOverrides map[string]fees.Override
}

const defaultUniverse = "BTC/USDT,ETH/USDT,SOL/USDT,XRP/USDT,BNB/USDT,ADA/USDT,DOGE/USDT,TON/USDT,AVAX/USDT,LINK/USDT"

// Load reads configuration from the process environment, applying the
// documented defaults.
func Load() (*Config, error) {
	c := &Config{
		MinSpreadBPS:  envFloat("MIN_SPREAD_BPS", 50.0),
		MinTriGainBPS: envFloat("MIN_TRI_GAIN_BPS", 30.0),
		MinNotional:   envFloat("MIN_NOTIONAL", 100.0),

		SymbolUniverse:   envList("SYMBOL_UNIVERSE", defaultUniverse),
		HotSymbols:       envList("HOT_SYMBOLS", "BTC/USDT,ETH/USDT,BNB/USDT"),
		TriBases:         envList("TRI_BASES", "USDT,USDC,BTC"),
		TriExcludeQuotes: envList("TRI_EXCLUDE_QUOTES", ""),
		IncludeExchanges: envList("INCLUDE_EXCHANGES", ""),
		ExcludeExchanges: envList("EXCLUDE_EXCHANGES", ""),

		DepthLevels:            envInt("DEPTH_LEVELS", 10),
		CoalesceWindow:         time.Duration(envInt("COALESCE_MS", 75)) * time.Millisecond,
		ScanInterval:           time.Duration(envInt("TRI_SCAN_MS", 150)) * time.Millisecond,
		MaxConcurrentExchanges: envInt("MAX_CONCURRENT_EXCHANGES", 20),
		HealthCheckInterval:    time.Duration(envInt("HEALTH_CHECK_INTERVAL_S", 30)) * time.Second,
		MaxReconnectAttempts:   envInt("MAX_RECONNECT_ATTEMPTS", 5),
		BackoffMax:             time.Duration(envInt("BACKOFF_MAX_S", 60)) * time.Second,

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		PostgresDSN:      os.Getenv("PG_DSN"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		MetricsAddr:      envString("METRICS_ADDR", ":9090"),
		LogLevel:         envString("LOG_LEVEL", "info"),

		FeeOverrides: feeOverridesFromEnv(os.Environ()),
	}

	if c.MinNotional <= 0 {
		return nil, fmt.Errorf("MIN_NOTIONAL must be positive, got %f", c.MinNotional)
	}
	if c.DepthLevels <= 0 {
		return nil, fmt.Errorf("DEPTH_LEVELS must be positive, got %d", c.DepthLevels)
	}
	return c, nil
}

// AlertsEnabled reports whether the notification sink is configured.
func (c *Config) AlertsEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

// IsHot reports whether a symbol belongs to the fast-poll set.
func (c *Config) IsHot(symbol string) bool {
	for _, s := range c.HotSymbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// VenueAllowed applies the include/exclude venue filters.
func (c *Config) VenueAllowed(venue string) bool {
	venue = strings.ToLower(venue)
	for _, ex := range c.ExcludeExchanges {
		if strings.ToLower(ex) == venue {
			return false
		}
	}
	if len(c.IncludeExchanges) == 0 {
		return true
	}
	for _, inc := range c.IncludeExchanges {
		if strings.ToLower(inc) == venue {
			return true
		}
	}
	return false
}

// feeOverridesFromEnv extracts <VENUE>_TAKER_FEE / <VENUE>_MAKER_FEE
// variables. Values outside [0,1) are ignored.
func feeOverridesFromEnv(environ []string) map[string]fees.Override {
	overrides := make(map[string]fees.Override)
	for _, kv := range environ {
		i := strings.IndexByte(kv, '=')
		if i < 0 {
			continue
		}
		name, value := kv[:i], kv[i+1:]

		var venue string
		var taker bool
		switch {
		case strings.HasSuffix(name, "_TAKER_FEE"):
			venue, taker = strings.TrimSuffix(name, "_TAKER_FEE"), true
		case strings.HasSuffix(name, "_MAKER_FEE"):
			venue, taker = strings.TrimSuffix(name, "_MAKER_FEE"), false
		default:
			continue
		}
		if venue == "" {
			continue
		}

		rate, err := strconv.ParseFloat(value, 64)
		if err != nil || rate < 0 || rate >= 1 {
			continue
		}

		ov := overrides[strings.ToLower(venue)]
		if taker {
			ov.Taker = &rate
		} else {
			ov.Maker = &rate
		}
		overrides[strings.ToLower(venue)] = ov
	}
	return overrides
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envFloat(name string, def float64) float64 {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envList(name, def string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		raw = def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
