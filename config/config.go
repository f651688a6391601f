package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"statarb-systemv1/internal/pairs"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Pair under analysis
	SymbolA string
	SymbolB string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	HTTPAddr      string

	// Collector
	WSBaseURL     string
	TickRetention time.Duration

	// Replay (staging tick source)
	ReplayMode  bool
	ReplayDB    string
	ReplaySpeed float64

	// Analytics cadence
	RefreshInterval time.Duration
	TickLimit       int

	// Engine knobs
	ResampleInterval   time.Duration
	JoinTolerance      time.Duration
	MaxGap             int
	HedgeWindow        int
	HedgeRecomputeBars int
	InterceptEnabled   bool
	StatsWindow        int
	CorrWindow         int
	ADFMaxLag          int
	Significance       float64
	MaxHistoryBars     int
	StrictDuplicates   bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		SymbolA: getEnv("SYMBOL_A", "BTCUSDT"),
		SymbolB: getEnv("SYMBOL_B", "ETHUSDT"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/ticks.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),

		WSBaseURL:     getEnv("WS_BASE_URL", ""),
		TickRetention: getDuration("TICK_RETENTION", 24*time.Hour),

		ReplayMode:  getBool("REPLAY_MODE", false),
		ReplayDB:    getEnv("REPLAY_DB", ""),
		ReplaySpeed: getFloat("REPLAY_SPEED", 1.0),

		RefreshInterval: getDuration("REFRESH_INTERVAL", 5*time.Second),
		TickLimit:       getInt("TICK_LIMIT", 5000),

		ResampleInterval:   getDuration("RESAMPLE_INTERVAL", time.Second),
		JoinTolerance:      getDuration("JOIN_TOLERANCE", 0),
		MaxGap:             getInt("MAX_GAP", 5),
		HedgeWindow:        getInt("HEDGE_WINDOW", 60),
		HedgeRecomputeBars: getInt("HEDGE_RECOMPUTE_BARS", 1),
		InterceptEnabled:   getBool("INTERCEPT_ENABLED", true),
		StatsWindow:        getInt("STATS_WINDOW", 20),
		CorrWindow:         getInt("CORR_WINDOW", 0),
		ADFMaxLag:          getInt("ADF_MAX_LAG", 0),
		Significance:       getFloat("SIGNIFICANCE", 0.05),
		MaxHistoryBars:     getInt("MAX_HISTORY_BARS", 5000),
		StrictDuplicates:   getBool("STRICT_DUPLICATES", false),
	}
}

// EngineConfig maps the env configuration to the analytics engine config.
// Validation happens in pairs.NewEngine; services treat a failure there as
// fatal at startup.
func (c *Config) EngineConfig() pairs.Config {
	return pairs.Config{
		SymbolA:            c.SymbolA,
		SymbolB:            c.SymbolB,
		ResampleInterval:   c.ResampleInterval,
		JoinTolerance:      c.JoinTolerance,
		MaxGap:             c.MaxGap,
		HedgeWindow:        c.HedgeWindow,
		HedgeRecomputeBars: c.HedgeRecomputeBars,
		InterceptEnabled:   c.InterceptEnabled,
		StatsWindow:        c.StatsWindow,
		CorrWindow:         c.CorrWindow,
		ADFMaxLag:          c.ADFMaxLag,
		Significance:       c.Significance,
		MaxHistoryBars:     c.MaxHistoryBars,
		StrictDuplicates:   c.StrictDuplicates,
	}
}

// Pair returns the "{A}:{B}" label used in logs and health output.
func (c *Config) Pair() string {
	return c.SymbolA + ":" + c.SymbolB
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return d
}
