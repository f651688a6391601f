package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pairs analytics system.
type Metrics struct {
	// Collector
	TicksTotal      *prometheus.CounterVec // labels: symbol
	WSReconnects    prometheus.Counter
	DroppedTicks    prometheus.Counter
	MalformedTicks  prometheus.Counter
	SQLiteCommitDur prometheus.Histogram
	RingBufOverflow prometheus.Counter

	// Backpressure
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name

	// Analytics engine
	RecomputeTotal  prometheus.Counter
	RecomputeDur    prometheus.Histogram
	RecomputeErrors prometheus.Counter
	SnapshotBars    prometheus.Gauge
	SnapshotLag     prometheus.Gauge

	// Pair state gauges, refreshed per recompute cycle.
	HedgeSlope   prometheus.Gauge
	HedgeR2      prometheus.Gauge
	LatestZScore prometheus.Gauge
	ADFPValue    prometheus.Gauge
	Stationary   prometheus.Gauge // 0=no, 1=yes
	SignalState  prometheus.Gauge // -1=BUY, 0=NEUTRAL, 1=SELL

	// Publishing
	RedisWriteDur prometheus.Histogram
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statarb_ticks_total",
			Help: "Total ticks received from the exchange stream (by symbol)",
		}, []string{"symbol"}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "statarb_ws_reconnects_total",
			Help: "Total WebSocket reconnection attempts",
		}),
		DroppedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "statarb_dropped_ticks_total",
			Help: "Ticks dropped because a pipeline channel was full",
		}),
		MalformedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "statarb_malformed_ticks_total",
			Help: "Ticks rejected during normalization (bad price, bad timestamp)",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "statarb_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "statarb_ringbuf_overflow_total",
			Help: "Ring buffer push overflows (dropped ticks)",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statarb_fanout_drops_total",
			Help: "Ticks dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "statarb_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		RecomputeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "statarb_recompute_total",
			Help: "Total analytics recompute cycles completed",
		}),
		RecomputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "statarb_recompute_duration_seconds",
			Help:    "Full analytics cycle latency (resample through signal)",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),
		RecomputeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "statarb_recompute_errors_total",
			Help: "Recompute cycles that failed outright",
		}),
		SnapshotBars: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "statarb_snapshot_bars",
			Help: "Resampled bars in the latest snapshot",
		}),
		SnapshotLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "statarb_snapshot_lag_seconds",
			Help: "Age of the latest published snapshot",
		}),

		HedgeSlope: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "statarb_hedge_slope",
			Help: "Hedge ratio slope currently in force",
		}),
		HedgeR2: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "statarb_hedge_r_squared",
			Help: "Hedge regression R-squared",
		}),
		LatestZScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "statarb_latest_zscore",
			Help: "Most recent defined spread z-score",
		}),
		ADFPValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "statarb_adf_p_value",
			Help: "ADF test p-value from the latest cycle",
		}),
		Stationary: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "statarb_spread_stationary",
			Help: "Stationarity verdict (0=no, 1=yes)",
		}),
		SignalState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "statarb_signal_state",
			Help: "Current trade signal (-1=BUY, 0=NEUTRAL, 1=SELL)",
		}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "statarb_redis_write_duration_seconds",
			Help:    "Redis snapshot publish latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.WSReconnects,
		m.DroppedTicks,
		m.MalformedTicks,
		m.SQLiteCommitDur,
		m.RingBufOverflow,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.RecomputeTotal,
		m.RecomputeDur,
		m.RecomputeErrors,
		m.SnapshotBars,
		m.SnapshotLag,
		m.HedgeSlope,
		m.HedgeR2,
		m.LatestZScore,
		m.ADFPValue,
		m.Stationary,
		m.SignalState,
		m.RedisWriteDur,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool      `json:"ws_connected"`
	LastTickTime   time.Time `json:"last_tick_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	EngineOK       bool      `json:"engine_ok"`
	Pair           string    `json:"pair"`
	LastSnapshotAt time.Time `json:"last_snapshot_at"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetEngineOK(v bool) {
	h.mu.Lock()
	h.EngineOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetPair(pair string) {
	h.mu.Lock()
	h.Pair = pair
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastSnapshotAt(t time.Time) {
	h.mu.Lock()
	h.LastSnapshotAt = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Determine overall status
	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.RedisConnected || !h.SQLiteOK || !h.EngineOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	// Tick age
	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}
	snapAge := ""
	if !h.LastSnapshotAt.IsZero() {
		snapAge = time.Since(h.LastSnapshotAt).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		Pair            string  `json:"pair"`
		WSConnected     bool    `json:"ws_connected"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		SnapshotAge     string  `json:"snapshot_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		EngineOK        bool    `json:"engine_ok"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Pair:            h.Pair,
		WSConnected:     h.WSConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		SnapshotAge:     snapAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		EngineOK:        h.EngineOK,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
