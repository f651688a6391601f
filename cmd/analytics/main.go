package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"statarb-systemv1/config"
	"statarb-systemv1/internal/analytics"
	"statarb-systemv1/internal/logger"
	"statarb-systemv1/internal/metrics"
	"statarb-systemv1/internal/model"
	"statarb-systemv1/internal/pairs"
	redisstore "statarb-systemv1/internal/store/redis"
	sqlitestore "statarb-systemv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	slogger := logger.Init("analytics", slog.LevelInfo)

	cfg := config.Load()
	slogger.Info("analytics starting", "pair", cfg.Pair())

	// ---- Setup metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetPair(cfg.Pair())
	health.SetWSConnected(true) // analytics reads the DB, not the exchange
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Analytics engine ----
	engine, err := pairs.NewEngine(cfg.EngineConfig())
	if err != nil {
		log.Fatalf("[analytics] engine config invalid: %v", err)
	}
	engine.OnMalformedTick = func() {
		prom.MalformedTicks.Inc()
	}
	health.SetEngineOK(true)
	log.Printf("[analytics] engine ready: pair=%s resample=%v hedge_window=%d stats_window=%d",
		cfg.Pair(), cfg.ResampleInterval, cfg.HedgeWindow, cfg.StatsWindow)

	// ---- Tick store reader ----
	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[analytics] sqlite reader init failed: %v", err)
	}
	defer reader.Close()
	health.SetSQLiteOK(true)

	// ---- Redis publisher ----
	var publisher analytics.SnapshotPublisher
	redisWriter, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[analytics] WARNING: redis init failed: %v (continuing without redis)", err)
		health.SetRedisConnected(false)
	} else {
		defer redisWriter.Close()
		redisWriter.OnWrite = func(dur time.Duration) {
			prom.RedisWriteDur.Observe(dur.Seconds())
		}
		publisher = redisWriter
		health.SetRedisConnected(true)
		log.Println("[analytics] redis publisher ready")
	}

	// ---- Periodic liveness checks ----
	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), reader.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, reader.DB(), 10*time.Second)
	}

	// ---- Service ----
	svc := analytics.New(analytics.Config{
		SymbolA:         cfg.SymbolA,
		SymbolB:         cfg.SymbolB,
		TickLimit:       cfg.TickLimit,
		RefreshInterval: cfg.RefreshInterval,
		HTTPAddr:        cfg.HTTPAddr,
	}, engine, reader, publisher)

	svc.OnRecompute = func(snap *model.Snapshot, dur time.Duration) {
		prom.RecomputeTotal.Inc()
		prom.RecomputeDur.Observe(dur.Seconds())
		prom.SnapshotBars.Set(float64(len(snap.Bars)))
		prom.SnapshotLag.Set(time.Since(snap.ComputedAt).Seconds())

		if hr := snap.HedgeRatio; hr != nil {
			prom.HedgeSlope.Set(hr.Slope)
			prom.HedgeR2.Set(hr.RSquared)
		}
		if z := snap.LatestZScore(); z.OK {
			prom.LatestZScore.Set(z.V)
		}
		if st := snap.Stationarity; st != nil {
			prom.ADFPValue.Set(st.PValue)
			if st.IsStationary {
				prom.Stationary.Set(1)
			} else {
				prom.Stationary.Set(0)
			}
		}
		prom.SignalState.Set(signalGauge(snap.Signal))

		health.SetLastSnapshotAt(snap.ComputedAt)
	}
	svc.OnError = func() {
		prom.RecomputeErrors.Inc()
	}

	go svc.Run(ctx)
	log.Printf("[analytics] refresh loop running every %v (tick limit %d)", cfg.RefreshInterval, cfg.TickLimit)

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[analytics] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[analytics] shutdown complete.")
}

// signalGauge maps the discrete signal onto a gauge: BUY=-1, NEUTRAL=0, SELL=1.
func signalGauge(s model.Signal) float64 {
	switch s {
	case model.SignalBuy:
		return -1
	case model.SignalSell:
		return 1
	default:
		return 0
	}
}
