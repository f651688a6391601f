package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"statarb-systemv1/config"
	"statarb-systemv1/internal/logger"
	"statarb-systemv1/internal/marketdata/bus"
	"statarb-systemv1/internal/marketdata/replay"
	"statarb-systemv1/internal/marketdata/ws"
	"statarb-systemv1/internal/metrics"
	"statarb-systemv1/internal/model"
	"statarb-systemv1/internal/ringbuf"
	sqlitestore "statarb-systemv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	slogger := logger.Init("collector", slog.LevelInfo)

	cfg := config.Load()
	symbols := []string{cfg.SymbolA, cfg.SymbolB}
	slogger.Info("collector starting", "pair", cfg.Pair(), "db", cfg.SQLitePath)

	// ---- Setup metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetPair(cfg.Pair())
	health.SetEngineOK(true) // collector has no analytics engine
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Start SQLite writer ----
	os.MkdirAll("data", 0o755)
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[collector] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	sqlWriter.OnCommit = func(n int, dur time.Duration) {
		prom.SQLiteCommitDur.Observe(dur.Seconds())
	}
	health.SetSQLiteOK(true)
	health.SetRedisConnected(true) // collector does not touch Redis
	log.Println("[collector] sqlite writer ready")

	health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)

	// ---- Ring buffer between the WS read loop and the pipeline ----
	// The stream bursts on volatile markets; the SPSC ring absorbs spikes
	// without blocking the socket reader.
	ring := ringbuf.New(16384)
	ingestCh := make(chan model.Tick, 1000)
	busInput := make(chan model.Tick, 5000)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tick, ok := <-ingestCh:
				if !ok {
					return
				}
				if !ring.Push(tick) {
					prom.RingBufOverflow.Inc()
				}
			}
		}
	}()

	go func() {
		for {
			if ctx.Err() != nil {
				return
			}
			tick, ok := ring.Pop()
			if !ok {
				time.Sleep(time.Millisecond)
				continue
			}
			select {
			case busInput <- tick:
			default:
				prom.DroppedTicks.Inc()
			}
		}
	}()

	// ---- Fan out ticks to SQLite + liveness tracking ----
	fanout := bus.New(5000)
	fanout.OnDrop = func(subscriberIdx int) {
		prom.FanoutDropsTotal.WithLabelValues(strconv.Itoa(subscriberIdx)).Inc()
	}

	sqliteTickCh := fanout.Subscribe()
	trackCh := fanout.Subscribe()
	go fanout.Run(ctx, busInput)

	go sqlWriter.Run(ctx, sqliteTickCh)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tick, ok := <-trackCh:
				if !ok {
					return
				}
				prom.TicksTotal.WithLabelValues(tick.Symbol).Inc()
				health.SetLastTickTime(tick.TS)
			}
		}
	}()

	// ---- Channel saturation reporting ----
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := fanout.ChannelStats()
				for i, s := range stats {
					if s.Cap > 0 {
						pct := float64(s.Len) / float64(s.Cap) * 100
						prom.ChannelSaturationPct.WithLabelValues("fanout_" + strconv.Itoa(i)).Set(pct)
					}
				}
				prom.ChannelSaturationPct.WithLabelValues("ringbuf").
					Set(float64(ring.Len()) / float64(ring.Cap()) * 100)
			}
		}
	}()

	// ---- Retention pruning ----
	if cfg.TickRetention > 0 {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					n, err := sqlWriter.Prune(time.Now().Add(-cfg.TickRetention))
					if err != nil {
						log.Printf("[collector] prune failed: %v", err)
					} else if n > 0 {
						log.Printf("[collector] pruned %d ticks older than %v", n, cfg.TickRetention)
					}
				}
			}
		}()
	}

	// ---- Tick source: replay (staging) or live exchange stream ----
	if cfg.ReplayMode {
		replayDB := cfg.ReplayDB
		if replayDB == "" {
			log.Fatal("[collector] REPLAY_MODE=true requires REPLAY_DB")
		}
		reader, err := sqlitestore.NewReader(replayDB)
		if err != nil {
			log.Fatalf("[collector] replay reader init failed: %v", err)
		}
		defer reader.Close()

		// Resume past ticks already copied into the destination store; the
		// primary key makes any overlap idempotent anyway.
		var fromMs int64
		for _, sym := range symbols {
			ts, err := sqlWriter.LastTimestamp(sym)
			if err != nil {
				log.Printf("[collector] last-timestamp lookup failed for %s: %v (replaying from the start)", sym, err)
				fromMs = 0
				break
			}
			if ts == 0 {
				fromMs = 0
				break
			}
			if fromMs == 0 || ts < fromMs {
				fromMs = ts
			}
		}

		health.SetWSConnected(true)
		log.Printf("[collector] *** REPLAY MODE — source %s at %.1fx ***", replayDB, cfg.ReplaySpeed)
		if fromMs > 0 {
			log.Printf("[collector] resuming replay after %s", time.UnixMilli(fromMs).UTC())
		}

		go func() {
			rep := replay.New(reader)
			if err := rep.Run(ctx, symbols, fromMs, cfg.ReplaySpeed, ingestCh); err != nil && ctx.Err() == nil {
				log.Printf("[collector] replay error: %v", err)
			}
			health.SetWSConnected(false)
		}()
	} else {
		ingest, err := ws.New(ws.Config{
			BaseURL: cfg.WSBaseURL,
			Symbols: symbols,
		})
		if err != nil {
			log.Fatalf("[collector] ws init failed: %v", err)
		}
		ingest.OnReconnect = func() {
			prom.WSReconnects.Inc()
		}
		ingest.OnMalformed = func() {
			prom.MalformedTicks.Inc()
		}
		health.SetWSConnected(true)

		go func() {
			if err := ingest.Start(ctx, ingestCh); err != nil {
				log.Printf("[collector] ws error: %v", err)
			}
			health.SetWSConnected(false)
		}()

		log.Printf("[collector] streaming %v trades into %s", symbols, cfg.SQLitePath)
	}

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[collector] shutdown signal received, cleaning up...")
	cancel()

	// Give goroutines time to flush buffers
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[collector] shutdown complete.")
}
