// Package analytics runs the pair analytics refresh loop: pull the latest
// ticks for both legs from the tick store, run a full recompute cycle, and
// publish the resulting snapshot.
package analytics

import (
	"context"
	"log"
	"time"

	"statarb-systemv1/internal/model"
	"statarb-systemv1/internal/pairs"
)

// TickSource supplies the most recent ticks per symbol. Satisfied by the
// SQLite reader.
type TickSource interface {
	ReadLatestTicks(symbol string, limit int) ([]model.Tick, error)
}

// SnapshotPublisher pushes finished cycles downstream. Satisfied by the Redis
// writer. A nil publisher disables publishing (HTTP API still serves the
// latest snapshot).
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snap *model.Snapshot) error
	PublishSignal(ctx context.Context, snap *model.Snapshot, signal model.Signal) error
}

// Config holds the service-level knobs; engine knobs live in pairs.Config.
type Config struct {
	SymbolA string
	SymbolB string

	// TickLimit caps how many of the newest ticks per symbol feed a cycle.
	TickLimit int

	// RefreshInterval is the recompute cadence.
	RefreshInterval time.Duration

	// HTTPAddr serves the snapshot API ("" disables it).
	HTTPAddr string
}

// Service drives recompute cycles on a timer.
type Service struct {
	cfg       Config
	engine    *pairs.Engine
	source    TickSource
	publisher SnapshotPublisher

	lastSignal model.Signal

	// Optional metrics hooks.
	OnRecompute func(snap *model.Snapshot, dur time.Duration)
	OnError     func()
}

// New wires the service. publisher may be nil.
func New(cfg Config, engine *pairs.Engine, source TickSource, publisher SnapshotPublisher) *Service {
	return &Service{
		cfg:        cfg,
		engine:     engine,
		source:     source,
		publisher:  publisher,
		lastSignal: model.SignalNeutral,
	}
}

// Engine exposes the underlying engine for the HTTP handlers.
func (svc *Service) Engine() *pairs.Engine { return svc.engine }

// Run starts the HTTP API (if configured) and the refresh loop.
// Blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) {
	if svc.cfg.HTTPAddr != "" {
		svc.startHTTP(ctx)
	}

	// First cycle immediately, then on the ticker.
	svc.RecomputeOnce(ctx)

	ticker := time.NewTicker(svc.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.RecomputeOnce(ctx)
		}
	}
}

// RecomputeOnce runs a single fetch-compute-publish cycle.
func (svc *Service) RecomputeOnce(ctx context.Context) {
	ticksA, err := svc.source.ReadLatestTicks(svc.cfg.SymbolA, svc.cfg.TickLimit)
	if err != nil {
		log.Printf("[analytics] read %s ticks: %v", svc.cfg.SymbolA, err)
		svc.fail()
		return
	}
	ticksB, err := svc.source.ReadLatestTicks(svc.cfg.SymbolB, svc.cfg.TickLimit)
	if err != nil {
		log.Printf("[analytics] read %s ticks: %v", svc.cfg.SymbolB, err)
		svc.fail()
		return
	}
	if len(ticksA) == 0 || len(ticksB) == 0 {
		log.Printf("[analytics] waiting for ticks (%s=%d, %s=%d)",
			svc.cfg.SymbolA, len(ticksA), svc.cfg.SymbolB, len(ticksB))
		return
	}

	start := time.Now()
	snap, err := svc.engine.RecomputeTicks(ticksA, ticksB)
	if err != nil {
		log.Printf("[analytics] recompute: %v", err)
		svc.fail()
		return
	}
	dur := time.Since(start)

	if svc.OnRecompute != nil {
		svc.OnRecompute(snap, dur)
	}

	svc.publish(ctx, snap)
}

// publish sends the snapshot downstream and emits a signal event on
// transitions only.
func (svc *Service) publish(ctx context.Context, snap *model.Snapshot) {
	if svc.publisher == nil {
		return
	}
	if err := svc.publisher.PublishSnapshot(ctx, snap); err != nil {
		log.Printf("[analytics] publish snapshot: %v", err)
		svc.fail()
	}
	if snap.Signal != svc.lastSignal {
		log.Printf("[analytics] signal transition %s -> %s", svc.lastSignal, snap.Signal)
		if err := svc.publisher.PublishSignal(ctx, snap, snap.Signal); err != nil {
			log.Printf("[analytics] publish signal: %v", err)
		}
		svc.lastSignal = snap.Signal
	}
}

func (svc *Service) fail() {
	if svc.OnError != nil {
		svc.OnError()
	}
}
