package pairs

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"statarb-systemv1/internal/model"
)

// Config holds every knob of the analytics pipeline. It is validated once,
// before any computation; an invalid configuration is the only fatal error
// class in the pipeline.
type Config struct {
	SymbolA string
	SymbolB string

	ResampleInterval time.Duration
	JoinTolerance    time.Duration // 0 = same as ResampleInterval
	MaxGap           int           // carry-forward bound, in bars

	HedgeWindow        int
	HedgeRecomputeBars int // 0 = static per session, N = re-estimate every N new bars
	InterceptEnabled   bool

	StatsWindow int
	CorrWindow  int // 0 = same as StatsWindow

	ADFMaxLag    int // 0 = Schwert rule
	Significance float64

	MaxHistoryBars int // cap on resampled history per cycle, 0 = unbounded

	StrictDuplicates bool
}

// Validate rejects impossible configurations. Called by NewEngine; services
// should treat an error here as fatal at startup.
func (c *Config) Validate() error {
	if c.SymbolA == "" || c.SymbolB == "" || c.SymbolA == c.SymbolB {
		return fmt.Errorf("config: need two distinct symbols, got %q and %q", c.SymbolA, c.SymbolB)
	}
	if c.ResampleInterval <= 0 {
		return fmt.Errorf("config: resample interval must be positive, got %v", c.ResampleInterval)
	}
	if c.JoinTolerance < 0 {
		return fmt.Errorf("config: join tolerance must be >= 0, got %v", c.JoinTolerance)
	}
	if c.MaxGap < 0 {
		return fmt.Errorf("config: max gap must be >= 0, got %d", c.MaxGap)
	}
	if c.HedgeWindow < 2 {
		return fmt.Errorf("config: hedge window must be >= 2, got %d", c.HedgeWindow)
	}
	if c.HedgeRecomputeBars < 0 {
		return fmt.Errorf("config: hedge recompute cadence must be >= 0, got %d", c.HedgeRecomputeBars)
	}
	if c.StatsWindow < 2 {
		return fmt.Errorf("config: stats window must be >= 2, got %d", c.StatsWindow)
	}
	if c.CorrWindow < 0 {
		return fmt.Errorf("config: correlation window must be >= 0, got %d", c.CorrWindow)
	}
	if c.Significance <= 0 || c.Significance >= 1 {
		return fmt.Errorf("config: significance level must be in (0,1), got %v", c.Significance)
	}
	if c.MaxHistoryBars < 0 {
		return fmt.Errorf("config: max history bars must be >= 0, got %d", c.MaxHistoryBars)
	}
	return nil
}

// Engine runs the full analytics chain per recompute cycle:
// resample → hedge ratio → spread → rolling stats → ADF → signal.
//
// Recompute is serialized with a mutex; the finished snapshot replaces the
// previous one atomically, so concurrent readers (HTTP handlers, publishers)
// always observe a complete cycle.
type Engine struct {
	cfg Config

	frame     *FrameBuilder
	resampler *Resampler
	hedge     *HedgeEstimator
	rolling   *RollingStats
	adf       *ADFTester

	mu   sync.Mutex // serializes recompute cycles
	snap *model.Snapshot

	// Hedge cadence state: the ratio in force and the timestamp of the
	// newest observed bar when it was last estimated. Counting bars past
	// this mark keeps the cadence working once the history cap turns the
	// input into a constant-length sliding window.
	lastHedge *model.HedgeRatio
	hedgeAsOf time.Time

	// OnMalformedTick is invoked per dropped input tick (optional).
	OnMalformedTick func()
}

// NewEngine validates cfg and wires the pipeline stages.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.JoinTolerance == 0 {
		cfg.JoinTolerance = cfg.ResampleInterval
	}
	if cfg.CorrWindow == 0 {
		cfg.CorrWindow = cfg.StatsWindow
	}

	e := &Engine{
		cfg: cfg,
		resampler: &Resampler{
			Interval: cfg.ResampleInterval,
			MaxGap:   cfg.MaxGap,
		},
		hedge: &HedgeEstimator{
			Window:    cfg.HedgeWindow,
			Intercept: cfg.InterceptEnabled,
		},
		rolling: &RollingStats{
			StatsWindow: cfg.StatsWindow,
			CorrWindow:  cfg.CorrWindow,
		},
		adf: &ADFTester{
			MaxLag:       cfg.ADFMaxLag,
			Significance: cfg.Significance,
		},
	}
	e.frame = NewFrameBuilder(FrameConfig{
		Tolerance:        cfg.JoinTolerance,
		StrictDuplicates: cfg.StrictDuplicates,
	})
	e.frame.OnMalformedTick = func() {
		if e.OnMalformedTick != nil {
			e.OnMalformedTick()
		}
	}
	return e, nil
}

// RecomputeTicks aligns the two raw tick sequences and runs a full recompute
// cycle. This is the entry point for callers holding raw ticks.
func (e *Engine) RecomputeTicks(ticksA, ticksB []model.Tick) (*model.Snapshot, error) {
	paired, err := e.frame.BuildPaired(ticksA, ticksB)
	if err != nil {
		return nil, err
	}
	return e.Recompute(paired)
}

// Recompute runs the full chain over an aligned paired series and publishes
// the resulting snapshot. Idempotent for identical input and identical
// hedge-cadence state. Branch failures (hedge window not full, ADF sample
// too small) leave the corresponding snapshot field nil and never abort the
// other branches.
func (e *Engine) Recompute(paired model.PairedSeries) (*model.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bars := e.resampler.Resample(paired)
	if e.cfg.MaxHistoryBars > 0 && len(bars) > e.cfg.MaxHistoryBars {
		bars = bars[len(bars)-e.cfg.MaxHistoryBars:]
	}

	now := time.Now().UTC()
	snap := &model.Snapshot{
		SymbolA:    e.cfg.SymbolA,
		SymbolB:    e.cfg.SymbolB,
		Bars:       bars,
		Signal:     model.SignalNeutral,
		ComputedAt: now,
	}

	// Hedge ratio: re-estimated per cadence, retained on degenerate cycles.
	snap.HedgeRatio = e.hedgeForCycle(bars, now)

	// Spread depends on the hedge ratio and must be recomputed with it.
	if snap.HedgeRatio != nil {
		snap.Spread = ComputeSpread(bars, snap.HedgeRatio)
		snap.Rolling = e.rolling.Compute(bars, snap.Spread)
		snap.Signal = SignalFromZ(snap.LatestZScore())

		// Stationarity branch is isolated: its failure only leaves the
		// field nil.
		st, err := e.adf.Test(snap.Spread)
		if err != nil {
			if !errors.Is(err, ErrInsufficientData) {
				log.Printf("[pairs] adf test failed: %v", err)
			}
		} else {
			snap.Stationarity = st
		}
	}

	e.snap = snap
	return snap, nil
}

// hedgeForCycle applies the recompute cadence: static ratios persist for the
// session, rolling ratios refresh once enough new bars arrived. On a
// degenerate regressor the prior ratio stays in force for this cycle.
func (e *Engine) hedgeForCycle(bars model.PairedSeries, now time.Time) *model.HedgeRatio {
	newObs := 0
	var lastTS time.Time
	for _, b := range bars {
		if b.Missing {
			continue
		}
		if b.TS.After(e.hedgeAsOf) {
			newObs++
		}
		lastTS = b.TS
	}

	due := e.lastHedge == nil
	if !due && e.cfg.HedgeRecomputeBars > 0 {
		due = newObs >= e.cfg.HedgeRecomputeBars
	}
	if !due {
		return e.lastHedge
	}

	hr, err := e.hedge.Estimate(bars, now)
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientData):
			// Window not yet full: report the prior ratio if any.
		case errors.Is(err, ErrDegenerateRegressor):
			log.Printf("[pairs] hedge estimation skipped this cycle: %v", err)
		default:
			log.Printf("[pairs] hedge estimation failed: %v", err)
		}
		return e.lastHedge
	}

	e.lastHedge = hr
	e.hedgeAsOf = lastTS
	return hr
}

// Latest returns the most recently published snapshot, or nil before the
// first completed cycle. The snapshot is immutable; callers must not modify
// it.
func (e *Engine) Latest() *model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

// Config returns a copy of the engine's effective configuration (defaults
// resolved).
func (e *Engine) Config() Config {
	return e.cfg
}
