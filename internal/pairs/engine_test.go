package pairs

import (
	"math"
	"sync"
	"testing"
	"time"

	"statarb-systemv1/internal/model"
)

func engineCfg() Config {
	return Config{
		SymbolA:            "BTCUSDT",
		SymbolB:            "ETHUSDT",
		ResampleInterval:   time.Minute,
		MaxGap:             3,
		HedgeWindow:        20,
		HedgeRecomputeBars: 1,
		InterceptEnabled:   true,
		StatsWindow:        10,
		Significance:       0.05,
	}
}

// enginePaired produces n aligned bars where price_b = 2·price_a + noise,
// so regressing a on b recovers a slope near 0.5.
func enginePaired(n int, seed uint64) model.PairedSeries {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	noise := noiseGen(seed)
	series := make(model.PairedSeries, n)
	for i := 0; i < n; i++ {
		pa := 100 + 0.5*float64(i) + 2*noise()
		pb := 2*pa + 0.2*noise()
		series[i] = model.PairedBar{TS: base.Add(time.Duration(i) * time.Minute), PriceA: pa, PriceB: pb}
	}
	return series
}

func TestEngine_FullCycle(t *testing.T) {
	e, err := NewEngine(engineCfg())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	snap, err := e.Recompute(enginePaired(100, 11))
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	if snap.HedgeRatio == nil {
		t.Fatal("expected a hedge ratio with a full window")
	}
	if math.Abs(snap.HedgeRatio.Slope-0.5) > 0.05 {
		t.Errorf("slope=%v, expected ~0.5 for price_b = 2*price_a + noise", snap.HedgeRatio.Slope)
	}

	if len(snap.Spread) != 100 {
		t.Fatalf("expected 100 spread points, got %d", len(snap.Spread))
	}
	var mean float64
	for _, p := range snap.Spread {
		mean += p.Spread
	}
	mean /= float64(len(snap.Spread))
	if math.Abs(mean) > 0.5 {
		t.Errorf("spread mean=%v, expected near zero after hedging", mean)
	}

	if len(snap.Rolling) != len(snap.Spread) {
		t.Errorf("rolling series length %d != spread length %d", len(snap.Rolling), len(snap.Spread))
	}
	if snap.Stationarity == nil {
		t.Error("expected a stationarity result with 100 observations")
	}
	switch snap.Signal {
	case model.SignalBuy, model.SignalSell, model.SignalNeutral:
	default:
		t.Errorf("unknown signal %q", snap.Signal)
	}

	if got := e.Latest(); got != snap {
		t.Error("Latest must return the published snapshot")
	}
}

func TestEngine_RecomputeTicks(t *testing.T) {
	e, err := NewEngine(engineCfg())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var ticksA, ticksB []model.Tick
	noise := noiseGen(5)
	for i := 0; i < 60; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		pa := 200 + float64(i) + noise()
		ticksA = append(ticksA, model.Tick{Symbol: "BTCUSDT", TS: ts, Price: pa, Qty: 1})
		// Leg B trades a few seconds later inside the join tolerance.
		ticksB = append(ticksB, model.Tick{Symbol: "ETHUSDT", TS: ts.Add(3 * time.Second), Price: 2*pa + noise(), Qty: 1})
	}

	snap, err := e.RecomputeTicks(ticksA, ticksB)
	if err != nil {
		t.Fatalf("RecomputeTicks: %v", err)
	}
	if len(snap.Bars) == 0 {
		t.Fatal("expected resampled bars from raw ticks")
	}
	if snap.HedgeRatio == nil {
		t.Fatal("expected a hedge ratio")
	}
	if math.Abs(snap.HedgeRatio.Slope-0.5) > 0.05 {
		t.Errorf("slope=%v, expected ~0.5", snap.HedgeRatio.Slope)
	}
}

// Two recomputes over identical input and cadence state must publish
// identical analytics.
func TestEngine_RecomputeIdempotent(t *testing.T) {
	cfg := engineCfg()
	cfg.HedgeRecomputeBars = 0 // static ratio keeps cadence state fixed
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	in := enginePaired(80, 23)
	first, err := e.Recompute(in)
	if err != nil {
		t.Fatalf("first Recompute: %v", err)
	}
	second, err := e.Recompute(in)
	if err != nil {
		t.Fatalf("second Recompute: %v", err)
	}

	if first.HedgeRatio.Slope != second.HedgeRatio.Slope {
		t.Errorf("slope changed across identical recomputes: %v vs %v", first.HedgeRatio.Slope, second.HedgeRatio.Slope)
	}
	if len(first.Spread) != len(second.Spread) {
		t.Fatalf("spread length changed: %d vs %d", len(first.Spread), len(second.Spread))
	}
	for i := range first.Spread {
		if first.Spread[i].Spread != second.Spread[i].Spread {
			t.Fatalf("spread diverged at %d: %v vs %v", i, first.Spread[i].Spread, second.Spread[i].Spread)
		}
	}
	if first.Signal != second.Signal {
		t.Errorf("signal changed: %s vs %s", first.Signal, second.Signal)
	}
}

func TestEngine_StaticHedgeRetained(t *testing.T) {
	mk := func(slope float64, n int) model.PairedSeries {
		base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		series := make(model.PairedSeries, n)
		for i := 0; i < n; i++ {
			pb := 100 + float64(i)
			series[i] = model.PairedBar{TS: base.Add(time.Duration(i) * time.Minute), PriceA: slope * pb, PriceB: pb}
		}
		return series
	}

	cfg := engineCfg()
	cfg.HedgeRecomputeBars = 0
	static, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	snap1, _ := static.Recompute(mk(2, 40))
	if snap1.HedgeRatio == nil || math.Abs(snap1.HedgeRatio.Slope-2) > 1e-9 {
		t.Fatalf("first cycle: got %+v, want slope 2", snap1.HedgeRatio)
	}

	// The relationship changes, but a static ratio stays in force.
	snap2, _ := static.Recompute(mk(3, 60))
	if snap2.HedgeRatio.Slope != snap1.HedgeRatio.Slope {
		t.Errorf("static ratio re-estimated: %v -> %v", snap1.HedgeRatio.Slope, snap2.HedgeRatio.Slope)
	}

	cfg.HedgeRecomputeBars = 1
	rolling, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	rolling.Recompute(mk(2, 40))
	snap3, _ := rolling.Recompute(mk(3, 60))
	if math.Abs(snap3.HedgeRatio.Slope-3) > 1e-9 {
		t.Errorf("rolling ratio must track the new relationship, got %v", snap3.HedgeRatio.Slope)
	}
}

// In steady state the tick limit turns every cycle's input into a
// constant-length sliding window: the series never grows, it only moves
// forward. The cadence must still count the bars it has not estimated over.
func TestEngine_SlidingWindowRecompute(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	mk := func(from, n int) model.PairedSeries {
		series := make(model.PairedSeries, n)
		for i := 0; i < n; i++ {
			idx := from + i
			pb := 100 + float64(idx)
			slope := 2.0
			if idx >= 40 {
				slope = 3.0
			}
			series[i] = model.PairedBar{TS: base.Add(time.Duration(idx) * time.Minute), PriceA: slope * pb, PriceB: pb}
		}
		return series
	}

	e, err := NewEngine(engineCfg()) // cadence 1, hedge window 20
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	snap1, _ := e.Recompute(mk(0, 40))
	if snap1.HedgeRatio == nil || math.Abs(snap1.HedgeRatio.Slope-2) > 1e-9 {
		t.Fatalf("first cycle: got %+v, want slope 2", snap1.HedgeRatio)
	}

	// The window slides forward 20 bars at the same length; the trailing
	// hedge window now covers only the new regime.
	snap2, _ := e.Recompute(mk(20, 40))
	if snap2.HedgeRatio == nil {
		t.Fatal("expected a hedge ratio after the window slid")
	}
	if math.Abs(snap2.HedgeRatio.Slope-3) > 1e-9 {
		t.Errorf("cadence must re-estimate over a sliding window: slope %v, want 3", snap2.HedgeRatio.Slope)
	}

	// A further slide of a single bar satisfies cadence 1 again: a retained
	// ratio would be the same value object, a re-estimate is a fresh one.
	snap3, _ := e.Recompute(mk(21, 40))
	if snap3.HedgeRatio == snap2.HedgeRatio {
		t.Error("one new bar must trigger a re-estimate at cadence 1")
	}
}

// A degenerate cycle (constant regressor) keeps the prior ratio in force
// instead of dropping analytics.
func TestEngine_DegenerateCycleRetainsRatio(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	good := make(model.PairedSeries, 40)
	for i := range good {
		pb := 100 + float64(i)
		good[i] = model.PairedBar{TS: base.Add(time.Duration(i) * time.Minute), PriceA: 2 * pb, PriceB: pb}
	}
	flat := make(model.PairedSeries, 60)
	for i := range flat {
		flat[i] = model.PairedBar{TS: base.Add(time.Duration(i) * time.Minute), PriceA: 100 + float64(i), PriceB: 250}
	}

	e, err := NewEngine(engineCfg())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	snap1, _ := e.Recompute(good)
	if snap1.HedgeRatio == nil {
		t.Fatal("expected an initial hedge ratio")
	}

	snap2, _ := e.Recompute(flat)
	if snap2.HedgeRatio == nil {
		t.Fatal("degenerate cycle must retain the prior ratio, got nil")
	}
	if snap2.HedgeRatio.Slope != snap1.HedgeRatio.Slope {
		t.Errorf("prior ratio changed on a degenerate cycle: %v -> %v", snap1.HedgeRatio.Slope, snap2.HedgeRatio.Slope)
	}
}

func TestEngine_NoRatioBeforeWindowFull(t *testing.T) {
	e, err := NewEngine(engineCfg()) // hedge window 20
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	snap, err := e.Recompute(enginePaired(10, 3))
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if snap.HedgeRatio != nil {
		t.Errorf("expected no ratio before the window fills, got %+v", snap.HedgeRatio)
	}
	if snap.Spread != nil || snap.Stationarity != nil {
		t.Error("downstream analytics must stay empty without a ratio")
	}
	if snap.Signal != model.SignalNeutral {
		t.Errorf("expected NEUTRAL without analytics, got %s", snap.Signal)
	}
}

func TestEngine_MaxHistoryBars(t *testing.T) {
	cfg := engineCfg()
	cfg.MaxHistoryBars = 30
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	snap, err := e.Recompute(enginePaired(100, 17))
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if len(snap.Bars) != 30 {
		t.Errorf("expected history capped at 30 bars, got %d", len(snap.Bars))
	}
	// The cap keeps the most recent bars.
	if !snap.Bars[len(snap.Bars)-1].TS.After(snap.Bars[0].TS) {
		t.Error("capped bars out of order")
	}
}

func TestEngine_DefaultResolution(t *testing.T) {
	cfg := engineCfg()
	cfg.JoinTolerance = 0
	cfg.CorrWindow = 0
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	got := e.Config()
	if got.JoinTolerance != cfg.ResampleInterval {
		t.Errorf("join tolerance default: got %v want %v", got.JoinTolerance, cfg.ResampleInterval)
	}
	if got.CorrWindow != cfg.StatsWindow {
		t.Errorf("corr window default: got %d want %d", got.CorrWindow, cfg.StatsWindow)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"same symbols", func(c *Config) { c.SymbolB = c.SymbolA }},
		{"empty symbol", func(c *Config) { c.SymbolA = "" }},
		{"zero interval", func(c *Config) { c.ResampleInterval = 0 }},
		{"negative tolerance", func(c *Config) { c.JoinTolerance = -time.Second }},
		{"negative gap", func(c *Config) { c.MaxGap = -1 }},
		{"tiny hedge window", func(c *Config) { c.HedgeWindow = 1 }},
		{"negative cadence", func(c *Config) { c.HedgeRecomputeBars = -1 }},
		{"tiny stats window", func(c *Config) { c.StatsWindow = 1 }},
		{"significance zero", func(c *Config) { c.Significance = 0 }},
		{"significance one", func(c *Config) { c.Significance = 1 }},
		{"negative history cap", func(c *Config) { c.MaxHistoryBars = -1 }},
	}
	for _, tc := range cases {
		cfg := engineCfg()
		tc.mutate(&cfg)
		if _, err := NewEngine(cfg); err == nil {
			t.Errorf("%s: expected a validation error", tc.name)
		}
	}
}

func TestEngine_ConcurrentReaders(t *testing.T) {
	e, err := NewEngine(engineCfg())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	in := enginePaired(60, 9)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if _, err := e.Recompute(in); err != nil {
					t.Errorf("Recompute: %v", err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if snap := e.Latest(); snap != nil && len(snap.Spread) != 60 {
					t.Errorf("observed a partial snapshot: %d spread points", len(snap.Spread))
					return
				}
			}
		}()
	}
	wg.Wait()
}
