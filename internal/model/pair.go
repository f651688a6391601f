package model

import (
	"encoding/json"
	"time"
)

// OptFloat is an explicit optional float64. Rolling statistics are absent
// until their window is populated; absence is represented here rather than
// with NaN so it survives JSON round-trips as null.
type OptFloat struct {
	V  float64
	OK bool
}

// Some returns a present OptFloat.
func Some(v float64) OptFloat { return OptFloat{V: v, OK: true} }

// None returns an absent OptFloat.
func None() OptFloat { return OptFloat{} }

func (o OptFloat) MarshalJSON() ([]byte, error) {
	if !o.OK {
		return []byte("null"), nil
	}
	return json.Marshal(o.V)
}

func (o *OptFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = OptFloat{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = OptFloat{V: v, OK: true}
	return nil
}

// PairedBar is one row of a paired price series: both symbols observed at
// the same bar timestamp. Missing marks a resampled interval that exceeded
// the carry-forward bound; downstream stages must skip it, never read the
// (zero) prices.
type PairedBar struct {
	TS      time.Time `json:"ts"` // bar start, UTC, interval-aligned
	PriceA  float64   `json:"price_a"`
	PriceB  float64   `json:"price_b"`
	Missing bool      `json:"missing,omitempty"`
}

// PairedSeries is an ordered sequence of paired bars with strictly
// increasing timestamps. A series is owned by the recompute cycle that
// produced it and is never mutated in place.
type PairedSeries []PairedBar

// HedgeRatio is the OLS fit of price_a on price_b over the trailing hedge
// window. It is a value object: recomputed on cadence, never updated in place.
type HedgeRatio struct {
	Slope      float64   `json:"slope"`
	Intercept  float64   `json:"intercept"`
	RSquared   float64   `json:"r_squared"`
	ComputedAt time.Time `json:"computed_at"`
	WindowSize int       `json:"window_size"`
}

// SpreadPoint is one spread observation: price_a - slope*price_b - intercept.
type SpreadPoint struct {
	TS     time.Time `json:"ts"`
	Spread float64   `json:"spread"`
}

// SpreadSeries is derived from a PairedSeries and the HedgeRatio that was
// current when it was computed. It is invalidated together with that ratio.
type SpreadSeries []SpreadPoint

// RollingPoint holds the windowed statistics aligned to one paired bar.
// All fields are absent until the trailing window is fully populated.
type RollingPoint struct {
	TS     time.Time `json:"ts"`
	Mean   OptFloat  `json:"mean"`
	Std    OptFloat  `json:"std"`
	ZScore OptFloat  `json:"z_score"`
	Corr   OptFloat  `json:"corr"`
}

// StationarityResult is the outcome of the Augmented Dickey-Fuller test on
// the spread series.
type StationarityResult struct {
	ADFStatistic   float64            `json:"adf_statistic"`
	PValue         float64            `json:"p_value"`
	CriticalValues map[string]float64 `json:"critical_values"` // "1%", "5%", "10%"
	UsedLag        int                `json:"used_lag"`
	NObs           int                `json:"n_obs"`
	IsStationary   bool               `json:"is_stationary"`
}

// Signal is the discrete trading signal derived from the latest z-score.
type Signal string

const (
	SignalBuy     Signal = "BUY"
	SignalSell    Signal = "SELL"
	SignalNeutral Signal = "NEUTRAL"
)
