// Package pairs implements the pairs analytics pipeline: tick alignment,
// resampling, hedge-ratio estimation, spread and rolling statistics,
// stationarity testing, and signal generation.
//
// Every stage is a pure transform over immutable series; the Engine ties
// them together and publishes a complete snapshot per recompute cycle.
package pairs

import (
	"fmt"
	"sort"
	"time"

	"statarb-systemv1/internal/model"
)

// FrameConfig controls tick normalization and pair alignment.
type FrameConfig struct {
	// Tolerance is how far back the nearest-preceding join may reach for
	// the other symbol's tick. Axis timestamps with no tick for a symbol
	// within Tolerance are excluded (never forward-filled here; that is
	// the Resampler's job).
	Tolerance time.Duration

	// StrictDuplicates rejects a second tick at an already-seen timestamp
	// for the same symbol instead of letting the last arrival win.
	StrictDuplicates bool
}

// FrameBuilder normalizes two raw tick sequences into a PairedSeries
// aligned on a common timestamp axis.
type FrameBuilder struct {
	cfg FrameConfig

	// OnMalformedTick is called once per dropped tick (optional).
	OnMalformedTick func()
}

// NewFrameBuilder creates a FrameBuilder. Tolerance must be positive.
func NewFrameBuilder(cfg FrameConfig) *FrameBuilder {
	return &FrameBuilder{cfg: cfg}
}

// BuildPaired accepts the raw tick sequences for both symbols (in arrival
// order) and returns the aligned paired series. Malformed ticks are dropped;
// duplicate timestamps resolve last-write-wins unless strict mode is on, in
// which case the build fails with ErrDuplicateTick.
func (b *FrameBuilder) BuildPaired(ticksA, ticksB []model.Tick) (model.PairedSeries, error) {
	accA, err := b.normalize(ticksA)
	if err != nil {
		return nil, err
	}
	accB, err := b.normalize(ticksB)
	if err != nil {
		return nil, err
	}
	if len(accA) == 0 || len(accB) == 0 {
		return nil, nil
	}

	axis := mergeAxes(accA, accB)

	series := make(model.PairedSeries, 0, len(axis))
	ia, ib := 0, 0
	for _, ts := range axis {
		// Advance each cursor to the last tick at or before ts.
		for ia+1 < len(accA) && !accA[ia+1].TS.After(ts) {
			ia++
		}
		for ib+1 < len(accB) && !accB[ib+1].TS.After(ts) {
			ib++
		}

		pa, okA := priceAt(accA, ia, ts, b.cfg.Tolerance)
		pb, okB := priceAt(accB, ib, ts, b.cfg.Tolerance)
		if !okA || !okB {
			continue // no tick within tolerance for one leg
		}
		series = append(series, model.PairedBar{TS: ts, PriceA: pa, PriceB: pb})
	}
	return series, nil
}

// normalize validates ticks in arrival order: drops non-positive prices and
// out-of-order timestamps, resolves duplicates per policy. Returns ticks
// sorted (non-decreasing arrival order implies sorted output).
func (b *FrameBuilder) normalize(ticks []model.Tick) ([]model.Tick, error) {
	out := make([]model.Tick, 0, len(ticks))
	for _, t := range ticks {
		if t.Price <= 0 || t.TS.IsZero() {
			b.dropped()
			continue
		}
		if len(out) > 0 {
			last := out[len(out)-1].TS
			if t.TS.Before(last) {
				// Late tick for this symbol: dropped, not inserted out of order.
				b.dropped()
				continue
			}
			if t.TS.Equal(last) {
				if b.cfg.StrictDuplicates {
					return nil, fmt.Errorf("%w: %s at %s", ErrDuplicateTick, t.Symbol, t.TS.Format(time.RFC3339Nano))
				}
				out[len(out)-1] = t // last write wins
				continue
			}
		}
		out = append(out, t)
	}
	return out, nil
}

func (b *FrameBuilder) dropped() {
	if b.OnMalformedTick != nil {
		b.OnMalformedTick()
	}
}

// priceAt returns the price of ticks[i] if it is at or before ts and within
// tolerance, i.e. the nearest-preceding tick usable for this axis point.
func priceAt(ticks []model.Tick, i int, ts time.Time, tol time.Duration) (float64, bool) {
	t := ticks[i]
	if t.TS.After(ts) {
		return 0, false
	}
	if ts.Sub(t.TS) > tol {
		return 0, false
	}
	return t.Price, true
}

// mergeAxes returns the sorted union of both symbols' accepted timestamps.
func mergeAxes(a, bs []model.Tick) []time.Time {
	axis := make([]time.Time, 0, len(a)+len(bs))
	for _, t := range a {
		axis = append(axis, t.TS)
	}
	for _, t := range bs {
		axis = append(axis, t.TS)
	}
	sort.Slice(axis, func(i, j int) bool { return axis[i].Before(axis[j]) })

	dedup := axis[:0]
	for i, ts := range axis {
		if i == 0 || !ts.Equal(dedup[len(dedup)-1]) {
			dedup = append(dedup, ts)
		}
	}
	return dedup
}
