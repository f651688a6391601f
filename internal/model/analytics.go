package model

import (
	"encoding/json"
	"time"
)

// Snapshot is the complete, immutable result of one recompute cycle.
// A new Snapshot replaces the previous one atomically; readers always see
// either the old or the new cycle, never a mix.
//
// Nil pointer fields mean that branch could not produce a result this cycle
// (e.g. ADF below its minimum sample). Branch failures are independent:
// a missing stationarity result does not suppress hedge ratio or signal.
type Snapshot struct {
	SymbolA string `json:"symbol_a"`
	SymbolB string `json:"symbol_b"`

	Bars         PairedSeries        `json:"bars"`
	HedgeRatio   *HedgeRatio         `json:"hedge_ratio"`
	Spread       SpreadSeries        `json:"spread"`
	Rolling      []RollingPoint      `json:"rolling"`
	Stationarity *StationarityResult `json:"stationarity"`
	Signal       Signal              `json:"signal"`

	ComputedAt time.Time `json:"computed_at"`
}

// LatestZScore returns the most recent defined z-score, scanning backwards.
func (s *Snapshot) LatestZScore() OptFloat {
	for i := len(s.Rolling) - 1; i >= 0; i-- {
		if s.Rolling[i].ZScore.OK {
			return s.Rolling[i].ZScore
		}
	}
	return None()
}

// JSON returns the JSON-encoded snapshot.
func (s *Snapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// StreamKey returns the Redis stream key for this pair's snapshots:
// "pairs:{symbol_a}:{symbol_b}".
func (s *Snapshot) StreamKey() string {
	return "pairs:" + s.SymbolA + ":" + s.SymbolB
}
