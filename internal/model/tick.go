package model

import "time"

// Tick represents a single trade tick for one symbol of the pair.
// Prices are float64: crypto quotes carry fractional precision below any
// fixed-point grid we could pick up front, and the source feed delivers
// decimal strings.
type Tick struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts"` // exchange trade time, UTC
	Price  float64   `json:"price"`
	Qty    float64   `json:"qty"` // last traded quantity (0 if unknown)
}
