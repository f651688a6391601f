// Package replay provides a tick replayer that reads historical trades from
// SQLite and emits them at configurable speed. It is a drop-in tick source
// for running the pipeline against recorded sessions without an exchange
// connection.
package replay

import (
	"context"
	"log"
	"time"

	"statarb-systemv1/internal/model"
	sqlitestore "statarb-systemv1/internal/store/sqlite"
)

// Replayer reads historical ticks from SQLite and replays them at a
// configurable speed multiplier.
type Replayer struct {
	reader *sqlitestore.Reader
}

// New creates a Replayer backed by a SQLite reader.
func New(reader *sqlitestore.Reader) *Replayer {
	return &Replayer{reader: reader}
}

// Run replays all ticks for the given symbols, emitting them into outCh.
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
// fromMs filters ticks to those after this epoch-millisecond timestamp (0 = all).
func (r *Replayer) Run(ctx context.Context, symbols []string, fromMs int64, speed float64, outCh chan<- model.Tick) error {
	// Collect all ticks across symbols, sorted by time
	var allTicks []model.Tick
	for _, sym := range symbols {
		ticks, err := r.reader.ReadTicksAfter(sym, fromMs)
		if err != nil {
			return err
		}
		allTicks = append(allTicks, ticks...)
	}

	if len(allTicks) == 0 {
		log.Println("[replay] no ticks found in SQLite")
		return nil
	}

	// Sort by timestamp (they are interleaved across symbols)
	sortTicks(allTicks)

	log.Printf("[replay] loaded %d ticks across %d symbols, speed=%.1fx", len(allTicks), len(symbols), speed)

	var prevTS time.Time
	emitted := 0

	for _, t := range allTicks {
		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d ticks", emitted)
			return ctx.Err()
		default:
		}

		// Simulate time gaps between ticks
		if speed > 0 && !prevTS.IsZero() {
			gap := t.TS.Sub(prevTS)
			if gap > 0 {
				scaledGap := time.Duration(float64(gap) / speed)
				// Cap max sleep to avoid very long waits
				if scaledGap > 5*time.Second {
					scaledGap = 5 * time.Second
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaledGap):
				}
			}
		}
		prevTS = t.TS

		outCh <- t
		emitted++
	}

	log.Printf("[replay] completed: %d ticks replayed", emitted)
	return nil
}

// sortTicks sorts ticks by timestamp (insertion sort — stable and fine for replay sizes).
func sortTicks(ticks []model.Tick) {
	for i := 1; i < len(ticks); i++ {
		for j := i; j > 0 && ticks[j].TS.Before(ticks[j-1].TS); j-- {
			ticks[j], ticks[j-1] = ticks[j-1], ticks[j]
		}
	}
}
