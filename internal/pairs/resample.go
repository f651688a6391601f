package pairs

import (
	"time"

	"statarb-systemv1/internal/model"
)

// Resampler buckets a paired series into fixed-width intervals, one row per
// interval using the last observed pair in that interval. Empty intervals
// carry the previous row forward for at most MaxGap consecutive intervals;
// beyond that the row is emitted as missing rather than carried forever.
//
// Resampling is deterministic: identical input, interval and gap bound
// always produce identical output.
type Resampler struct {
	// Interval is the bar width (sub-second through multi-minute).
	Interval time.Duration

	// MaxGap bounds carry-forward: the number of consecutive empty
	// intervals that may reuse the previous row's prices.
	MaxGap int
}

// Resample produces the fixed-interval series. Output timestamps are
// interval-aligned bucket starts, strictly increasing, with no holes between
// the first and last populated bucket (holes become carried or missing rows).
func (r *Resampler) Resample(in model.PairedSeries) model.PairedSeries {
	if len(in) == 0 {
		return nil
	}
	iv := r.Interval.Nanoseconds()

	out := make(model.PairedSeries, 0, len(in))
	i := 0
	bucket := align(in[0].TS, iv)
	last := in[len(in)-1].TS.UnixNano()
	gapRun := 0

	for ; bucket <= last; bucket += iv {
		// Take the last observation inside [bucket, bucket+iv).
		var row *model.PairedBar
		for i < len(in) && in[i].TS.UnixNano() < bucket+iv {
			row = &in[i]
			i++
		}

		if row != nil {
			out = append(out, model.PairedBar{
				TS:     time.Unix(0, bucket).UTC(),
				PriceA: row.PriceA,
				PriceB: row.PriceB,
			})
			gapRun = 0
			continue
		}

		gapRun++
		prev := out[len(out)-1]
		if gapRun <= r.MaxGap && !prev.Missing {
			// Carry the previous row forward within the gap bound.
			out = append(out, model.PairedBar{
				TS:     time.Unix(0, bucket).UTC(),
				PriceA: prev.PriceA,
				PriceB: prev.PriceB,
			})
			continue
		}

		// Gap bound exceeded: explicit missing row. Downstream stages skip
		// these; they are never treated as zero prices.
		out = append(out, model.PairedBar{
			TS:      time.Unix(0, bucket).UTC(),
			Missing: true,
		})
	}
	return out
}

// align truncates a timestamp to its interval bucket start (UnixNano).
func align(ts time.Time, iv int64) int64 {
	n := ts.UnixNano()
	return n - n%iv
}
