package pairs

import "statarb-systemv1/internal/model"

// ComputeSpread applies a hedge ratio to every non-missing bar of the series:
// spread = price_a - slope*price_b - intercept (the estimator leaves
// intercept at zero when disabled, so the same expression covers both modes).
//
// Pure function: identical (series, ratio) inputs produce bit-identical
// output. Missing bars contribute no spread point; the spread series must be
// recomputed whenever the hedge ratio changes.
func ComputeSpread(series model.PairedSeries, hr *model.HedgeRatio) model.SpreadSeries {
	if hr == nil || len(series) == 0 {
		return nil
	}
	out := make(model.SpreadSeries, 0, len(series))
	for _, bar := range series {
		if bar.Missing {
			continue
		}
		out = append(out, model.SpreadPoint{
			TS:     bar.TS,
			Spread: bar.PriceA - hr.Slope*bar.PriceB - hr.Intercept,
		})
	}
	return out
}
