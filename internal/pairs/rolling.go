package pairs

import (
	"math"

	"statarb-systemv1/internal/model"
)

// RollingStats computes windowed statistics over the spread and the raw
// price legs. Each output index is recomputed from scratch over its trailing
// window, which is the defining contract: any incremental optimization must
// be numerically indistinguishable from this.
type RollingStats struct {
	// StatsWindow is the window (in bars) for spread mean/std/z-score.
	StatsWindow int

	// CorrWindow is the window for the price_a/price_b Pearson correlation.
	// May differ from StatsWindow.
	CorrWindow int
}

// Compute returns one RollingPoint per spread observation. bars must be the
// paired series the spread was derived from; missing bars are excluded so
// that bars' non-missing rows align one-to-one with spread.
//
// Outputs are absent (OptFloat zero value) until the trailing window is
// fully populated, and z-score/correlation are additionally absent under
// zero variance — never zero-filled, never clamped.
func (r *RollingStats) Compute(bars model.PairedSeries, spread model.SpreadSeries) []model.RollingPoint {
	// Compact the paired series to the spread's axis.
	pa := make([]float64, 0, len(spread))
	pb := make([]float64, 0, len(spread))
	for _, bar := range bars {
		if bar.Missing {
			continue
		}
		pa = append(pa, bar.PriceA)
		pb = append(pb, bar.PriceB)
	}
	if len(pa) != len(spread) {
		return nil // cross-axis misalignment is a caller bug, not data
	}

	out := make([]model.RollingPoint, len(spread))
	for i := range spread {
		pt := model.RollingPoint{TS: spread[i].TS}

		if i >= r.StatsWindow-1 && r.StatsWindow >= 2 {
			lo := i - r.StatsWindow + 1
			mean, std := meanStd(spreadValues(spread[lo : i+1]))
			pt.Mean = model.Some(mean)
			pt.Std = model.Some(std)
			if std > 0 {
				pt.ZScore = model.Some((spread[i].Spread - mean) / std)
			}
		}

		if i >= r.CorrWindow-1 && r.CorrWindow >= 2 {
			lo := i - r.CorrWindow + 1
			if c, ok := pearson(pa[lo:i+1], pb[lo:i+1]); ok {
				pt.Corr = model.Some(c)
			}
		}

		out[i] = pt
	}
	return out
}

func spreadValues(pts model.SpreadSeries) []float64 {
	vs := make([]float64, len(pts))
	for i, p := range pts {
		vs[i] = p.Spread
	}
	return vs
}

// meanStd returns the mean and sample (n-1) standard deviation.
func meanStd(vs []float64) (float64, float64) {
	n := float64(len(vs))
	var sum float64
	for _, v := range vs {
		sum += v
	}
	mean := sum / n

	var ss float64
	for _, v := range vs {
		d := v - mean
		ss += d * d
	}
	if len(vs) < 2 {
		return mean, 0
	}
	return mean, math.Sqrt(ss / (n - 1))
}

// pearson returns the sample correlation of two equal-length windows.
// ok is false when either window has zero variance.
func pearson(xs, ys []float64) (float64, bool) {
	n := float64(len(xs))
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	mx, my := sumX/n, sumY/n

	var sxx, syy, sxy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, false
	}
	return sxy / math.Sqrt(sxx*syy), true
}
