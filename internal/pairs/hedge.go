package pairs

import (
	"fmt"
	"math"
	"time"

	"statarb-systemv1/internal/model"
)

// HedgeEstimator fits price_a on price_b by ordinary least squares over the
// most recent Window non-missing bars.
type HedgeEstimator struct {
	// Window is the trailing bar count used for the fit (N >= 2).
	Window int

	// Intercept includes a constant term in the regression. When disabled
	// the fit is through the origin and the spread definition drops the
	// intercept as well.
	Intercept bool
}

// Estimate returns the OLS hedge ratio for the trailing window of series.
// Fails with ErrInsufficientData until Window non-missing bars exist, and
// with ErrDegenerateRegressor when price_b is constant over the window.
func (h *HedgeEstimator) Estimate(series model.PairedSeries, now time.Time) (*model.HedgeRatio, error) {
	// Collect the trailing Window non-missing bars.
	ys := make([]float64, 0, h.Window)
	xs := make([]float64, 0, h.Window)
	for i := len(series) - 1; i >= 0 && len(xs) < h.Window; i-- {
		if series[i].Missing {
			continue
		}
		ys = append(ys, series[i].PriceA)
		xs = append(xs, series[i].PriceB)
	}
	n := len(xs)
	if n < h.Window || n < 2 {
		return nil, fmt.Errorf("%w: hedge window has %d of %d bars", ErrInsufficientData, n, h.Window)
	}

	var sumX, sumY, sumXX, sumXY, sumYY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
		sumXX += xs[i] * xs[i]
		sumXY += xs[i] * ys[i]
		sumYY += ys[i] * ys[i]
	}
	fn := float64(n)

	var slope, intercept float64
	if h.Intercept {
		varX := sumXX - sumX*sumX/fn
		if varX <= 0 || !isFiniteNonzero(varX) {
			return nil, fmt.Errorf("%w: price_b constant over hedge window", ErrDegenerateRegressor)
		}
		covXY := sumXY - sumX*sumY/fn
		slope = covXY / varX
		intercept = (sumY - slope*sumX) / fn
	} else {
		if sumXX <= 0 {
			return nil, fmt.Errorf("%w: price_b has zero energy over hedge window", ErrDegenerateRegressor)
		}
		// Through-the-origin fit: still undefined for a constant regressor
		// only when that constant is zero, which positive prices exclude,
		// but a zero-variance regressor with intercept disabled is allowed.
		slope = sumXY / sumXX
	}

	// R² against the mean model (diagnostic only, not a signal gate).
	ssTot := sumYY - sumY*sumY/fn
	var ssRes float64
	for i := 0; i < n; i++ {
		r := ys[i] - slope*xs[i] - intercept
		ssRes += r * r
	}
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
		if r2 < 0 {
			r2 = 0
		}
		if r2 > 1 {
			r2 = 1
		}
	}

	return &model.HedgeRatio{
		Slope:      slope,
		Intercept:  intercept,
		RSquared:   r2,
		ComputedAt: now,
		WindowSize: n,
	}, nil
}

func isFiniteNonzero(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v != 0
}
