package pairs

import (
	"fmt"
	"math"

	"statarb-systemv1/internal/model"
)

// minADFObs is the minimum spread sample the test accepts. Below this the
// lag-augmented regression has too few degrees of freedom to say anything.
const minADFObs = 20

// ADFTester runs the Augmented Dickey-Fuller unit-root test on the spread
// series with a constant-only regression:
//
//	Δy_t = α + γ·y_{t-1} + Σ δ_i·Δy_{t-i} + ε_t
//
// The reported statistic is the t-ratio of γ; its distribution under the
// null is nonstandard, so p-values and critical values come from MacKinnon's
// response-surface approximations rather than the Student t table.
type ADFTester struct {
	// MaxLag bounds the lag search; 0 selects the Schwert rule
	// 12·(n/100)^(1/4). The used lag is chosen by AIC over 0..MaxLag.
	MaxLag int

	// Significance is the p-value threshold for the stationarity verdict.
	Significance float64
}

// Test runs the ADF test over the full spread series. Fails with
// ErrInsufficientData below the minimum sample; a failure here never blocks
// the other pipeline branches.
func (a *ADFTester) Test(spread model.SpreadSeries) (*model.StationarityResult, error) {
	y := spreadValues(spread)
	n := len(y)
	if n < minADFObs {
		return nil, fmt.Errorf("%w: adf needs >= %d observations, have %d", ErrInsufficientData, minADFObs, n)
	}

	maxLag := a.MaxLag
	if maxLag <= 0 {
		maxLag = int(math.Floor(12 * math.Pow(float64(n)/100, 0.25)))
	}
	if lagCap := n/2 - 2; maxLag > lagCap {
		maxLag = lagCap
	}
	if maxLag < 0 {
		maxLag = 0
	}

	usedLag := a.selectLagAIC(y, maxLag)

	tau, nobs, err := adfRegression(y, usedLag)
	if err != nil {
		return nil, err
	}

	pValue := mackinnonP(tau)
	crit := mackinnonCrit(nobs)

	return &model.StationarityResult{
		ADFStatistic:   tau,
		PValue:         pValue,
		CriticalValues: crit,
		UsedLag:        usedLag,
		NObs:           nobs,
		IsStationary:   pValue < a.Significance,
	}, nil
}

// selectLagAIC picks the lag order minimizing AIC over 0..maxLag, with all
// candidates fit on the common sample implied by maxLag so their likelihoods
// are comparable.
func (a *ADFTester) selectLagAIC(y []float64, maxLag int) int {
	best, bestAIC := 0, math.Inf(1)
	for lag := 0; lag <= maxLag; lag++ {
		X, dep := adfDesign(y, lag, maxLag)
		if len(dep) <= len(X[0]) {
			continue
		}
		_, _, ssr, ok := olsFit(X, dep)
		if !ok || ssr <= 0 {
			continue
		}
		nobs := float64(len(dep))
		k := float64(len(X[0]))
		aic := nobs*math.Log(ssr/nobs) + 2*k
		if aic < bestAIC {
			bestAIC = aic
			best = lag
		}
	}
	return best
}

// adfRegression fits the ADF regression at the given lag on the full usable
// sample and returns the t-ratio of the y_{t-1} coefficient.
func adfRegression(y []float64, lag int) (tau float64, nobs int, err error) {
	X, dep := adfDesign(y, lag, lag)
	k := len(X[0])
	nobs = len(dep)
	if nobs <= k {
		return 0, 0, fmt.Errorf("%w: adf regression has %d rows for %d params", ErrInsufficientData, nobs, k)
	}

	beta, xtxInv, ssr, ok := olsFit(X, dep)
	if !ok {
		return 0, 0, fmt.Errorf("%w: adf design matrix is singular", ErrDegenerateRegressor)
	}

	sigma2 := ssr / float64(nobs-k)
	se := math.Sqrt(sigma2 * xtxInv[0][0])
	if se == 0 || math.IsNaN(se) {
		return 0, 0, fmt.Errorf("%w: zero standard error in adf regression", ErrDegenerateRegressor)
	}
	return beta[0] / se, nobs, nil
}

// adfDesign builds the regression sample for the given lag, starting the
// sample at offset implied by startLag so that fits with different lags can
// share a common sample (needed for AIC comparison). Column order:
// y_{t-1}, Δy_{t-1}..Δy_{t-lag}, const.
func adfDesign(y []float64, lag, startLag int) (X [][]float64, dep []float64) {
	dy := make([]float64, len(y)-1) // dy[i] = y[i+1] - y[i]
	for i := range dy {
		dy[i] = y[i+1] - y[i]
	}

	k := lag + 2
	for t := startLag + 1; t < len(y); t++ {
		row := make([]float64, k)
		row[0] = y[t-1]
		for j := 1; j <= lag; j++ {
			row[j] = dy[t-1-j] // Δy_{t-j}
		}
		row[k-1] = 1
		X = append(X, row)
		dep = append(dep, dy[t-1]) // Δy_t
	}
	return X, dep
}

// olsFit solves the least-squares problem via the normal equations and
// returns the coefficients, (X'X)^-1 and the residual sum of squares.
// ok is false when X'X is singular.
func olsFit(X [][]float64, y []float64) (beta []float64, xtxInv [][]float64, ssr float64, ok bool) {
	n := len(X)
	k := len(X[0])

	xtx := make([][]float64, k)
	xty := make([]float64, k)
	for i := 0; i < k; i++ {
		xtx[i] = make([]float64, k)
	}
	for r := 0; r < n; r++ {
		for i := 0; i < k; i++ {
			xty[i] += X[r][i] * y[r]
			for j := i; j < k; j++ {
				xtx[i][j] += X[r][i] * X[r][j]
			}
		}
	}
	for i := 0; i < k; i++ {
		for j := 0; j < i; j++ {
			xtx[i][j] = xtx[j][i]
		}
	}

	xtxInv = invert(xtx)
	if xtxInv == nil {
		return nil, nil, 0, false
	}

	beta = make([]float64, k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			beta[i] += xtxInv[i][j] * xty[j]
		}
	}

	for r := 0; r < n; r++ {
		pred := 0.0
		for i := 0; i < k; i++ {
			pred += X[r][i] * beta[i]
		}
		d := y[r] - pred
		ssr += d * d
	}
	return beta, xtxInv, ssr, true
}

// invert returns the inverse of a square matrix via Gauss-Jordan elimination
// with partial pivoting, or nil if the matrix is singular.
func invert(m [][]float64) [][]float64 {
	k := len(m)
	a := make([][]float64, k)
	inv := make([][]float64, k)
	for i := 0; i < k; i++ {
		a[i] = append([]float64(nil), m[i]...)
		inv[i] = make([]float64, k)
		inv[i][i] = 1
	}

	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil
		}
		a[col], a[pivot] = a[pivot], a[col]
		inv[col], inv[pivot] = inv[pivot], inv[col]

		p := a[col][col]
		for j := 0; j < k; j++ {
			a[col][j] /= p
			inv[col][j] /= p
		}
		for r := 0; r < k; r++ {
			if r == col || a[r][col] == 0 {
				continue
			}
			f := a[r][col]
			for j := 0; j < k; j++ {
				a[r][j] -= f * a[col][j]
				inv[r][j] -= f * inv[col][j]
			}
		}
	}
	return inv
}

// MacKinnon (1994) p-value approximation for the constant-only ADF tau
// statistic: p = Φ(poly(τ)), with separate polynomials for the small-p and
// large-p regions split at tauStar.
var (
	tauSmallP = []float64{2.1659, 1.4412, 0.038269}
	tauLargeP = []float64{1.7339, 0.93202, -0.12745, -0.010368}
)

const (
	tauStar = -1.61
	tauMin  = -18.83
	tauMax  = 2.74
)

func mackinnonP(tau float64) float64 {
	if tau > tauMax {
		return 1.0
	}
	if tau < tauMin {
		return 0.0
	}
	coeffs := tauLargeP
	if tau <= tauStar {
		coeffs = tauSmallP
	}
	x := 0.0
	pow := 1.0
	for _, c := range coeffs {
		x += c * pow
		pow *= tau
	}
	return normCDF(x)
}

// MacKinnon (2010) finite-sample critical-value response surface for the
// constant-only case: cv = b0 + b1/T + b2/T² + b3/T³.
var critSurface = map[string][4]float64{
	"1%":  {-3.43035, -6.5393, -16.786, -79.433},
	"5%":  {-2.86154, -2.8903, -4.234, -40.040},
	"10%": {-2.56677, -1.5384, -2.809, 0},
}

func mackinnonCrit(nobs int) map[string]float64 {
	t := float64(nobs)
	out := make(map[string]float64, len(critSurface))
	for level, b := range critSurface {
		out[level] = b[0] + b[1]/t + b[2]/(t*t) + b[3]/(t*t*t)
	}
	return out
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}
