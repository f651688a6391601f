package pairs

import "statarb-systemv1/internal/model"

// Z-score thresholds for the mean-reversion signal. Inherited from the
// source methodology: above +2 the spread is overbought (short the spread),
// below 0 it has reverted through its mean (long the spread).
const (
	sellThreshold = 2.0
	buyThreshold  = 0.0
)

// SignalFromZ maps the latest z-score to a discrete trading signal. It is a
// pure function of the current z-score: no hysteresis, no signal memory.
// Callers wanting debounced signals must layer that on top.
func SignalFromZ(z model.OptFloat) model.Signal {
	switch {
	case !z.OK:
		return model.SignalNeutral
	case z.V > sellThreshold:
		return model.SignalSell
	case z.V < buyThreshold:
		return model.SignalBuy
	default:
		return model.SignalNeutral
	}
}
