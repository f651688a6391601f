package pairs

import "errors"

// Error taxonomy for the analytics pipeline. Input-data errors are reported
// per tick or per cycle and never abort the pipeline; only configuration
// errors (caught in Config.Validate before any computation) are fatal.
var (
	// ErrMalformedTick marks a tick with a non-positive price or a timestamp
	// behind the last accepted tick for its symbol. The tick is dropped.
	ErrMalformedTick = errors.New("malformed tick")

	// ErrDuplicateTick marks a second tick at an already-seen timestamp for
	// the same symbol. Only surfaced in strict mode; otherwise last write wins.
	ErrDuplicateTick = errors.New("duplicate tick")

	// ErrInsufficientData means a window is not yet full. Not fatal: the
	// affected output is simply absent this cycle.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDegenerateRegressor means price_b was constant over the hedge
	// window, so the OLS slope is undefined. The prior hedge ratio is kept.
	ErrDegenerateRegressor = errors.New("degenerate regressor")
)
