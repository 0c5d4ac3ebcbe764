package round

import "errors"

// Error kinds. Every operation failure wraps exactly one of these so callers
// can map rejections without parsing messages. All of them mean the operation
// aborted with no state change.
var (
	// ErrConfig covers invalid cap ordering, ratios, decimals, time windows
	// and vesting parameters.
	ErrConfig = errors.New("invalid configuration")

	// ErrPhase is returned when an operation is attempted outside the phase
	// that permits it, including time-window violations.
	ErrPhase = errors.New("operation not allowed in current phase")

	// ErrCapacity covers allocation-cap and hard-cap violations and custody
	// balances too small for a withdrawal. The caller must resubmit with a
	// smaller amount.
	ErrCapacity = errors.New("capacity exceeded")

	// ErrPermission is returned when the caller lacks the admin capability
	// or is not the round owner.
	ErrPermission = errors.New("permission denied")

	// ErrZeroEffect is returned instead of silently succeeding when an
	// operation would change nothing (zero claim, second refund).
	ErrZeroEffect = errors.New("operation would have no effect")
)
