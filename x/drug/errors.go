package drug

import "github.com/iov-one/weave/errors"

var (
	// ErrInvalidDates is returned when a drug does not expire strictly
	// after it was manufactured.
	ErrInvalidDates = errors.Register(1200, "invalid dates")

	// ErrInvalidStage is returned when a stage is unknown or cannot be
	// used by the requested operation.
	ErrInvalidStage = errors.Register(1201, "invalid stage")
)
