package contract

import (
	"github.com/iov-one/drugchain/x/drug"
	"github.com/iov-one/drugchain/x/participant"
	"github.com/iov-one/weave/errors"
)

// ErrUnknownOperation is returned when a call names an operation that the
// ledger does not provide.
var ErrUnknownOperation = errors.Register(1300, "unknown operation")

// Error codes reported in Result.Error.
const (
	CodeAlreadyRegistered = "ERR_ALREADY_REGISTERED"
	CodeNotFound          = "ERR_NOT_FOUND"
	CodeUnauthorized      = "ERR_UNAUTHORIZED"
	CodeInvalidDates      = "ERR_INVALID_DATES"
	CodeInvalidStage      = "ERR_INVALID_STAGE"
	CodeInvalidRole       = "ERR_INVALID_ROLE"
	CodeInvalidInput      = "ERR_INVALID_INPUT"
	CodeUnknownOperation  = "ERR_UNKNOWN_OPERATION"
)

// codes is ordered. Errors specific to an operation must be tested before
// the generic ones, because a validation error can carry several of them.
var codes = []struct {
	err  *errors.Error
	code string
}{
	{ErrUnknownOperation, CodeUnknownOperation},
	{drug.ErrInvalidDates, CodeInvalidDates},
	{drug.ErrInvalidStage, CodeInvalidStage},
	{participant.ErrInvalidRole, CodeInvalidRole},
	{errors.ErrUnauthorized, CodeUnauthorized},
	{errors.ErrNotFound, CodeNotFound},
	{errors.ErrDuplicate, CodeAlreadyRegistered},
}

// ErrorCode returns the code that represents given error in a call result.
// Errors without a dedicated code are reported as invalid input.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if c.err.Is(err) {
			return c.code
		}
	}
	return CodeInvalidInput
}
