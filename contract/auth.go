package contract

import (
	"context"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/x"
)

type ctxKey int

const callerKey ctxKey = iota

// callerAuth authenticates the principal that issued the current call. The
// caller condition is attached to the context by the Ledger.
type callerAuth struct{}

var _ x.Authenticator = callerAuth{}

func withCaller(ctx weave.Context, caller weave.Condition) weave.Context {
	return context.WithValue(ctx, callerKey, caller)
}

func (callerAuth) GetConditions(ctx weave.Context) []weave.Condition {
	c, ok := ctx.Value(callerKey).(weave.Condition)
	if !ok || c == nil {
		return nil
	}
	return []weave.Condition{c}
}

func (a callerAuth) HasAddress(ctx weave.Context, addr weave.Address) bool {
	for _, c := range a.GetConditions(ctx) {
		if addr.Equals(c.Address()) {
			return true
		}
	}
	return false
}
