package participant

import "github.com/iov-one/weave/errors"

// ErrInvalidRole is returned when a role is not one of the supported supply
// chain roles.
var ErrInvalidRole = errors.Register(1100, "invalid role")
