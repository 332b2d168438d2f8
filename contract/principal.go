package contract

import (
	"sync"

	"github.com/iov-one/weave"
)

// PrincipalCondition returns the condition that represents given principal.
// The address of that condition identifies the principal in every registry.
func PrincipalCondition(principal string) weave.Condition {
	return weave.NewCondition("contract", "principal", []byte(principal))
}

// directory remembers which principal an address was derived from, so that
// results can refer to principals instead of raw addresses.
type directory struct {
	mu    sync.RWMutex
	names map[string]string
}

func newDirectory() *directory {
	return &directory{names: make(map[string]string)}
}

// PrincipalAddress returns the address that identifies given principal.
func PrincipalAddress(principal string) weave.Address {
	return PrincipalCondition(principal).Address()
}

// remember records the address mapping of given principals. Only principals
// that took part in a state change are recorded.
func (d *directory) remember(principals ...string) {
	d.mu.Lock()
	for _, p := range principals {
		d.names[string(PrincipalAddress(p))] = p
	}
	d.mu.Unlock()
}

// size returns the number of recorded principals.
func (d *directory) size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.names)
}

// Principal returns the principal that given address was derived from. An
// address that is not known is rendered in its string form.
func (d *directory) Principal(addr weave.Address) string {
	if len(addr) == 0 {
		return ""
	}
	d.mu.RLock()
	p, ok := d.names[string(addr)]
	d.mu.RUnlock()
	if ok {
		return p
	}
	return addr.String()
}
