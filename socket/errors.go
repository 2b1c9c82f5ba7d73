package socket

import (
	"fmt"

	"github.com/jabberwocky238/netstream/common/errors"
)

var (
	ErrUnresolved     = errors.New("target address did not resolve")
	ErrNoData         = errors.New("no data available")
	ErrPending        = errors.New("operation handed to a worker")
	ErrNotOpen        = errors.New("socket has no open handle")
	ErrOptionRejected = errors.New("socket option not accepted in this state")
	ErrPeerRejected   = errors.New("peer not in allowed prefixes")
)

// ContractViolation is the panic value for an operation the current state
// does not support.
type ContractViolation struct {
	State  State
	Op     string
	Reason string
}

func (v *ContractViolation) Error() string {
	if v.Reason != "" {
		return fmt.Sprintf("socket: %s not allowed in state %s: %s", v.Op, v.State, v.Reason)
	}
	return fmt.Sprintf("socket: %s not allowed in state %s", v.Op, v.State)
}
