package socket

import (
	"context"
	"strconv"

	"github.com/jabberwocky238/netstream/common/errors"
	"github.com/jabberwocky238/netstream/transport"
	"github.com/jabberwocky238/netstream/transport/address"
	"github.com/jabberwocky238/netstream/transport/sockopt"
)

// State is the lifecycle phase of a Socket.
type State uint8

const (
	Closed State = iota
	OpeningServer
	OpeningClient
	Listening
	Connected
	OpeningClientTLS
	ConnectedTLS
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case OpeningServer:
		return "OpeningServer"
	case OpeningClient:
		return "OpeningClient"
	case Listening:
		return "Listening"
	case Connected:
		return "Connected"
	case OpeningClientTLS:
		return "OpeningClientTLS"
	case ConnectedTLS:
		return "ConnectedTLS"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

func (s State) opening() bool {
	return s == OpeningServer || s == OpeningClient || s == OpeningClientTLS
}

func (s State) connected() bool {
	return s == Connected || s == ConnectedTLS
}

type openRequest struct {
	target address.Address
	// host as written in the target, for TLS server name checks
	host string
	mode Mode
}

// stateHandler is the behaviour of one State. Every method receives the
// endpoint it may modify; the Socket records the returned state.
type stateHandler interface {
	open(ctx context.Context, e *endpoint, req *openRequest) (State, error)
	accept(e *endpoint) (transport.TransportConn, error)
	// stream is the byte stream reads and writes use; op names the caller
	stream(e *endpoint, op string) transport.TransportConn
	available(e *endpoint) (int, error)
	close(e *endpoint) error
	abort(e *endpoint) error
	setOption(e *endpoint, level, name int, value interface{}) error
	getOption(e *endpoint, level, name int) (interface{}, error)
}

var handlers = [...]stateHandler{
	Closed:           closedState{unsupported{Closed}},
	OpeningServer:    openingServerState{unsupported{OpeningServer}},
	OpeningClient:    openingClientState{unsupported{OpeningClient}},
	Listening:        listeningState{unsupported{Listening}},
	Connected:        connectedState{unsupported{Connected}},
	OpeningClientTLS: openingClientTLSState{unsupported{OpeningClientTLS}},
	ConnectedTLS:     connectedTLSState{connectedState{unsupported{ConnectedTLS}}},
}

// unsupported rejects every operation. States embed it and override what
// they allow.
type unsupported struct {
	state State
}

func (u unsupported) violation(op string) *ContractViolation {
	return &ContractViolation{State: u.state, Op: op}
}

func (u unsupported) open(context.Context, *endpoint, *openRequest) (State, error) {
	panic(u.violation("open"))
}

func (u unsupported) accept(*endpoint) (transport.TransportConn, error) {
	panic(u.violation("listen"))
}

func (u unsupported) stream(_ *endpoint, op string) transport.TransportConn {
	panic(u.violation(op))
}

func (u unsupported) available(*endpoint) (int, error) {
	panic(u.violation("read"))
}

func (u unsupported) close(*endpoint) error {
	panic(u.violation("close"))
}

// abort has nothing to interrupt outside the listening and connected states.
func (u unsupported) abort(*endpoint) error {
	return nil
}

// setOption passes platform options through to the OS handle. The TLS level
// is refused here; only OpeningClientTLS accepts it.
func (u unsupported) setOption(e *endpoint, level, name int, value interface{}) error {
	if level == LevelTLS {
		return errors.TraceMsg(ErrOptionRejected, u.state.String())
	}
	sc := e.sysConn()
	if sc == nil {
		return errors.Trace(ErrNotOpen)
	}
	v, err := optionInt(value)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(sockopt.SetInt(sc, level, name, v))
}

func (u unsupported) getOption(e *endpoint, level, name int) (interface{}, error) {
	if level == LevelTLS {
		return nil, errors.TraceMsg(ErrOptionRejected, u.state.String())
	}
	sc := e.sysConn()
	if sc == nil {
		return nil, errors.Trace(ErrNotOpen)
	}
	v, err := sockopt.GetInt(sc, level, name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return v, nil
}

func optionInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case uint32:
		return int(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return 0, errors.Tracef("unsupported option value %T", value)
}
