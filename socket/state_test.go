package socket

import (
	"context"
	"testing"

	"github.com/jabberwocky238/netstream/transport/address"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// catchViolation runs f and returns the contract violation it panicked
// with, or nil when it returned normally.
func catchViolation(t *testing.T, f func()) (v *ContractViolation) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		cv, ok := r.(*ContractViolation)
		require.Truef(t, ok, "panic value %T is not a contract violation: %v", r, r)
		v = cv
	}()
	f()
	return nil
}

var allStates = []State{Closed, OpeningServer, OpeningClient, Listening, Connected, OpeningClientTLS, ConnectedTLS}

func TestOperationLegality(t *testing.T) {
	ops := map[string]func(s *Socket){
		"open": func(s *Socket) {
			s.OpenAddress(context.Background(), address.None(), "", ModeReadWrite)
		},
		"listen": func(s *Socket) {
			if child, err := s.Listen(); err == nil {
				child.Close()
			}
		},
		"read": func(s *Socket) {
			s.Read(make([]byte, 1))
		},
		"write": func(s *Socket) {
			s.Write([]byte("y"))
		},
		"close": func(s *Socket) {
			s.Close()
		},
	}
	allowed := map[State][]string{
		Closed:           {"open", "close"},
		OpeningServer:    {"open"},
		OpeningClient:    {"open"},
		OpeningClientTLS: {"open"},
		Listening:        {"listen", "close"},
		Connected:        {"read", "write", "close"},
		ConnectedTLS:     {"read", "write", "close"},
	}

	for _, state := range allStates {
		for op, run := range ops {
			t.Run(state.String()+"/"+op, func(t *testing.T) {
				s := socketIn(state, &events{})
				v := catchViolation(t, func() { run(s) })
				if contains(allowed[state], op) {
					assert.Nil(t, v)
					return
				}
				require.NotNil(t, v, "expected a contract violation")
				assert.Equal(t, state, v.State)
				assert.Equal(t, op, v.Op)
				assert.Contains(t, v.Error(), state.String())
			})
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestOpeningStatesFailToClosed(t *testing.T) {
	for _, state := range []State{OpeningServer, OpeningClient, OpeningClientTLS} {
		t.Run(state.String(), func(t *testing.T) {
			s := socketIn(state, nil)
			err := s.OpenAddress(context.Background(), address.None(), "", ModeReadWrite)
			require.Error(t, err)
			assert.Equal(t, Closed, s.State())
			assert.False(t, s.Valid())
		})
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ev := &events{}
	s := socketIn(Connected, ev)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, Closed, s.State())
	assert.False(t, s.Valid())
	assert.Equal(t, []string{"socket.close"}, ev.get())
}

// TestTLSCloseOrder checks only the order Socket.Close calls into the
// session and the handle; TestTLSWithSelfSignedCert in transport/tls covers
// the session releasing its context.
func TestTLSCloseOrder(t *testing.T) {
	ev := &events{}
	s := socketIn(ConnectedTLS, ev)
	require.NoError(t, s.Close())
	assert.Equal(t, []string{"session.release", "context.release", "socket.close"}, ev.get())
	assert.False(t, s.Valid())
	assert.Equal(t, Closed, s.State())
}

func TestListenHandsOutTerminalSocket(t *testing.T) {
	ev := &events{}
	s := socketIn(Listening, ev)
	child, err := s.Listen()
	require.NoError(t, err)
	assert.Equal(t, Connected, child.State())
	assert.Equal(t, Listening, s.State())
	assert.Equal(t, "127.0.0.1:40001", child.RemoteAddr().String())

	require.NoError(t, child.Close())
	v := catchViolation(t, func() {
		child.OpenAddress(context.Background(), address.Any(0), "", ModeReadWrite)
	})
	require.NotNil(t, v)
	assert.Equal(t, "open", v.Op)

	// the queue is empty now; the listener stays put
	_, err = s.Listen()
	require.Error(t, err)
	assert.Equal(t, Listening, s.State())

	require.NoError(t, s.Close())
	assert.Equal(t, []string{"accepted.close", "listener.close"}, ev.get())
}

func TestModeViolations(t *testing.T) {
	s := socketIn(Connected, nil)
	s.mode = ModeRead
	v := catchViolation(t, func() { s.Write([]byte("x")) })
	require.NotNil(t, v)
	assert.Equal(t, "write", v.Op)

	s.mode = ModeWrite
	v = catchViolation(t, func() { s.Read(make([]byte, 1)) })
	require.NotNil(t, v)
	assert.Equal(t, "read", v.Op)

	s.mode = ModeReadWrite
	v = catchViolation(t, func() { s.Read(nil) })
	require.NotNil(t, v)
	v = catchViolation(t, func() { s.ReadUntil("") })
	require.NotNil(t, v)
}

func TestStateAndModeStrings(t *testing.T) {
	assert.Equal(t, "OpeningClientTLS", OpeningClientTLS.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.Equal(t, "read|write|async", (ModeReadWrite | ModeAsync).String())
	assert.Equal(t, "none", Mode(0).String())
	assert.Equal(t, "udp", Datagram.String())
}
