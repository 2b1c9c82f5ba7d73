package socket

import (
	"context"
	"net"
	"time"

	"github.com/jabberwocky238/netstream/common/errors"
	"github.com/jabberwocky238/netstream/transport"
	"github.com/jabberwocky238/netstream/transport/sockopt"
	"github.com/jabberwocky238/netstream/transport/tcp"
	"github.com/jabberwocky238/netstream/transport/tls"
	"github.com/jabberwocky238/netstream/transport/udp"
)

type closedState struct{ unsupported }

// open only routes: it picks the opening state and touches nothing.
func (h closedState) open(_ context.Context, e *endpoint, req *openRequest) (State, error) {
	if e.terminal {
		panic(&ContractViolation{State: Closed, Op: "open", Reason: "accepted sockets cannot be reopened"})
	}
	target := req.target
	switch {
	case !target.IsValid():
		return Closed, errors.TraceMsg(ErrUnresolved, target.String())
	case target.IsAny() || req.mode.Has(ModeCreate):
		return OpeningServer, nil
	case e.isTLSPort(target.Port()):
		return OpeningClientTLS, nil
	}
	return OpeningClient, nil
}

type openingServerState struct{ unsupported }

// open binds. Datagram sockets have no accept phase and go straight to
// Connected.
func (h openingServerState) open(ctx context.Context, e *endpoint, req *openRequest) (State, error) {
	if e.protocol == Datagram {
		conn, err := udp.NewUDPServer().Bind(ctx, req.target)
		if err != nil {
			return Closed, errors.Trace(err)
		}
		e.handle, e.conn = conn, conn
		e.local = e.resolver.FromNetAddr(conn.LocalAddr())
		return Connected, nil
	}

	server := tcp.NewTCPServer(e.backlog)
	if err := server.Listen(ctx, req.target); err != nil {
		return Closed, errors.Trace(err)
	}
	e.listener = server
	e.local = e.resolver.FromNetAddr(server.Addr())
	return Listening, nil
}

type openingClientState struct{ unsupported }

func (h openingClientState) open(ctx context.Context, e *endpoint, req *openRequest) (State, error) {
	var client transport.TransportClient = tcp.NewTCPClient()
	if e.protocol == Datagram {
		client = udp.NewUDPClient()
	}
	conn, err := client.Dial(ctx, req.target)
	if err != nil {
		return Closed, errors.Trace(err)
	}
	e.handle, e.conn = conn, conn
	e.local = e.resolver.FromNetAddr(conn.LocalAddr())
	e.peer = req.target
	return Connected, nil
}

type openingClientTLSState struct{ unsupported }

// open applies the queued TLS options through the option namespace, connects
// and runs the handshake. On failure the context is released here and the
// handle by the caller.
func (h openingClientTLSState) open(ctx context.Context, e *endpoint, req *openRequest) (State, error) {
	for _, opt := range e.tlsPending {
		if err := h.setOption(e, LevelTLS, opt.name, opt.value); err != nil {
			return Closed, errors.Trace(err)
		}
	}

	raw, err := tcp.NewTCPClient().Dial(ctx, req.target)
	if err != nil {
		return Closed, errors.Trace(err)
	}
	e.handle = raw
	e.local = e.resolver.FromNetAddr(raw.LocalAddr())
	e.peer = req.target

	netConn, ok := raw.(net.Conn)
	if !ok {
		return Closed, errors.Tracef("%T cannot carry TLS", raw)
	}
	tctx, err := tls.NewContext(&e.tlsOpts)
	if err != nil {
		return Closed, errors.Trace(err)
	}
	serverName := req.host
	if serverName == "" {
		serverName = req.target.Numeric()
	}
	session, err := tls.Client(ctx, netConn, tctx, serverName)
	if err != nil {
		tctx.Release()
		return Closed, errors.Trace(err)
	}
	e.tlsOpts.Wipe()
	e.session, e.conn = session, session
	return ConnectedTLS, nil
}

func (h openingClientTLSState) setOption(e *endpoint, level, name int, value interface{}) error {
	if level == LevelTLS {
		return errors.Trace(e.tlsOpts.Set(name, value))
	}
	return h.unsupported.setOption(e, level, name, value)
}

type listeningState struct{ unsupported }

func (h listeningState) accept(e *endpoint) (transport.TransportConn, error) {
	conn, err := e.listener.Accept()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return conn, nil
}

func (h listeningState) close(e *endpoint) error {
	return e.release()
}

// abort fails a pending accept by expiring the listener deadline. Later
// accepts fail too.
func (h listeningState) abort(e *endpoint) error {
	return errors.Trace(e.listener.SetDeadline(time.Now()))
}

type connectedState struct{ unsupported }

func (h connectedState) stream(e *endpoint, _ string) transport.TransportConn {
	return e.conn
}

func (h connectedState) available(e *endpoint) (int, error) {
	sc := e.sysConn()
	if sc == nil {
		return 0, errors.Trace(ErrNotOpen)
	}
	n, err := sockopt.Available(sc)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return n, nil
}

func (h connectedState) close(e *endpoint) error {
	return e.release()
}

// abort interrupts blocked reads and writes, including those of workers.
func (h connectedState) abort(e *endpoint) error {
	return errors.Trace(e.conn.SetDeadline(time.Now()))
}

type connectedTLSState struct{ connectedState }

// close releases the session, and with it the TLS context, before the
// handle is closed.
func (h connectedTLSState) close(e *endpoint) error {
	if e.session != nil {
		if err := e.session.Release(); err != nil {
			e.log.Debugf("close_notify failed: %v", err)
		}
	}
	return h.connectedState.close(e)
}

// available counts plaintext held by the session as well as what the
// socket has buffered, so a short read never hides the rest of a record.
func (h connectedTLSState) available(e *endpoint) (int, error) {
	if e.session == nil {
		return 0, errors.Trace(ErrNotOpen)
	}
	n, err := e.session.Pending()
	if err != nil {
		return 0, errors.Trace(err)
	}
	return n, nil
}

// getOption reads TLS options back, plus the negotiated handshake
// properties.
func (h connectedTLSState) getOption(e *endpoint, level, name int) (interface{}, error) {
	if level != LevelTLS {
		return h.connectedState.getOption(e, level, name)
	}
	if name >= tls.OptProtocolVersion {
		v, err := e.session.Get(name)
		return v, errors.Trace(err)
	}
	v, err := e.tlsOpts.Get(name)
	return v, errors.Trace(err)
}
