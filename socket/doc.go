// Package socket provides Socket, one handle for either end of a TCP, UDP or
// TLS-over-TCP connection.
//
// A Socket moves through a fixed set of lifecycle states. Each state accepts
// only some operations; calling any other operation is a programming error and
// panics with *ContractViolation. Runtime failures (resolution, connect, bind,
// accept, I/O) are returned as errors and never panic.
//
//	Closed -> OpeningServer    -> Listening    (stream)
//	                           -> Connected    (datagram)
//	       -> OpeningClient    -> Connected
//	       -> OpeningClientTLS -> ConnectedTLS
//
// Listening hands out new Sockets, already Connected, from Listen. A failed
// open always leaves the Socket Closed with its handle released.
//
// In async mode a read that finds no data pending either returns ErrNoData
// (no callback registered) or hands the read to a worker goroutine and
// returns ErrPending; the worker calls the registered Callback once, and only
// if it read something. Writes go to a worker only when a callback is
// registered.
//
// A Socket is not safe for concurrent use. Callbacks run on worker
// goroutines and may overlap with calls made by the owner.
package socket
