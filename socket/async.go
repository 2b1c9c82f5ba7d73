package socket

import (
	"context"

	"github.com/jabberwocky238/netstream/common/errors"
	"github.com/jabberwocky238/netstream/transport"
)

// Callback receives the result of an async operation: the byte count and
// the bytes read or written. data belongs to the callback. It runs on a
// worker goroutine and is not called when the operation fails or reads
// nothing.
type Callback func(n int, data []byte)

func (s *Socket) SetAsync(on bool) { s.async = on }

func (s *Socket) Async() bool { return s.async }

// RegisterCallback installs cb and returns the previous callback, if any.
// Workers already running keep the callback they started with.
func (s *Socket) RegisterCallback(cb Callback) Callback {
	prev := s.callback
	s.callback = cb
	return prev
}

// readAsync reads whatever is already pending without blocking. With
// nothing pending the read goes to a worker if a callback is registered.
func (s *Socket) readAsync(h stateHandler, b []byte) (int, error) {
	conn := h.stream(&s.ep, "read")
	avail, err := h.available(&s.ep)
	if err != nil {
		return 0, err
	}
	if avail > 0 {
		if avail < len(b) {
			b = b[:avail]
		}
		n, err := conn.Read(b)
		if n > 0 {
			s.bytesRead.Add(uint64(n))
		}
		return n, err
	}

	cb := s.callback
	if cb == nil {
		return 0, ErrNoData
	}
	size := len(b)
	s.spawn("read", func() {
		data := make([]byte, size)
		n, err := conn.Read(data)
		if err != nil || n == 0 {
			s.ep.log.Debugf("async read ended without data: n=%d err=%v", n, err)
			return
		}
		s.bytesRead.Add(uint64(n))
		cb(n, data[:n])
	})
	return 0, ErrPending
}

func (s *Socket) writeAsync(conn transport.TransportConn, b []byte) {
	cb := s.callback
	data := append([]byte(nil), b...)
	s.spawn("write", func() {
		n, err := conn.Write(data)
		if n > 0 {
			s.bytesWritten.Add(uint64(n))
		}
		if err != nil {
			s.ep.log.Debugf("async write failed after %d bytes: %v", n, err)
			return
		}
		cb(n, data[:n])
	})
}

// spawn runs work on its own goroutine. With a worker bound the slot is
// taken inside the goroutine, so the caller never blocks.
func (s *Socket) spawn(op string, work func()) {
	s.workers.Add(1)
	sem := s.sem
	logger := s.ep.log
	go func() {
		defer s.workers.Done()
		if sem != nil {
			if err := sem.Acquire(context.Background(), 1); err != nil {
				logger.Warnf("%s worker not started: %v", op, err)
				return
			}
			defer sem.Release(1)
		}
		logger.Debugf("%s worker started", op)
		work()
		logger.Debugf("%s worker finished", op)
	}()
}

// Drain waits until every worker started so far has finished, or ctx ends.
func (s *Socket) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}
