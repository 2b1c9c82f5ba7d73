package socket

import (
	"io"

	"github.com/jabberwocky238/netstream/common/errors"
)

const DefaultBufferSize = 4096

var ErrNoPushback = errors.New("no byte to push back at block start")

// StreamBuffer adapts a Socket to buffered byte reads and writes with one
// fixed input block and one fixed output block. It never opens or closes the
// socket; closing the socket flushes the output block.
//
// Reads and writes through a StreamBuffer are always synchronous, whatever
// the socket's async mode.
type StreamBuffer struct {
	s *Socket

	in   []byte
	r, w int // in[r:w] is unread

	out *outBlock
}

// outBlock is held by the Socket as well so Close can flush it.
type outBlock struct {
	buf []byte
	n   int
}

func (o *outBlock) flush(s *Socket) error {
	if o.n == 0 {
		return nil
	}
	err := s.writeFull(o.buf[:o.n])
	o.n = 0
	return err
}

// NewStreamBuffer attaches a buffer to s, replacing any buffer attached
// before.
func NewStreamBuffer(s *Socket, size int) *StreamBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	b := &StreamBuffer{
		s:   s,
		in:  make([]byte, size),
		out: &outBlock{buf: make([]byte, size)},
	}
	s.pending = b.out
	return b
}

// underflow refills the input block. Any failure or empty read is reported
// as the end of the stream.
func (b *StreamBuffer) underflow() error {
	n, err := b.s.readSync(b.s.handler(), b.in)
	if n <= 0 {
		if err != nil && err != io.EOF {
			b.s.ep.log.Debugf("stream buffer underflow: %v", err)
		}
		return io.EOF
	}
	b.r, b.w = 0, n
	return nil
}

func (b *StreamBuffer) ReadByte() (byte, error) {
	if b.r == b.w {
		if err := b.underflow(); err != nil {
			return 0, err
		}
	}
	c := b.in[b.r]
	b.r++
	return c, nil
}

// UnreadByte steps back one byte within the current input block. It fails
// at the start of the block, including right after a refill.
func (b *StreamBuffer) UnreadByte() error {
	if b.r == 0 {
		return ErrNoPushback
	}
	b.r--
	return nil
}

func (b *StreamBuffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if b.r == b.w {
		if err := b.underflow(); err != nil {
			return 0, err
		}
	}
	n := copy(p, b.in[b.r:b.w])
	b.r += n
	return n, nil
}

// Buffered returns how many unread bytes the input block holds.
func (b *StreamBuffer) Buffered() int {
	return b.w - b.r
}

// WriteByte appends c and flushes when the output block is full.
func (b *StreamBuffer) WriteByte(c byte) error {
	b.out.buf[b.out.n] = c
	b.out.n++
	if b.out.n == len(b.out.buf) {
		return b.Sync()
	}
	return nil
}

func (b *StreamBuffer) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := copy(b.out.buf[b.out.n:], p)
		b.out.n += n
		p = p[n:]
		if b.out.n == len(b.out.buf) {
			if err := b.Sync(); err != nil {
				return written, err
			}
		}
		written += n
	}
	return written, nil
}

func (b *StreamBuffer) WriteString(str string) (int, error) {
	return b.Write([]byte(str))
}

// Sync writes out the accumulated output.
func (b *StreamBuffer) Sync() error {
	return errors.Trace(b.out.flush(b.s))
}

// Close flushes the output and detaches the buffer. The socket stays open.
func (b *StreamBuffer) Close() error {
	var err error
	if b.s.state.connected() {
		err = b.Sync()
	}
	if b.s.pending == b.out {
		b.s.pending = nil
	}
	return err
}
