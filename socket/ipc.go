package socket

import (
	"encoding/binary"
	"io"

	"github.com/jabberwocky238/netstream/common/errors"
	"github.com/jabberwocky238/netstream/transport/sockopt"
)

// IPC records are little-endian:
//
//	request: ordinal u16 | size u32 | cookie u32 | payload
//	reply:   ordinal u16 | size u32 | cookie u32 | code i32 | payload
//
// size counts the whole record, header included.
const (
	RequestHeaderSize = 10
	ReplyHeaderSize   = 14

	// DefaultMaxRecordSize caps a stream record before its payload is
	// allocated.
	DefaultMaxRecordSize = 1 << 20
)

var ErrBadRecord = errors.New("malformed IPC record")

type Record struct {
	Ordinal uint16
	Cookie  uint32
	Reply   bool
	// Code is the return code carried by replies.
	Code    int32
	Payload []byte
}

func (r *Record) headerSize() int {
	if r.Reply {
		return ReplyHeaderSize
	}
	return RequestHeaderSize
}

func (r *Record) MarshalBinary() ([]byte, error) {
	size := r.headerSize() + len(r.Payload)
	if uint64(size) > uint64(^uint32(0)) {
		return nil, errors.TraceMsg(ErrBadRecord, "payload too large")
	}
	b := make([]byte, size)
	binary.LittleEndian.PutUint16(b[0:], r.Ordinal)
	binary.LittleEndian.PutUint32(b[2:], uint32(size))
	binary.LittleEndian.PutUint32(b[6:], r.Cookie)
	if r.Reply {
		binary.LittleEndian.PutUint32(b[10:], uint32(r.Code))
	}
	copy(b[r.headerSize():], r.Payload)
	return b, nil
}

// parseHeader fills r from a header and returns the declared record size.
func (r *Record) parseHeader(h []byte) (int, error) {
	r.Ordinal = binary.LittleEndian.Uint16(h[0:])
	size := binary.LittleEndian.Uint32(h[2:])
	r.Cookie = binary.LittleEndian.Uint32(h[6:])
	if r.Reply {
		r.Code = int32(binary.LittleEndian.Uint32(h[10:]))
	}
	if size < uint32(r.headerSize()) {
		return 0, errors.Tracef("%w: size %d below header size", ErrBadRecord, size)
	}
	return int(size), nil
}

// RemoteProcedure sends a request record and returns the cookie assigned to
// it. Cookies increase by one per request on a socket.
func (s *Socket) RemoteProcedure(ordinal uint16, payload []byte) (uint32, error) {
	s.mustWrite()
	rec := &Record{Ordinal: ordinal, Cookie: s.cookie.Add(1), Payload: payload}
	b, err := rec.MarshalBinary()
	if err != nil {
		return 0, err
	}
	if err := s.writeFull(b); err != nil {
		return 0, errors.Trace(err)
	}
	return rec.Cookie, nil
}

// RemoteReply answers req, echoing its ordinal and cookie.
func (s *Socket) RemoteReply(req *Record, code int32, payload []byte) error {
	s.mustWrite()
	rec := &Record{Ordinal: req.Ordinal, Cookie: req.Cookie, Reply: true, Code: code, Payload: payload}
	b, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	return errors.Trace(s.writeFull(b))
}

func (s *Socket) mustWrite() {
	if !s.mode.Has(ModeWrite) {
		panic(&ContractViolation{State: s.state, Op: "write", Reason: "not opened for writing"})
	}
}

// RemoteReadData reads one record: the header first, then exactly the rest
// of the declared size. Bytes still pending after it are discarded, since a
// peer sends one record per exchange. A datagram carries a whole record.
func (s *Socket) RemoteReadData(reply bool) (*Record, error) {
	h := s.handler()
	if !s.mode.Has(ModeRead) {
		panic(&ContractViolation{State: s.state, Op: "read", Reason: "not opened for reading"})
	}
	rec := &Record{Reply: reply}
	if s.ep.protocol == Datagram {
		if err := s.readDatagramRecord(h, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}

	header := make([]byte, rec.headerSize())
	if _, err := io.ReadFull(syncReader{s, h}, header); err != nil {
		return nil, errors.Trace(err)
	}
	size, err := rec.parseHeader(header)
	if err != nil {
		return nil, err
	}
	if size > s.maxRecord {
		return nil, errors.Tracef("%w: declared %d bytes, limit %d", ErrBadRecord, size, s.maxRecord)
	}
	rec.Payload = make([]byte, size-len(header))
	if _, err := io.ReadFull(syncReader{s, h}, rec.Payload); err != nil {
		return nil, errors.Trace(err)
	}
	s.discardPending(h)
	return rec, nil
}

func (s *Socket) readDatagramRecord(h stateHandler, rec *Record) error {
	buf := make([]byte, maxDatagramSize)
	n, err := s.readSync(h, buf)
	if err != nil {
		return errors.Trace(err)
	}
	if n < rec.headerSize() {
		return errors.Tracef("%w: %d byte datagram", ErrBadRecord, n)
	}
	size, err := rec.parseHeader(buf[:rec.headerSize()])
	if err != nil {
		return err
	}
	if size > n {
		return errors.Tracef("%w: declared %d bytes, datagram has %d", ErrBadRecord, size, n)
	}
	rec.Payload = append([]byte(nil), buf[rec.headerSize():size]...)
	return nil
}

// discardPending is skipped for TLS, where the pending count is ciphertext.
func (s *Socket) discardPending(h stateHandler) {
	sc := s.ep.sysConn()
	if sc == nil || s.ep.session != nil {
		return
	}
	n, err := sockopt.Available(sc)
	if err != nil || n == 0 {
		return
	}
	junk := make([]byte, n)
	if _, err := io.ReadFull(syncReader{s, h}, junk); err != nil {
		s.ep.log.Debugf("discarding %d residual bytes: %v", n, err)
		return
	}
	s.ep.log.Debugf("discarded %d residual bytes", n)
}

// syncReader reads through the socket's state without the async path.
type syncReader struct {
	s *Socket
	h stateHandler
}

func (r syncReader) Read(b []byte) (int, error) {
	return r.s.readSync(r.h, b)
}
