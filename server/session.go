package server

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"relay/protocol"
)

var errFrameTooLarge = errors.New("frame exceeds maximum size")

// framedConn is one frame-oriented bidirectional connection. The TCP and
// WebSocket transports both implement it, so the connection handler is
// transport-neutral.
type framedConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(payload []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
	RemoteAddr() net.Addr
}

// tcpConn carries newline-delimited JSON frames over a stream socket.
// Explicit delimiters survive coalescing and fragmentation on the stream.
type tcpConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newTCPConn(conn net.Conn) *tcpConn {
	return &tcpConn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, protocol.MaxFrameSize),
	}
}

// ReadFrame returns the next newline-delimited frame. A line that outgrows
// MaxFrameSize aborts the connection instead of growing the buffer. The
// returned slice is only valid until the next read; callers decode it
// before reading again.
func (c *tcpConn) ReadFrame() ([]byte, error) {
	line, err := c.reader.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		return nil, errFrameTooLarge
	}
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

func (c *tcpConn) WriteFrame(payload []byte) error {
	// The payload is shared across a fan-out; delimit into a fresh buffer.
	buf := make([]byte, 0, len(payload)+1)
	buf = append(buf, payload...)
	buf = append(buf, '\n')
	_, err := c.conn.Write(buf)
	return err
}

func (c *tcpConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *tcpConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
func (c *tcpConn) Close() error                       { return c.conn.Close() }
func (c *tcpConn) RemoteAddr() net.Addr               { return c.conn.RemoteAddr() }

// Session is the live binding between a logged-in username and its
// connection. Writes are serialized by the session mutex so broadcasts from
// other handlers cannot interleave with the owning handler's sends.
type Session struct {
	Username string

	conn         framedConn
	writeTimeout time.Duration
	mu           sync.Mutex
	superseded   atomic.Bool
}

func newSession(username string, conn framedConn, writeTimeout time.Duration) *Session {
	return &Session{
		Username:     username,
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (s *Session) Send(f *protocol.Frame) error {
	payload, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	return s.send(payload)
}

func (s *Session) send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteFrame(payload)
}

func (s *Session) Close() error {
	return s.conn.Close()
}

// markSuperseded flags the session as evicted by a newer login for the same
// username. Its finalization then skips the departure broadcast.
func (s *Session) markSuperseded() {
	s.superseded.Store(true)
}

func (s *Session) isSuperseded() bool {
	return s.superseded.Load()
}
