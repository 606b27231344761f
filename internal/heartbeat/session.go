package heartbeat

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// ConnSession is a Session over a stream connection.
type ConnSession struct {
	conn         net.Conn
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewConnSession wraps an established connection.
func NewConnSession(conn net.Conn, writeTimeout time.Duration) *ConnSession {
	if writeTimeout == 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &ConnSession{conn: conn, writeTimeout: writeTimeout}
}

// Receive waits up to timeout for a ping.
//
// Returns ErrTimeout if nothing arrives in time, ErrPeerSleeping if the peer
// announced sleep, ErrUnexpectedMessage for any other command and
// ErrSessionClosed when the connection is gone.
func (s *ConnSession) Receive(timeout time.Duration) (Message, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Message{}, classify(err)
	}

	msg, err := ReadFrame(s.conn)
	if err != nil {
		return Message{}, classify(err)
	}

	switch msg.Command {
	case CommandMarco:
		return msg, nil
	case CommandSleepyTime:
		return msg, ErrPeerSleeping
	default:
		return msg, fmt.Errorf("%w: %q", ErrUnexpectedMessage, msg.Command)
	}
}

// Send writes msg.
func (s *ConnSession) Send(msg Message) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return classify(err)
	}
	if err := WriteFrame(s.conn, msg); err != nil {
		return classify(err)
	}
	return nil
}

// Close closes the connection. Safe to call multiple times.
func (s *ConnSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// RemoteAddr returns the peer address.
func (s *ConnSession) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// classify maps low-level I/O errors onto the package sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrFrameTooLarge), errors.Is(err, ErrUnexpectedMessage):
		return err
	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return fmt.Errorf("%w: %w", ErrSessionClosed, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
