package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Default settings for the TCP transport.
const (
	DefaultPort           = 62078
	defaultConnectTimeout = 10 * time.Second
	defaultWriteTimeout   = 5 * time.Second
)

// Session is one established heartbeat channel.
//
// Receive blocks for at most timeout waiting for a ping. Send writes a
// reply. Close releases the connection and unblocks a pending Receive.
type Session interface {
	Receive(timeout time.Duration) (Message, error)
	Send(msg Message) error
	Close() error
}

// Transport establishes heartbeat sessions with peers.
type Transport interface {
	Establish(ctx context.Context, identifier string, addrs []string) (Session, error)
}

// Logger defines the logging interface for the transport.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds TCP transport settings.
type Config struct {
	// Port is the peer's heartbeat port.
	Port int

	// ConnectTimeout bounds each dial attempt.
	ConnectTimeout time.Duration

	// WriteTimeout bounds each reply write.
	WriteTimeout time.Duration
}

// TCPTransport dials peers over TCP.
type TCPTransport struct {
	cfg    Config
	logger Logger
	dial   func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewTCPTransport creates a transport, applying defaults for zero values.
func NewTCPTransport(cfg Config) *TCPTransport {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	var dialer net.Dialer
	return &TCPTransport{
		cfg:    cfg,
		logger: noopLogger{},
		dial:   dialer.DialContext,
	}
}

// SetLogger sets the logger for the transport.
func (t *TCPTransport) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	t.logger = logger
}

// Establish dials addrs in order and returns a session on the first one that
// answers. identifier is used for log context only.
func (t *TCPTransport) Establish(ctx context.Context, identifier string, addrs []string) (Session, error) {
	if len(addrs) == 0 {
		return nil, ErrNoAddress
	}

	port := strconv.Itoa(t.cfg.Port)
	var errs []error

	for _, addr := range addrs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
		}

		dialCtx, cancel := context.WithTimeout(ctx, t.cfg.ConnectTimeout)
		conn, err := t.dial(dialCtx, "tcp", net.JoinHostPort(addr, port))
		cancel()
		if err != nil {
			t.logger.Debug("heartbeat dial failed",
				"serial", identifier,
				"address", addr,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}

		t.logger.Debug("heartbeat session established",
			"serial", identifier,
			"address", addr,
		)
		return NewConnSession(conn, t.cfg.WriteTimeout), nil
	}

	return nil, fmt.Errorf("%w: %w", ErrConnectFailed, errors.Join(errs...))
}
