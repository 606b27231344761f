package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/netmuxd/internal/events"
	"github.com/nerrad567/netmuxd/internal/history"
	"github.com/nerrad567/netmuxd/internal/infrastructure/config"
	"github.com/nerrad567/netmuxd/internal/infrastructure/logging"
	"github.com/nerrad567/netmuxd/internal/muxer"
	"github.com/nerrad567/netmuxd/internal/wifi"
)

// gracefulShutdownTimeout bounds in-flight requests during Close.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceLister exposes the registered-device table. Satisfied by *muxer.Muxer.
type DeviceLister interface {
	Devices() []muxer.Info
	Count() int
}

// SupervisorController exposes the supervisors. Satisfied by *daemon.Daemon.
type SupervisorController interface {
	Statuses() []wifi.Status
	Status(target string) (wifi.Status, error)
	Wake(target string) error
}

// HealthChecker is implemented by infrastructure clients (database, MQTT,
// InfluxDB).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	Logger      *logging.Logger
	Devices     DeviceLister
	Supervisors SupervisorController

	// Sessions is optional; /sessions answers 503 without it.
	Sessions history.Repository

	// Bus is optional; when set the WebSocket hub subscribes to it.
	Bus *events.Bus

	// Checks are reported by /health keyed by component name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the HTTP status API.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	devices     DeviceLister
	supervisors SupervisorController
	sessions    history.Repository
	bus         *events.Bus
	checks      map[string]HealthChecker
	version     string

	hub         *Hub
	unsubscribe func()

	server    *http.Server
	listener  net.Listener
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// New creates a server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device lister is required")
	}
	if deps.Supervisors == nil {
		return nil, fmt.Errorf("supervisor controller is required")
	}

	logger := deps.Logger.With("component", "api")
	return &Server{
		cfg:         deps.Config,
		logger:      logger,
		devices:     deps.Devices,
		supervisors: deps.Supervisors,
		sessions:    deps.Sessions,
		bus:         deps.Bus,
		checks:      deps.Checks,
		version:     deps.Version,
		hub:         NewHub(logger),
	}, nil
}

// Handler returns the router. Used by Start and by tests.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener, subscribes the hub to the event bus and serves
// in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	if s.bus != nil {
		s.unsubscribe = s.bus.Subscribe("websocket", s.hub, 0)
	}

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops event delivery to WebSocket clients and shuts the HTTP server
// down, waiting up to 10 seconds for in-flight requests. Safe to call more
// than once.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		s.logger.Info("API server shutting down")
		if err := s.server.Shutdown(ctx); err != nil {
			s.closeErr = fmt.Errorf("shutting down API server: %w", err)
		}
	})
	return s.closeErr
}
