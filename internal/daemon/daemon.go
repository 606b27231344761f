package daemon

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/netmuxd/internal/events"
	"github.com/nerrad567/netmuxd/internal/heartbeat"
	"github.com/nerrad567/netmuxd/internal/infrastructure/config"
	"github.com/nerrad567/netmuxd/internal/infrastructure/logging"
	"github.com/nerrad567/netmuxd/internal/infrastructure/mqtt"
	"github.com/nerrad567/netmuxd/internal/wifi"
)

// Target is one device reached by direct address.
type Target struct {
	Address      string
	PairRecordID string
}

// Config configures the supervisor group.
type Config struct {
	Targets        []Target
	PollInterval   time.Duration
	ReceiveTimeout time.Duration
	ConnectTimeout time.Duration
}

// ConfigFromApp maps the application config onto a daemon Config.
func ConfigFromApp(cfg *config.Config) Config {
	out := Config{
		PollInterval:   cfg.Supervisor.PollInterval,
		ReceiveTimeout: cfg.Heartbeat.ReceiveTimeout,
		ConnectTimeout: cfg.Heartbeat.ConnectTimeout,
	}
	for _, t := range cfg.Targets {
		out.Targets = append(out.Targets, Target{Address: t.Address, PairRecordID: t.PairRecordID})
	}
	return out
}

// Deps are the collaborators shared by every supervisor.
type Deps struct {
	Mux       wifi.Multiplexer
	Transport heartbeat.Transport
	Emitter   events.Emitter
	Logger    *logging.Logger
}

// Daemon runs a DirectSupervisor per target.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Daemon struct {
	mu          sync.RWMutex
	supervisors map[string]*wifi.DirectSupervisor
	order       []string
	started     bool
	closed      bool

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}

	logger *logging.Logger
}

// New creates a supervisor per target. Nothing runs until Start.
func New(cfg Config, deps Deps) (*Daemon, error) {
	if deps.Logger == nil {
		deps.Logger = logging.NewWithWriter(io.Discard, config.LoggingConfig{}, "")
	}

	d := &Daemon{
		supervisors: make(map[string]*wifi.DirectSupervisor, len(cfg.Targets)),
		done:        make(chan struct{}),
		logger:      deps.Logger.With("component", "daemon"),
	}

	for _, t := range cfg.Targets {
		if _, ok := d.supervisors[t.Address]; ok {
			d.closeSupervisors()
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTarget, t.Address)
		}
		s := wifi.NewDirectSupervisor(wifi.SupervisorConfig{
			Target:         t.Address,
			PairRecordID:   t.PairRecordID,
			PollInterval:   cfg.PollInterval,
			ReceiveTimeout: cfg.ReceiveTimeout,
			ConnectTimeout: cfg.ConnectTimeout,
		}, wifi.Deps{
			Mux:       deps.Mux,
			Transport: deps.Transport,
			Emitter:   deps.Emitter,
			Logger:    deps.Logger.With("component", "supervisor", "target", t.Address),
		})
		d.supervisors[t.Address] = s
		d.order = append(d.order, t.Address)
	}

	return d, nil
}

// Start launches every reconnect loop. If any loop fails to start the
// error is returned; supervisors that did start keep running until Close.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.started {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	d.started = true
	sups := d.snapshot()
	d.mu.Unlock()

	var g errgroup.Group
	for _, s := range sups {
		g.Go(func() error {
			if err := s.Start(); err != nil {
				return fmt.Errorf("starting supervisor %s: %w", s.Target(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	d.logger.Info("supervisors started", "targets", len(sups))
	return nil
}

// Close shuts every supervisor down concurrently and waits for all of
// them. Safe to call multiple times.
func (d *Daemon) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		d.closeErr = d.closeSupervisors()
		close(d.done)
		d.logger.Info("supervisors stopped")
	})
	<-d.done
	return d.closeErr
}

// Shutdown is Close bounded by ctx. When ctx ends first its error is
// returned and shutdown carries on in the background.
func (d *Daemon) Shutdown(ctx context.Context) error {
	go d.Close() //nolint:errcheck // result read from closeErr below
	select {
	case <-d.done:
		return d.closeErr
	case <-ctx.Done():
		return fmt.Errorf("waiting for supervisors: %w", ctx.Err())
	}
}

func (d *Daemon) closeSupervisors() error {
	d.mu.RLock()
	sups := d.snapshot()
	d.mu.RUnlock()

	var g errgroup.Group
	for _, s := range sups {
		g.Go(func() error {
			s.Close()
			return nil
		})
	}
	return g.Wait()
}

// Wake interrupts the reconnect wait of the supervisor for target.
func (d *Daemon) Wake(target string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	s, ok := d.supervisors[target]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}
	s.Wake()
	d.logger.Debug("supervisor woken", "target", target)
	return nil
}

// WakeAll wakes every supervisor.
func (d *Daemon) WakeAll() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	for _, s := range d.supervisors {
		s.Wake()
	}
}

// HandleWakeCommand is an MQTT handler for the supervisor wake topic.
func (d *Daemon) HandleWakeCommand(topic string, _ []byte) error {
	target, ok := mqtt.ParseSupervisorWake(topic)
	if !ok {
		return fmt.Errorf("not a wake topic: %s", topic)
	}
	return d.Wake(target)
}

// Statuses returns a snapshot of every supervisor in configuration order.
func (d *Daemon) Statuses() []wifi.Status {
	d.mu.RLock()
	sups := d.snapshot()
	d.mu.RUnlock()

	out := make([]wifi.Status, 0, len(sups))
	for _, s := range sups {
		out = append(out, s.Status())
	}
	return out
}

// Status returns the snapshot for one target.
func (d *Daemon) Status(target string) (wifi.Status, error) {
	d.mu.RLock()
	s, ok := d.supervisors[target]
	d.mu.RUnlock()
	if !ok {
		return wifi.Status{}, fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}
	return s.Status(), nil
}

// Targets returns the configured addresses in order.
func (d *Daemon) Targets() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.order...)
}

// snapshot must be called with mu held.
func (d *Daemon) snapshot() []*wifi.DirectSupervisor {
	out := make([]*wifi.DirectSupervisor, 0, len(d.order))
	for _, t := range d.order {
		out = append(out, d.supervisors[t])
	}
	return out
}
