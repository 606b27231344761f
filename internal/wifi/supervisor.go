package wifi

import (
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/netmuxd/internal/device"
	"github.com/nerrad567/netmuxd/internal/events"
	"github.com/nerrad567/netmuxd/internal/heartbeat"
	"github.com/nerrad567/netmuxd/internal/lifecycle"
)

// MaxTargetLength is the longest accepted target, the size of the longest
// textual IPv6 form.
const MaxTargetLength = 45

// DefaultPollInterval is how often a disconnected supervisor retries.
const DefaultPollInterval = 10 * time.Second

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// SupervisorConfig configures one direct-connection target.
type SupervisorConfig struct {
	// Target is the peer's IPv4 or IPv6 literal.
	Target string

	// PairRecordID identifies the peer; it becomes the device serial.
	PairRecordID string

	// PollInterval is the retry period while disconnected.
	PollInterval time.Duration

	// ReceiveTimeout and ConnectTimeout are passed to each Device.
	ReceiveTimeout time.Duration
	ConnectTimeout time.Duration
}

// Deps are the collaborators of a DirectSupervisor.
type Deps struct {
	Mux       Multiplexer
	Transport heartbeat.Transport
	Logger    Logger
	Emitter   events.Emitter
}

// Status is a point-in-time view of a supervisor.
type Status struct {
	Target        string           `json:"target"`
	PairRecordID  string           `json:"pair_record_id"`
	Connected     bool             `json:"connected"`
	StopRequested bool             `json:"stop_requested"`
	Children      int              `json:"children"`
	Loop          lifecycle.Status `json:"loop"`
	Attempts      uint64           `json:"attempts"`
	LastError     string           `json:"last_error,omitempty"`
}

// DirectSupervisor maintains at most one live Device for a configured
// address and reaps devices that die.
type DirectSupervisor struct {
	*device.Registry

	cfg       SupervisorConfig
	mux       Multiplexer
	transport heartbeat.Transport
	logger    Logger
	emitter   events.Emitter

	connected     atomic.Bool
	stopRequested atomic.Bool

	// firstAttempted is only touched by the reconnect loop goroutine.
	firstAttempted bool

	wakeMu     sync.Mutex
	wake       chan struct{}
	wakeClosed bool
	stop       *closeOnce

	reap     *lifecycle.DeliveryQueue[*Device]
	reaperWG sync.WaitGroup

	loop     *lifecycle.Loop
	shutdown sync.Once

	attempts atomic.Uint64
	errMu    sync.Mutex
	lastErr  error
}

// NewDirectSupervisor creates a supervisor and starts its reaper. The
// reconnect loop does not run until Start.
func NewDirectSupervisor(cfg SupervisorConfig, deps Deps) *DirectSupervisor {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Emitter == nil {
		deps.Emitter = events.Discard
	}

	s := &DirectSupervisor{
		Registry:  device.NewRegistry(),
		cfg:       cfg,
		mux:       deps.Mux,
		transport: deps.Transport,
		logger:    deps.Logger,
		emitter:   deps.Emitter,
		wake:      make(chan struct{}, 1),
		stop:      newCloseOnce(),
		reap:      lifecycle.NewDeliveryQueue[*Device](),
	}
	s.Registry.SetLogger(deps.Logger)
	s.loop = lifecycle.NewLoop("wifi-direct "+cfg.Target, s)
	s.loop.SetLogger(deps.Logger)

	s.logger.Debug("direct supervisor created",
		"target", cfg.Target,
		"pair_record_id", cfg.PairRecordID,
	)

	s.reaperWG.Add(1)
	go s.reaperLoop()

	return s
}

// Target returns the configured address.
func (s *DirectSupervisor) Target() string { return s.cfg.Target }

// Connected reports whether a device for the target is live.
func (s *DirectSupervisor) Connected() bool { return s.connected.Load() }

// StopRequested reports whether shutdown has begun.
func (s *DirectSupervisor) StopRequested() bool { return s.stopRequested.Load() }

// Start runs the reconnect loop.
func (s *DirectSupervisor) Start() error {
	return s.loop.Start()
}

// Wake interrupts the reconnect wait. A disconnected supervisor retries
// immediately. Wakes after Close are ignored.
func (s *DirectSupervisor) Wake() {
	s.wakeMu.Lock()
	defer s.wakeMu.Unlock()
	if s.wakeClosed {
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the supervisor state.
func (s *DirectSupervisor) Status() Status {
	st := Status{
		Target:        s.cfg.Target,
		PairRecordID:  s.cfg.PairRecordID,
		Connected:     s.connected.Load(),
		StopRequested: s.stopRequested.Load(),
		Children:      s.ChildCount(),
		Loop:          s.loop.Status(),
		Attempts:      s.attempts.Load(),
	}
	s.errMu.Lock()
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	s.errMu.Unlock()
	return st
}

// BeforeLoop implements lifecycle.Entity.
func (s *DirectSupervisor) BeforeLoop() error {
	s.logger.Info("direct supervisor started", "target", s.cfg.Target)
	return nil
}

// LoopEvent runs one reconnect iteration.
func (s *DirectSupervisor) LoopEvent() (bool, error) {
	if s.stopRequested.Load() {
		return false, nil
	}

	if !s.firstAttempted {
		s.firstAttempted = true
		s.connect()
		return !s.stopRequested.Load(), nil
	}

	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	select {
	case <-s.stop.Done():
		return false, nil
	case _, ok := <-s.wake:
		if !ok {
			return false, nil
		}
		s.logger.Debug("reconnect loop woken", "target", s.cfg.Target)
		if !s.connected.Load() && !s.stopRequested.Load() {
			s.connect()
		}
	case <-timer.C:
		if !s.connected.Load() && !s.stopRequested.Load() {
			s.logger.Debug("poll timeout, attempting reconnect", "target", s.cfg.Target)
			s.connect()
		}
	}

	return !s.stopRequested.Load(), nil
}

// AfterLoop implements lifecycle.Entity.
func (s *DirectSupervisor) AfterLoop() {
	s.logger.Debug("reconnect loop exited", "target", s.cfg.Target)
}

// StopAction unblocks a pending reconnect wait.
func (s *DirectSupervisor) StopAction() {
	s.stopRequested.Store(true)
	s.Wake()
	s.stop.Close()
}

// connect runs tryConnect and records the outcome. Failures are retried on
// the next cycle.
func (s *DirectSupervisor) connect() {
	s.attempts.Add(1)

	err := s.tryConnect()

	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()

	if err != nil {
		s.logger.Error("connection attempt failed",
			"target", s.cfg.Target,
			"error", err,
		)
		s.emitter.Emit(events.Event{
			Kind:   events.KindConnectFailed,
			Serial: device.TruncateSerial(s.cfg.PairRecordID),
			Target: s.cfg.Target,
			Reason: err.Error(),
			At:     time.Now(),
		})
	}
}

// tryConnect creates and registers a device for the target unless one is
// already registered.
func (s *DirectSupervisor) tryConnect() error {
	if s.stopRequested.Load() {
		return ErrStopping
	}

	if err := ValidateTarget(s.cfg.Target); err != nil {
		return err
	}

	addrs := []string{s.cfg.Target}
	if s.mux.HaveDeviceWithAddress(addrs) {
		s.logger.Debug("device already registered, skipping connect", "target", s.cfg.Target)
		return nil
	}

	serviceName := "direct-" + s.cfg.Target
	s.logger.Info("connecting to device",
		"target", s.cfg.Target,
		"service", serviceName,
	)
	s.emitter.Emit(events.Event{
		Kind:        events.KindConnectAttempt,
		Serial:      device.TruncateSerial(s.cfg.PairRecordID),
		Target:      s.cfg.Target,
		Addresses:   addrs,
		ServiceName: serviceName,
		At:          time.Now(),
	})

	dev := NewDevice(DeviceConfig{
		Serial:         s.cfg.PairRecordID,
		Addresses:      addrs,
		ServiceName:    serviceName,
		InterfaceIndex: 0,
		ReceiveTimeout: s.cfg.ReceiveTimeout,
		ConnectTimeout: s.cfg.ConnectTimeout,
	}, DeviceDeps{
		Mux:       s.mux,
		Owner:     s,
		Transport: s.transport,
		Logger:    s.logger,
		Emitter:   s.emitter,
	})

	if err := s.addDevice(dev); err != nil {
		return err
	}

	// The reaper removes the child before clearing connected, so storing
	// first and then checking the child leaves connected false whenever the
	// device died during or right after registration.
	s.connected.Store(true)
	if !s.HasChild(dev) {
		s.connected.Store(false)
		s.logger.Warn("device died during registration",
			"target", s.cfg.Target,
			"serial", dev.Serial(),
		)
		return nil
	}
	s.logger.Info("connected to device",
		"target", s.cfg.Target,
		"serial", dev.Serial(),
	)
	return nil
}

// addDevice arms the device, records it as a child and registers it with
// the multiplexer, rolling the child back if registration fails.
func (s *DirectSupervisor) addDevice(dev *Device) error {
	dev.AttachSelf()
	s.AddChild(dev)

	if err := s.mux.AddDevice(dev, true); err != nil {
		dev.detachSelf()
		s.RemoveChild(dev)
		return fmt.Errorf("registering device %s: %w", dev.Serial(), err)
	}
	return nil
}

// AcceptDyingChild queues dev for teardown on the reaper.
func (s *DirectSupervisor) AcceptDyingChild(dev *Device) {
	if err := s.reap.Post(dev); err != nil {
		s.logger.Error("reaper closed, dropping dying device",
			"target", s.cfg.Target,
			"serial", dev.Serial(),
			"error", err,
		)
	}
}

// reaperLoop tears down dying devices until the queue is closed and drained.
func (s *DirectSupervisor) reaperLoop() {
	defer s.reaperWG.Done()

	for {
		dev, err := s.reap.Wait()
		if err != nil {
			s.logger.Debug("reaper exiting", "target", s.cfg.Target)
			return
		}
		s.reapOne(dev)
	}
}

func (s *DirectSupervisor) reapOne(dev *Device) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while reaping device",
				"serial", dev.Serial(),
				"panic", r,
			)
		}
	}()

	s.RemoveChild(dev)
	s.connected.Store(false)

	dev.deconstruct()

	s.logger.Info("device disconnected",
		"target", s.cfg.Target,
		"serial", dev.Serial(),
	)
}

// Close shuts the supervisor down: the reconnect loop first, then every
// child through the reaper, then the reaper itself. Blocks until done. Safe
// to call multiple times.
func (s *DirectSupervisor) Close() {
	s.shutdown.Do(func() {
		s.logger.Debug("direct supervisor stopping", "target", s.cfg.Target)

		s.stopRequested.Store(true)
		s.loop.Stop()

		s.ShutdownChildren()

		s.reap.Kill()
		s.reaperWG.Wait()

		s.wakeMu.Lock()
		s.wakeClosed = true
		close(s.wake)
		s.wakeMu.Unlock()

		s.logger.Info("direct supervisor stopped", "target", s.cfg.Target)
	})
}

// ValidateTarget checks that target is a plain IPv4 or IPv6 literal of at
// most MaxTargetLength characters.
func ValidateTarget(target string) error {
	if target == "" || len(target) > MaxTargetLength {
		return fmt.Errorf("%w: empty or longer than %d characters (%d)",
			ErrInvalidAddress, MaxTargetLength, len(target))
	}

	addr, err := netip.ParseAddr(target)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidAddress, target, err)
	}
	if addr.Zone() != "" {
		return fmt.Errorf("%w: %q: zoned addresses are not supported", ErrInvalidAddress, target)
	}
	return nil
}
