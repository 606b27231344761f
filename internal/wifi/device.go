package wifi

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/netmuxd/internal/device"
	"github.com/nerrad567/netmuxd/internal/events"
	"github.com/nerrad567/netmuxd/internal/heartbeat"
	"github.com/nerrad567/netmuxd/internal/lifecycle"
)

// Default heartbeat timings.
const (
	DefaultReceiveTimeout = 15 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// DeviceConfig describes one network-attached peer.
type DeviceConfig struct {
	// Serial identifies the device. Truncated to device.MaxSerialLength.
	Serial string

	// Addresses the peer is reachable at.
	Addresses []string

	ServiceName    string
	InterfaceIndex int

	// ReceiveTimeout bounds the wait for each ping.
	ReceiveTimeout time.Duration

	// ConnectTimeout bounds session establishment in Start.
	ConnectTimeout time.Duration
}

// DeviceDeps are the collaborators of a Device.
type DeviceDeps struct {
	Mux       Multiplexer
	Owner     Reaper
	Transport heartbeat.Transport
	Logger    Logger
	Emitter   events.Emitter
}

// Device is a network-attached peer kept alive by a heartbeat exchange.
//
// Lifecycle: NewDevice, AttachSelf by the first strong owner, Start (called
// by the multiplexer when registered), then eventually Kill from any
// goroutine. Teardown runs on the owner's reaper.
type Device struct {
	device.Base

	mux       Multiplexer
	owner     Reaper
	transport heartbeat.Transport
	logger    Logger
	emitter   events.Emitter

	addresses      []string
	serviceName    string
	interfaceIndex int
	receiveTimeout time.Duration
	connectTimeout time.Duration

	sessMu  sync.Mutex
	session heartbeat.Session

	loop *lifecycle.Loop

	// self is the keep-alive handle Kill passes to the reaper. It is set by
	// AttachSelf and taken at most once.
	self atomic.Pointer[Device]

	rounds    atomic.Uint64
	lastRound atomic.Int64 // Unix nanoseconds
}

// NewDevice creates a device. It does not connect; see Start.
func NewDevice(cfg DeviceConfig, deps DeviceDeps) *Device {
	if cfg.ReceiveTimeout == 0 {
		cfg.ReceiveTimeout = DefaultReceiveTimeout
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Emitter == nil {
		deps.Emitter = events.Discard
	}

	d := &Device{
		Base:           device.NewBase(cfg.Serial, device.ConnKindNetwork),
		mux:            deps.Mux,
		owner:          deps.Owner,
		transport:      deps.Transport,
		logger:         deps.Logger,
		emitter:        deps.Emitter,
		addresses:      slices.Clone(cfg.Addresses),
		serviceName:    cfg.ServiceName,
		interfaceIndex: cfg.InterfaceIndex,
		receiveTimeout: cfg.ReceiveTimeout,
		connectTimeout: cfg.ConnectTimeout,
	}
	d.loop = lifecycle.NewLoop("wifi-device "+d.Serial(), d)
	d.loop.SetLogger(deps.Logger)
	return d
}

// AttachSelf arms the keep-alive handle. Called once by whichever owner
// holds the device first; until then Kill is a no-op.
func (d *Device) AttachSelf() {
	d.self.CompareAndSwap(nil, d)
}

// detachSelf disarms the handle after a failed registration.
func (d *Device) detachSelf() {
	d.self.Store(nil)
}

// Addresses returns the peer's network addresses.
func (d *Device) Addresses() []string {
	return slices.Clone(d.addresses)
}

// ServiceName returns the service the device was found under.
func (d *Device) ServiceName() string { return d.serviceName }

// InterfaceIndex returns the local interface the device is reached through.
func (d *Device) InterfaceIndex() int { return d.interfaceIndex }

// Rounds returns the number of completed heartbeat rounds.
func (d *Device) Rounds() uint64 { return d.rounds.Load() }

// LastRound returns the time of the last completed heartbeat round.
func (d *Device) LastRound() time.Time {
	ns := d.lastRound.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// LoopStatus returns the state of the heartbeat loop.
func (d *Device) LoopStatus() lifecycle.Status { return d.loop.Status() }

// Start establishes the heartbeat session and starts the heartbeat loop.
func (d *Device) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.connectTimeout)
	defer cancel()

	sess, err := d.transport.Establish(ctx, d.Serial(), d.addresses)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSessionFailed, d.Serial(), err)
	}

	d.sessMu.Lock()
	d.session = sess
	d.sessMu.Unlock()

	if err := d.loop.Start(); err != nil {
		d.closeSession()
		return err
	}
	return nil
}

// StartConnect is not available for network devices.
func (d *Device) StartConnect(port uint16, _ io.ReadWriteCloser) error {
	return fmt.Errorf("%w: legacy connection proxying to port %d", device.ErrUnsupported, port)
}

// BeforeLoop implements lifecycle.Entity.
func (d *Device) BeforeLoop() error {
	if d.currentSession() == nil {
		return ErrNoSession
	}
	return nil
}

// LoopEvent performs one heartbeat round. Any failure ends the loop.
func (d *Device) LoopEvent() (bool, error) {
	sess := d.currentSession()
	if sess == nil {
		return false, ErrNoSession
	}

	if _, err := sess.Receive(d.receiveTimeout); err != nil {
		d.logger.Warn("lost connection to device",
			"serial", d.Serial(),
			"error", err,
		)
		return false, fmt.Errorf("receive heartbeat: %w", err)
	}
	if err := sess.Send(heartbeat.Polo()); err != nil {
		d.logger.Warn("failed to answer heartbeat",
			"serial", d.Serial(),
			"error", err,
		)
		return false, fmt.Errorf("send heartbeat: %w", err)
	}

	n := d.rounds.Add(1)
	d.lastRound.Store(time.Now().UnixNano())
	d.emitter.Emit(events.Event{
		Kind:      events.KindHeartbeatRound,
		Serial:    d.Serial(),
		Addresses: d.Addresses(),
		Rounds:    n,
		At:        time.Now(),
	})
	return true, nil
}

// AfterLoop hands the device to the reaper whatever ended the loop.
func (d *Device) AfterLoop() {
	d.Kill()
}

// StopAction does nothing: an in-flight round is bounded by the receive
// timeout and the stop is observed at the next iteration.
func (d *Device) StopAction() {}

// Kill hands the device to its owner's reaper. Safe from any goroutine,
// including the heartbeat loop. Only the first call after AttachSelf has an
// effect; it never panics.
func (d *Device) Kill() {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while killing device", "serial", d.Serial(), "panic", r)
		}
	}()

	self := d.self.Swap(nil)
	if self == nil {
		d.logger.Debug("device already dying", "serial", d.Serial())
		return
	}
	if d.owner == nil {
		d.logger.Debug("device has no reaper", "serial", d.Serial())
		return
	}

	d.logger.Debug("killing device", "serial", d.Serial())
	d.owner.AcceptDyingChild(self)
}

// deconstruct stops the heartbeat loop and removes the device from the
// multiplexer. It blocks until the loop has exited, so it must only run on
// the reaper goroutine.
func (d *Device) deconstruct() {
	d.logger.Debug("deconstructing device", "serial", d.Serial())

	d.loop.Stop()
	d.closeSession()
	if d.mux != nil {
		d.mux.DeleteDevice(d)
	}
}

func (d *Device) currentSession() heartbeat.Session {
	d.sessMu.Lock()
	defer d.sessMu.Unlock()
	return d.session
}

func (d *Device) closeSession() {
	d.sessMu.Lock()
	sess := d.session
	d.session = nil
	d.sessMu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			d.logger.Debug("closing heartbeat session", "serial", d.Serial(), "error", err)
		}
	}
}
