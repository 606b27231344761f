package muxer

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/netmuxd/internal/device"
	"github.com/nerrad567/netmuxd/internal/events"
)

// Logger defines the logging interface used by the Muxer.
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

// Info is a snapshot of one registered device.
type Info struct {
	ID          uint32          `json:"id"`
	Serial      string          `json:"serial"`
	Kind        device.ConnKind `json:"kind"`
	Addresses   []string        `json:"addresses,omitempty"`
	ServiceName string          `json:"service_name,omitempty"`
	AttachedAt  time.Time       `json:"attached_at"`
}

// serviceNamer is implemented by devices discovered under a service name.
type serviceNamer interface {
	ServiceName() string
}

type entry struct {
	dev  device.Device
	info Info
	// starting is set while dev.Start runs. Such an entry blocks the serial
	// and its addresses but is not listed.
	starting bool
}

// Muxer is the registered-device table.
//
// All public methods are thread-safe.
type Muxer struct {
	mu      sync.RWMutex
	devices map[string]*entry // by serial
	nextID  uint32

	emitter events.Emitter
	logger  Logger
}

// New creates an empty table.
func New(emitter events.Emitter) *Muxer {
	if emitter == nil {
		emitter = events.Discard
	}
	return &Muxer{
		devices: make(map[string]*entry),
		emitter: emitter,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the table.
func (m *Muxer) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// AddDevice registers dev and starts it. The entry is in the table before
// Start runs, so a DeleteDevice issued while Start is in progress (a device
// that dies straight away) removes it. On a Start error the entry is
// withdrawn and nothing stays registered. When notify is set an attach
// event is emitted once Start succeeds.
func (m *Muxer) AddDevice(dev device.Device, notify bool) error {
	if dev == nil {
		return ErrNilDevice
	}
	serial := dev.Serial()

	info := Info{
		Serial: serial,
		Kind:   dev.Kind(),
	}
	if ad, ok := dev.(device.Addressed); ok {
		info.Addresses = ad.Addresses()
	}
	if sn, ok := dev.(serviceNamer); ok {
		info.ServiceName = sn.ServiceName()
	}

	m.mu.Lock()
	if _, ok := m.devices[serial]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateDevice, serial)
	}
	m.nextID++
	info.ID = m.nextID
	e := &entry{dev: dev, info: info, starting: true}
	m.devices[serial] = e
	m.mu.Unlock()

	err := dev.Start()

	m.mu.Lock()
	current, present := m.devices[serial]
	present = present && current == e
	if err != nil {
		if present {
			delete(m.devices, serial)
		}
		m.mu.Unlock()
		m.logger.Warn("device failed to start", "serial", serial, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrStartFailed, serial, err)
	}
	if !present {
		m.mu.Unlock()
		m.logger.Info("device went away while starting", "serial", serial, "id", info.ID)
		return nil
	}
	e.starting = false
	e.info.AttachedAt = time.Now()
	info = e.info
	count := m.countLocked()
	m.mu.Unlock()

	m.logger.Info("device attached",
		"serial", serial,
		"id", info.ID,
		"kind", info.Kind,
		"devices", count,
	)
	if notify {
		m.emitter.Emit(events.Event{
			Kind:        events.KindDeviceAttached,
			Serial:      serial,
			Addresses:   slices.Clone(info.Addresses),
			ServiceName: info.ServiceName,
			At:          info.AttachedAt,
		})
	}
	return nil
}

// DeleteDevice removes dev if it is the registered device for its serial,
// including one whose Start has not returned yet. It always succeeds. A
// detach event is emitted only for devices that finished attaching.
func (m *Muxer) DeleteDevice(dev device.Device) {
	if dev == nil {
		return
	}
	serial := dev.Serial()

	m.mu.Lock()
	e, ok := m.devices[serial]
	if !ok || e.dev != dev {
		m.mu.Unlock()
		m.logger.Debug("delete of unregistered device ignored", "serial", serial)
		return
	}
	delete(m.devices, serial)
	count := m.countLocked()
	m.mu.Unlock()

	if e.starting {
		m.logger.Info("device removed while starting", "serial", serial, "id", e.info.ID)
		return
	}

	m.logger.Info("device detached", "serial", serial, "id", e.info.ID, "devices", count)
	m.emitter.Emit(events.Event{
		Kind:        events.KindDeviceDetached,
		Serial:      serial,
		Addresses:   slices.Clone(e.info.Addresses),
		ServiceName: e.info.ServiceName,
		At:          time.Now(),
	})
}

// HaveDeviceWithAddress reports whether any registered or starting device
// shares an address with addrs.
func (m *Muxer) HaveDeviceWithAddress(addrs []string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.devices {
		for _, a := range e.info.Addresses {
			if slices.Contains(addrs, a) {
				return true
			}
		}
	}
	return false
}

// Device returns the registered device for serial.
func (m *Muxer) Device(serial string) (device.Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.devices[serial]
	if !ok || e.starting {
		return nil, false
	}
	return e.dev, true
}

// Devices returns snapshots of all registered devices ordered by ID.
func (m *Muxer) Devices() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.devices))
	for _, e := range m.devices {
		if e.starting {
			continue
		}
		info := e.info
		info.Addresses = slices.Clone(e.info.Addresses)
		out = append(out, info)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered devices.
func (m *Muxer) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countLocked()
}

func (m *Muxer) countLocked() int {
	n := 0
	for _, e := range m.devices {
		if !e.starting {
			n++
		}
	}
	return n
}
