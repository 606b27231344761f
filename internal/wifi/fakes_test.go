package wifi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/netmuxd/internal/device"
	"github.com/nerrad567/netmuxd/internal/heartbeat"
)

// fakeMux is an in-memory Multiplexer that registers and then starts devices
// like the real one.
type fakeMux struct {
	mu       sync.Mutex
	devices  map[string]device.Device
	existing []string // addresses reported as registered elsewhere
	adds     int
	deletes  map[string]int
}

func newFakeMux() *fakeMux {
	return &fakeMux{
		devices: make(map[string]device.Device),
		deletes: make(map[string]int),
	}
}

func (m *fakeMux) AddDevice(dev device.Device, _ bool) error {
	m.mu.Lock()
	if _, ok := m.devices[dev.Serial()]; ok {
		m.mu.Unlock()
		return fmt.Errorf("duplicate device %s", dev.Serial())
	}
	m.devices[dev.Serial()] = dev
	m.adds++
	m.mu.Unlock()

	if err := dev.Start(); err != nil {
		m.mu.Lock()
		if cur, ok := m.devices[dev.Serial()]; ok && cur == dev {
			delete(m.devices, dev.Serial())
		}
		m.adds--
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *fakeMux) DeleteDevice(dev device.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.devices[dev.Serial()]; ok && cur == dev {
		delete(m.devices, dev.Serial())
	}
	m.deletes[dev.Serial()]++
}

func (m *fakeMux) HaveDeviceWithAddress(addrs []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range addrs {
		if slices.Contains(m.existing, a) {
			return true
		}
	}
	for _, dev := range m.devices {
		if ad, ok := dev.(device.Addressed); ok {
			for _, a := range ad.Addresses() {
				if slices.Contains(addrs, a) {
					return true
				}
			}
		}
	}
	return false
}

func (m *fakeMux) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.devices)
}

func (m *fakeMux) addCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adds
}

func (m *fakeMux) deleteCount(serial string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes[serial]
}

// fakeSession answers Receive with a ping every interval until a failure is
// injected or it is closed.
type fakeSession struct {
	interval time.Duration
	fail     chan error
	closed   chan struct{}
	once     sync.Once
	sends    atomic.Int32
	sendErr  error
}

func newFakeSession(interval time.Duration) *fakeSession {
	return &fakeSession{
		interval: interval,
		fail:     make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (s *fakeSession) Receive(timeout time.Duration) (heartbeat.Message, error) {
	wait := timeout
	ping := s.interval > 0 && s.interval < timeout
	if ping {
		wait = s.interval
	}

	select {
	case err := <-s.fail:
		return heartbeat.Message{}, err
	case <-s.closed:
		return heartbeat.Message{}, heartbeat.ErrSessionClosed
	case <-time.After(wait):
		if !ping {
			return heartbeat.Message{}, heartbeat.ErrTimeout
		}
		return heartbeat.Marco(1), nil
	}
}

func (s *fakeSession) Send(heartbeat.Message) error {
	s.sends.Add(1)
	return s.sendErr
}

func (s *fakeSession) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// fakeTransport hands out fakeSessions, failing the first failFirst calls.
type fakeTransport struct {
	mu        sync.Mutex
	interval  time.Duration
	failFirst int
	sendErr   error
	calls     int
	sessions  []*fakeSession

	// dieOnArrival makes every new session fail its first Receive.
	dieOnArrival atomic.Bool
}

func (t *fakeTransport) Establish(_ context.Context, _ string, _ []string) (heartbeat.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.calls <= t.failFirst {
		return nil, errors.New("connection refused")
	}
	s := newFakeSession(t.interval)
	s.sendErr = t.sendErr
	if t.dieOnArrival.Load() {
		s.fail <- errors.New("connection reset by peer")
	}
	t.sessions = append(t.sessions, s)
	return s, nil
}

func (t *fakeTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func (t *fakeTransport) lastSession() *fakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sessions) == 0 {
		return nil
	}
	return t.sessions[len(t.sessions)-1]
}
