package muxer

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/netmuxd/internal/device"
	"github.com/nerrad567/netmuxd/internal/events"
)

type stubDevice struct {
	device.Base
	addrs    []string
	startErr error
	started  int
	gate     chan struct{} // when set, Start blocks until closed
	onStart  func()        // when set, runs inside Start
}

func newStub(serial string, addrs ...string) *stubDevice {
	return &stubDevice{Base: device.NewBase(serial, device.ConnKindNetwork), addrs: addrs}
}

func (s *stubDevice) Start() error {
	if s.gate != nil {
		<-s.gate
	}
	s.started++
	if s.onStart != nil {
		s.onStart()
	}
	return s.startErr
}
func (s *stubDevice) Kill()                                         {}
func (s *stubDevice) Addresses() []string                           { return s.addrs }
func (s *stubDevice) ServiceName() string                           { return "direct-" + s.addrs[0] }
func (s *stubDevice) StartConnect(uint16, io.ReadWriteCloser) error { return device.ErrUnsupported }

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Emit(ev events.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) kinds() []events.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Kind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

func TestMuxer_AddDelete(t *testing.T) {
	log := &eventLog{}
	m := New(log)

	dev := newStub("A", "10.0.0.1")
	require.NoError(t, m.AddDevice(dev, true))

	assert.Equal(t, 1, dev.started)
	assert.Equal(t, 1, m.Count())
	assert.True(t, m.HaveDeviceWithAddress([]string{"10.0.0.1"}))
	assert.False(t, m.HaveDeviceWithAddress([]string{"10.0.0.2"}))

	got, ok := m.Device("A")
	require.True(t, ok)
	assert.Same(t, dev, got)

	infos := m.Devices()
	require.Len(t, infos, 1)
	assert.Equal(t, "A", infos[0].Serial)
	assert.Equal(t, device.ConnKindNetwork, infos[0].Kind)
	assert.Equal(t, "direct-10.0.0.1", infos[0].ServiceName)
	assert.Equal(t, uint32(1), infos[0].ID)

	m.DeleteDevice(dev)
	assert.Equal(t, 0, m.Count())
	assert.False(t, m.HaveDeviceWithAddress([]string{"10.0.0.1"}))

	assert.Equal(t, []events.Kind{events.KindDeviceAttached, events.KindDeviceDetached}, log.kinds())
}

func TestMuxer_AddWithoutNotify(t *testing.T) {
	log := &eventLog{}
	m := New(log)

	require.NoError(t, m.AddDevice(newStub("A", "10.0.0.1"), false))
	assert.Empty(t, log.kinds())
}

func TestMuxer_RejectsDuplicateSerial(t *testing.T) {
	m := New(nil)

	require.NoError(t, m.AddDevice(newStub("A", "10.0.0.1"), true))

	dup := newStub("A", "10.0.0.2")
	err := m.AddDevice(dup, true)
	require.ErrorIs(t, err, ErrDuplicateDevice)
	assert.Equal(t, 0, dup.started, "rejected device is never started")
	assert.Equal(t, 1, m.Count())
}

func TestMuxer_StartFailureRegistersNothing(t *testing.T) {
	log := &eventLog{}
	m := New(log)

	dev := newStub("A", "10.0.0.1")
	dev.startErr = errors.New("no heartbeat")

	err := m.AddDevice(dev, true)
	require.ErrorIs(t, err, ErrStartFailed)
	assert.ErrorIs(t, err, dev.startErr)
	assert.Equal(t, 0, m.Count())
	assert.Empty(t, log.kinds())

	// The serial is free again.
	dev.startErr = nil
	require.NoError(t, m.AddDevice(dev, true))
}

func TestMuxer_ConcurrentAddSameSerial(t *testing.T) {
	m := New(nil)

	first := newStub("A", "10.0.0.1")
	first.gate = make(chan struct{})

	errs := make(chan error, 1)
	go func() { errs <- m.AddDevice(first, true) }()

	// Wait for the first add to be mid-start.
	require.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		e, ok := m.devices["A"]
		return ok && e.starting
	}, time.Second, time.Millisecond)

	err := m.AddDevice(newStub("A", "10.0.0.1"), true)
	assert.ErrorIs(t, err, ErrDuplicateDevice)

	close(first.gate)
	require.NoError(t, <-errs)
	assert.Equal(t, 1, m.Count())
}

func TestMuxer_DeleteIgnoresStrangers(t *testing.T) {
	log := &eventLog{}
	m := New(log)

	registered := newStub("A", "10.0.0.1")
	require.NoError(t, m.AddDevice(registered, false))

	// Same serial, different device: not the registered one.
	m.DeleteDevice(newStub("A", "10.0.0.1"))
	m.DeleteDevice(newStub("B", "10.0.0.2"))
	m.DeleteDevice(nil)

	assert.Equal(t, 1, m.Count())
	assert.Empty(t, log.kinds())
}

func TestMuxer_AddNil(t *testing.T) {
	m := New(nil)
	assert.ErrorIs(t, m.AddDevice(nil, true), ErrNilDevice)
}

func TestMuxer_DevicesOrderedByID(t *testing.T) {
	m := New(nil)
	for _, s := range []string{"C", "A", "B"} {
		require.NoError(t, m.AddDevice(newStub(s, "10.0.0."+s), false))
	}

	infos := m.Devices()
	require.Len(t, infos, 3)
	assert.Equal(t, "C", infos[0].Serial)
	assert.Equal(t, "A", infos[1].Serial)
	assert.Equal(t, "B", infos[2].Serial)
}

func TestMuxer_DeleteWhileStartingRemovesEntry(t *testing.T) {
	log := &eventLog{}
	m := New(log)

	// A device whose heartbeat dies before Start returns is deleted by its
	// reaper from inside Start.
	dev := newStub("A", "10.0.0.1")
	dev.onStart = func() { m.DeleteDevice(dev) }

	require.NoError(t, m.AddDevice(dev, true))

	assert.Equal(t, 0, m.Count())
	assert.False(t, m.HaveDeviceWithAddress([]string{"10.0.0.1"}))
	_, ok := m.Device("A")
	assert.False(t, ok)
	assert.Empty(t, log.kinds(), "no attach or detach for a device that never attached")

	// The serial is free again.
	dev.onStart = nil
	require.NoError(t, m.AddDevice(dev, true))
	assert.Equal(t, 1, m.Count())
}

func TestMuxer_StartingDeviceNotListed(t *testing.T) {
	m := New(nil)

	dev := newStub("A", "10.0.0.1")
	dev.gate = make(chan struct{})

	errs := make(chan error, 1)
	go func() { errs <- m.AddDevice(dev, false) }()

	require.Eventually(t, func() bool {
		return m.HaveDeviceWithAddress([]string{"10.0.0.1"})
	}, time.Second, time.Millisecond)
	assert.Equal(t, 0, m.Count())
	assert.Empty(t, m.Devices())

	close(dev.gate)
	require.NoError(t, <-errs)
	assert.Equal(t, 1, m.Count())
}

func TestMuxer_FailedStartAfterDeleteLeavesNothing(t *testing.T) {
	log := &eventLog{}
	m := New(log)

	dev := newStub("A", "10.0.0.1")
	dev.startErr = errors.New("session refused")
	dev.onStart = func() { m.DeleteDevice(dev) }

	require.ErrorIs(t, m.AddDevice(dev, true), ErrStartFailed)
	assert.Equal(t, 0, m.Count())
	assert.Empty(t, log.kinds())
}
