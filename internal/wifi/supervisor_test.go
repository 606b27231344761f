package wifi

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/netmuxd/internal/events"
	"github.com/nerrad567/netmuxd/internal/lifecycle"
	"github.com/nerrad567/netmuxd/internal/muxer"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestSupervisor(t *testing.T, target string, mux Multiplexer, tr *fakeTransport, poll time.Duration) *DirectSupervisor {
	t.Helper()
	s := NewDirectSupervisor(SupervisorConfig{
		Target:         target,
		PairRecordID:   "00008030-000A1B2C3D4E5F60",
		PollInterval:   poll,
		ReceiveTimeout: time.Second,
		ConnectTimeout: time.Second,
	}, Deps{Mux: mux, Transport: tr})
	t.Cleanup(s.Close)
	return s
}

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		wantErr bool
	}{
		{"ipv4", "127.0.0.1", false},
		{"ipv4 private", "192.168.1.20", false},
		{"ipv6 loopback", "::1", false},
		{"ipv6 full", "2001:0db8:0000:0000:0000:ff00:0042:8329", false},
		{"ipv4 mapped", "::ffff:192.168.1.20", false},
		{"empty", "", true},
		{"hostname", "not-an-ip", true},
		{"too long", strings.Repeat("1", 200), true},
		{"octet overflow", "999.999.999.999", true},
		{"short ipv4", "1.2.3", true},
		{"zoned ipv6", "fe80::1%eth0", true},
		{"with port", "127.0.0.1:62078", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTarget(tt.target)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAddress)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTryConnect_Connects(t *testing.T) {
	mux := newFakeMux()
	tr := &fakeTransport{interval: tick}
	s := newTestSupervisor(t, "127.0.0.1", mux, tr, time.Hour)

	require.NoError(t, s.tryConnect())

	assert.True(t, s.Connected())
	assert.Equal(t, 1, s.ChildCount())
	assert.Equal(t, 1, mux.count())

	dev, ok := s.Children()[0].(*Device)
	require.True(t, ok)
	assert.Equal(t, "direct-127.0.0.1", dev.ServiceName())
	assert.Equal(t, []string{"127.0.0.1"}, dev.Addresses())
	assert.Equal(t, 0, dev.InterfaceIndex())
	assert.Equal(t, "00008030-000A1B2C3D4E5F60", dev.Serial())
}

func TestTryConnect_RejectsInvalidTargets(t *testing.T) {
	targets := []string{"not-an-ip", "", strings.Repeat("a", 200), "999.999.999.999"}

	for _, target := range targets {
		t.Run(target, func(t *testing.T) {
			mux := newFakeMux()
			tr := &fakeTransport{interval: tick}
			s := newTestSupervisor(t, target, mux, tr, time.Hour)
			gen := s.Generation()

			err := s.tryConnect()
			require.ErrorIs(t, err, ErrInvalidAddress)

			assert.False(t, s.Connected())
			assert.Equal(t, 0, s.ChildCount())
			assert.Equal(t, gen, s.Generation(), "registry untouched")
			assert.Equal(t, 0, mux.addCount())
			assert.Equal(t, 0, tr.callCount())
		})
	}
}

func TestTryConnect_SkipsRegisteredAddress(t *testing.T) {
	mux := newFakeMux()
	mux.existing = []string{"127.0.0.1"}
	tr := &fakeTransport{interval: tick}
	s := newTestSupervisor(t, "127.0.0.1", mux, tr, time.Hour)

	require.NoError(t, s.tryConnect())

	assert.False(t, s.Connected())
	assert.Equal(t, 0, s.ChildCount())
	assert.Equal(t, 0, mux.addCount())
	assert.Equal(t, 0, tr.callCount(), "no device created")
}

func TestTryConnect_RollsBackFailedRegistration(t *testing.T) {
	mux := newFakeMux()
	tr := &fakeTransport{interval: tick, failFirst: 1}
	s := newTestSupervisor(t, "127.0.0.1", mux, tr, time.Hour)

	err := s.tryConnect()
	require.ErrorIs(t, err, ErrSessionFailed)

	assert.False(t, s.Connected())
	assert.Equal(t, 0, s.ChildCount())
	assert.Equal(t, 0, mux.count())

	// Next cycle succeeds.
	require.NoError(t, s.tryConnect())
	assert.True(t, s.Connected())
	assert.Equal(t, 1, s.ChildCount())
}

func TestTryConnect_RefusedAfterStop(t *testing.T) {
	mux := newFakeMux()
	tr := &fakeTransport{interval: tick}
	s := newTestSupervisor(t, "127.0.0.1", mux, tr, time.Hour)

	s.Close()

	assert.ErrorIs(t, s.tryConnect(), ErrStopping)
	assert.Equal(t, 0, s.ChildCount())
}

func TestSupervisor_FirstIterationConnects(t *testing.T) {
	mux := newFakeMux()
	tr := &fakeTransport{interval: tick}
	s := newTestSupervisor(t, "127.0.0.1", mux, tr, time.Hour)

	require.NoError(t, s.Start())

	require.Eventually(t, s.Connected, waitFor, tick)
	assert.Equal(t, uint64(1), s.Status().Attempts)
	assert.Equal(t, lifecycle.StatusRunning, s.Status().Loop)
}

func TestSupervisor_FirstIterationAttemptsEvenWhenInvalid(t *testing.T) {
	mux := newFakeMux()
	tr := &fakeTransport{interval: tick}
	s := newTestSupervisor(t, "not-an-ip", mux, tr, time.Hour)

	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return s.Status().Attempts == 1 }, waitFor, tick)
	st := s.Status()
	assert.False(t, st.Connected)
	assert.Contains(t, st.LastError, "invalid target address")
	assert.Equal(t, lifecycle.StatusRunning, st.Loop, "invalid input is never fatal")
}

func TestSupervisor_WakeRetriesImmediately(t *testing.T) {
	mux := newFakeMux()
	tr := &fakeTransport{interval: tick, failFirst: 1}
	s := newTestSupervisor(t, "127.0.0.1", mux, tr, time.Hour)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return s.Status().Attempts == 1 }, waitFor, tick)
	assert.False(t, s.Connected())

	s.Wake()

	require.Eventually(t, s.Connected, waitFor, tick)
	assert.Equal(t, uint64(2), s.Status().Attempts)
}

func TestSupervisor_WakeWhileConnectedDoesNotReconnect(t *testing.T) {
	mux := newFakeMux()
	tr := &fakeTransport{interval: tick}
	s := newTestSupervisor(t, "127.0.0.1", mux, tr, time.Hour)

	require.NoError(t, s.Start())
	require.Eventually(t, s.Connected, waitFor, tick)

	s.Wake()
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, uint64(1), s.Status().Attempts)
	assert.Equal(t, 1, tr.callCount())
}

func TestSupervisor_PollRetries(t *testing.T) {
	mux := newFakeMux()
	tr := &fakeTransport{interval: tick, failFirst: 2}
	s := newTestSupervisor(t, "127.0.0.1", mux, tr, 20*time.Millisecond)

	require.NoError(t, s.Start())

	require.Eventually(t, s.Connected, waitFor, tick)
	assert.Equal(t, 3, tr.callCount())
}

func TestSupervisor_LivenessFailureIsReaped(t *testing.T) {
	mux := newFakeMux()
	tr := &fakeTransport{interval: tick}
	s := newTestSupervisor(t, "127.0.0.1", mux, tr, time.Hour)

	before := s.ChildCount()
	require.NoError(t, s.Start())
	require.Eventually(t, s.Connected, waitFor, tick)
	require.Equal(t, before+1, s.ChildCount())

	tr.lastSession().fail <- errors.New("heartbeat timeout")

	require.Eventually(t, func() bool {
		return !s.Connected() && s.ChildCount() == before && mux.count() == 0
	}, waitFor, tick)
	assert.Equal(t, 1, mux.deleteCount("00008030-000A1B2C3D4E5F60"))
	assert.True(t, tr.lastSession().isClosed())
}

func TestSupervisor_ReconnectsAfterDeath(t *testing.T) {
	mux := newFakeMux()
	tr := &fakeTransport{interval: tick}
	s := newTestSupervisor(t, "127.0.0.1", mux, tr, 20*time.Millisecond)

	require.NoError(t, s.Start())
	require.Eventually(t, s.Connected, waitFor, tick)

	tr.lastSession().fail <- errors.New("heartbeat timeout")

	require.Eventually(t, func() bool { return mux.addCount() == 2 && s.Connected() }, waitFor, tick)
	assert.Equal(t, 1, s.ChildCount())
}

func TestSupervisor_ConcurrentKillsDeconstructOnce(t *testing.T) {
	mux := newFakeMux()
	tr := &fakeTransport{interval: tick}
	s := newTestSupervisor(t, "127.0.0.1", mux, tr, time.Hour)

	require.NoError(t, s.tryConnect())
	dev := s.Children()[0].(*Device)

	// Kills from many goroutines, the device's own loop and registry
	// shutdown all race.
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dev.Kill()
		}()
	}
	tr.lastSession().fail <- errors.New("heartbeat timeout")
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.ShutdownChildren()
	}()
	wg.Wait()

	require.Eventually(t, func() bool { return dev.LoopStatus() == lifecycle.StatusStopped }, waitFor, tick)
	s.Close()

	assert.Equal(t, 1, mux.deleteCount(dev.Serial()))
	assert.Equal(t, 0, s.ChildCount())
	assert.Equal(t, 0, mux.count())
}

func TestSupervisor_CloseDrainsChildren(t *testing.T) {
	mux := newFakeMux()
	tr := &fakeTransport{interval: tick}
	s := newTestSupervisor(t, "127.0.0.1", mux, tr, time.Hour)

	require.NoError(t, s.Start())
	require.Eventually(t, s.Connected, waitFor, tick)
	dev := s.Children()[0].(*Device)

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Close did not return")
	}

	assert.Equal(t, 0, s.ChildCount())
	assert.Equal(t, 0, mux.count())
	assert.Equal(t, 1, mux.deleteCount(dev.Serial()), "deconstructed before Close returned")
	assert.Equal(t, lifecycle.StatusStopped, dev.LoopStatus())
	assert.False(t, s.Connected())
	assert.True(t, s.StopRequested())
	assert.Equal(t, lifecycle.StatusStopped, s.Status().Loop)

	// Closed supervisors ignore wakes and further closes.
	assert.NotPanics(t, s.Wake)
	assert.NotPanics(t, s.Close)
}

func TestSupervisor_CloseWithoutStart(t *testing.T) {
	mux := newFakeMux()
	tr := &fakeTransport{interval: tick}
	s := newTestSupervisor(t, "127.0.0.1", mux, tr, time.Hour)

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Close without Start did not return")
	}
	assert.ErrorIs(t, s.Start(), lifecycle.ErrAlreadyStarted)
}

func TestSupervisor_EmitsLifecycleEvents(t *testing.T) {
	var (
		mu    sync.Mutex
		kinds []events.Kind
	)
	emitter := events.EmitterFunc(func(ev events.Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})

	mux := newFakeMux()
	tr := &fakeTransport{interval: tick, failFirst: 1}
	s := NewDirectSupervisor(SupervisorConfig{
		Target:         "127.0.0.1",
		PairRecordID:   "serial",
		PollInterval:   time.Hour,
		ReceiveTimeout: time.Second,
	}, Deps{Mux: mux, Transport: tr, Emitter: emitter})
	defer s.Close()

	s.connect()
	s.connect()
	require.True(t, s.Connected())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, k := range kinds {
			if k == events.KindHeartbeatRound {
				return true
			}
		}
		return false
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, events.KindConnectAttempt, kinds[0])
	assert.Equal(t, events.KindConnectFailed, kinds[1])
	assert.Equal(t, events.KindConnectAttempt, kinds[2])
}

// settled reports whether a supervisor with no live device has fully
// converged: nothing registered, no child, not connected.
func settled(s *DirectSupervisor, registered func() int) func() bool {
	return func() bool {
		return registered() == 0 && s.ChildCount() == 0 && !s.Connected()
	}
}

func TestSupervisor_DeviceDyingDuringRegistration(t *testing.T) {
	mux := newFakeMux()
	tr := &fakeTransport{interval: tick}
	tr.dieOnArrival.Store(true)
	s := newTestSupervisor(t, "127.0.0.1", mux, tr, time.Hour)

	for range 200 {
		require.NoError(t, s.tryConnect())
		require.Eventually(t, settled(s, mux.count), waitFor, tick)
	}
	assert.Positive(t, tr.callCount())
	assert.Equal(t, tr.callCount(), mux.deleteCount("00008030-000A1B2C3D4E5F60"))
}

func TestSupervisor_DeviceDyingDuringRegistrationWithMuxer(t *testing.T) {
	mux := muxer.New(nil)
	tr := &fakeTransport{interval: tick}
	tr.dieOnArrival.Store(true)
	s := newTestSupervisor(t, "127.0.0.1", mux, tr, time.Hour)

	for range 200 {
		require.NoError(t, s.tryConnect())
		require.Eventually(t, func() bool {
			return settled(s, mux.Count)() && !mux.HaveDeviceWithAddress([]string{"127.0.0.1"})
		}, waitFor, tick)
	}
	assert.Empty(t, mux.Devices())
}

func TestSupervisor_WakeReconnectsAfterDeathDuringRegistration(t *testing.T) {
	mux := muxer.New(nil)
	tr := &fakeTransport{interval: tick}
	tr.dieOnArrival.Store(true)
	s := newTestSupervisor(t, "127.0.0.1", mux, tr, time.Hour)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return tr.callCount() == 1 }, waitFor, tick)
	require.Eventually(t, settled(s, mux.Count), waitFor, tick)

	tr.dieOnArrival.Store(false)
	s.Wake()

	require.Eventually(t, func() bool {
		return s.Connected() && mux.Count() == 1 && s.ChildCount() == 1
	}, waitFor, tick)
	assert.Equal(t, 2, tr.callCount())
}

func TestSupervisor_PollReconnectsAfterDeathDuringRegistration(t *testing.T) {
	mux := newFakeMux()
	tr := &fakeTransport{interval: tick}
	tr.dieOnArrival.Store(true)
	s := newTestSupervisor(t, "127.0.0.1", mux, tr, 20*time.Millisecond)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return tr.callCount() >= 3 }, waitFor, tick)

	tr.dieOnArrival.Store(false)
	require.Eventually(t, func() bool {
		return s.Connected() && mux.count() == 1 && s.ChildCount() == 1
	}, waitFor, tick)
}
