package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_NotifyAdvancesGeneration(t *testing.T) {
	ev := NewEvent()
	assert.Equal(t, uint64(0), ev.Generation())

	ev.NotifyAll()
	ev.NotifyAll()
	assert.Equal(t, uint64(2), ev.Generation())
}

func TestEvent_WaitReturnsImmediatelyOnStaleSnapshot(t *testing.T) {
	ev := NewEvent()
	g := ev.Generation()

	// Notification lands between snapshot and wait.
	ev.NotifyAll()

	done := make(chan uint64, 1)
	go func() { done <- ev.WaitForGeneration(g) }()

	select {
	case got := <-done:
		assert.Equal(t, g+1, got)
	case <-time.After(time.Second):
		t.Fatal("wait with stale generation should not block")
	}
}

func TestEvent_WaitBlocksUntilNotify(t *testing.T) {
	ev := NewEvent()
	g := ev.Generation()

	done := make(chan struct{})
	go func() {
		ev.WaitForGeneration(g)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("wait returned before notify")
	case <-time.After(20 * time.Millisecond):
	}

	ev.NotifyAll()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not return after notify")
	}
}

func TestEvent_NotifyWakesAllWaiters(t *testing.T) {
	ev := NewEvent()
	g := ev.Generation()

	const waiters = 8
	var wg sync.WaitGroup
	wg.Add(waiters)
	for range waiters {
		go func() {
			defer wg.Done()
			ev.WaitForGeneration(g)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	ev.NotifyAll()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all waiters woke")
	}
}

func TestEvent_WaitContextCancelled(t *testing.T) {
	ev := NewEvent()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	got, err := ev.WaitForGenerationContext(ctx, ev.Generation())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uint64(0), got)
}

func TestEvent_ZeroValueUsable(t *testing.T) {
	var ev Event
	g := ev.Generation()
	go ev.NotifyAll()
	assert.Equal(t, g+1, ev.WaitForGeneration(g))
}
