package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) Handle(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) serials() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Serial
	}
	return out
}

func TestBus_FanOutInOrder(t *testing.T) {
	bus := NewBus()
	a, b := &collector{}, &collector{}
	bus.Subscribe("a", a, 0)
	bus.Subscribe("b", b, 0)
	assert.Equal(t, 2, bus.SinkCount())

	for _, s := range []string{"1", "2", "3"} {
		bus.Emit(Event{Kind: KindDeviceAttached, Serial: s})
	}
	bus.Close()

	assert.Equal(t, []string{"1", "2", "3"}, a.serials())
	assert.Equal(t, []string{"1", "2", "3"}, b.serials())
}

func TestBus_EmitNeverBlocks(t *testing.T) {
	bus := NewBus()
	release := make(chan struct{})
	blocked := SinkFunc(func(Event) { <-release })
	fast := &collector{}

	bus.Subscribe("blocked", blocked, 1)
	bus.Subscribe("fast", fast, 100)

	done := make(chan struct{})
	go func() {
		for range 10 {
			bus.Emit(Event{Kind: KindHeartbeatRound})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a stuck sink")
	}

	require.Eventually(t, func() bool { return fast.len() == 10 }, time.Second, time.Millisecond)
	assert.NotZero(t, bus.Dropped()["blocked"])
	assert.Zero(t, bus.Dropped()["fast"])

	close(release)
	bus.Close()
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	c := &collector{}
	unsubscribe := bus.Subscribe("c", c, 0)

	bus.Emit(Event{Serial: "before"})
	unsubscribe()
	unsubscribe()
	bus.Emit(Event{Serial: "after"})

	assert.Equal(t, []string{"before"}, c.serials())
	assert.Zero(t, bus.SinkCount())
}

func TestBus_CloseDrainsAndStops(t *testing.T) {
	bus := NewBus()
	c := &collector{}
	bus.Subscribe("c", c, 10)

	for range 5 {
		bus.Emit(Event{})
	}
	bus.Close()
	assert.Equal(t, 5, c.len(), "queued events are delivered before Close returns")

	bus.Emit(Event{})
	bus.Close()
	assert.Equal(t, 5, c.len())

	late := &collector{}
	bus.Subscribe("late", late, 0)()
	assert.Zero(t, late.len())
}

func TestBus_SinkPanicIsContained(t *testing.T) {
	bus := NewBus()
	c := &collector{}
	bus.Subscribe("panicky", SinkFunc(func(ev Event) {
		if ev.Serial == "bad" {
			panic("boom")
		}
		c.Handle(ev)
	}), 0)

	bus.Emit(Event{Serial: "bad"})
	bus.Emit(Event{Serial: "good"})
	bus.Close()

	assert.Equal(t, []string{"good"}, c.serials())
}

func TestEmitterFunc(t *testing.T) {
	var got Event
	var e Emitter = EmitterFunc(func(ev Event) { got = ev })
	e.Emit(Event{Serial: "x"})
	assert.Equal(t, "x", got.Serial)

	Discard.Emit(Event{})
}
