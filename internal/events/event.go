package events

import "time"

// Kind identifies a lifecycle event.
type Kind string

const (
	KindDeviceAttached Kind = "device_attached"
	KindDeviceDetached Kind = "device_detached"
	KindConnectAttempt Kind = "connect_attempt"
	KindConnectFailed  Kind = "connect_failed"
	KindHeartbeatRound Kind = "heartbeat_round"
)

// Event describes one change in a device or supervisor lifecycle.
type Event struct {
	Kind        Kind      `json:"kind"`
	Serial      string    `json:"serial,omitempty"`
	Target      string    `json:"target,omitempty"`
	Addresses   []string  `json:"addresses,omitempty"`
	ServiceName string    `json:"service_name,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Rounds      uint64    `json:"rounds,omitempty"`
	At          time.Time `json:"at"`
}

// Emitter accepts lifecycle events. Emit must not block for long and must
// never call back into the component that emitted the event.
type Emitter interface {
	Emit(ev Event)
}

// Discard is an Emitter that drops every event.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Event) {}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

// Emit calls f(ev).
func (f EmitterFunc) Emit(ev Event) { f(ev) }
