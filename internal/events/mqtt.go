package events

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/netmuxd/internal/infrastructure/mqtt"
)

// Publisher publishes retained state messages. Satisfied by *mqtt.Client.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
}

// Device and supervisor states published over MQTT.
const (
	StateAttached     = "attached"
	StateDetached     = "detached"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateDisconnected = "disconnected"
	StateFailed       = "failed"
)

// DeviceStatePayload is published on netmuxd/device/{serial}/state.
type DeviceStatePayload struct {
	Serial      string   `json:"serial"`
	State       string   `json:"state"`
	Addresses   []string `json:"addresses,omitempty"`
	ServiceName string   `json:"service_name,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

// SupervisorStatusPayload is published on netmuxd/supervisor/{target}/status.
type SupervisorStatusPayload struct {
	Target    string `json:"target"`
	State     string `json:"state"`
	Serial    string `json:"serial,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// MQTTPublisher mirrors device and supervisor state to retained MQTT
// topics. Heartbeat rounds are not published.
type MQTTPublisher struct {
	pub    Publisher
	logger Logger
}

// NewMQTTPublisher creates a sink publishing through pub.
func NewMQTTPublisher(pub Publisher, logger Logger) *MQTTPublisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTTPublisher{pub: pub, logger: logger}
}

// Handle publishes the state change carried by ev.
func (p *MQTTPublisher) Handle(ev Event) {
	ts := ev.At.UTC().Format(time.RFC3339)
	topics := mqtt.Topics{}

	switch ev.Kind {
	case KindDeviceAttached, KindDeviceDetached:
		state, supState := StateAttached, StateConnected
		if ev.Kind == KindDeviceDetached {
			state, supState = StateDetached, StateDisconnected
		}
		p.publish(topics.DeviceState(ev.Serial), DeviceStatePayload{
			Serial:      ev.Serial,
			State:       state,
			Addresses:   ev.Addresses,
			ServiceName: ev.ServiceName,
			Timestamp:   ts,
		})
		// A network device is reached through its addresses, each of
		// which is a supervisor target.
		for _, addr := range ev.Addresses {
			p.publish(topics.SupervisorStatus(addr), SupervisorStatusPayload{
				Target:    addr,
				State:     supState,
				Serial:    ev.Serial,
				Timestamp: ts,
			})
		}

	case KindConnectAttempt, KindConnectFailed:
		state := StateConnecting
		if ev.Kind == KindConnectFailed {
			state = StateFailed
		}
		p.publish(topics.SupervisorStatus(ev.Target), SupervisorStatusPayload{
			Target:    ev.Target,
			State:     state,
			Serial:    ev.Serial,
			Reason:    ev.Reason,
			Timestamp: ts,
		})
	}
}

func (p *MQTTPublisher) publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal mqtt payload", "topic", topic, "error", err)
		return
	}
	if err := p.pub.PublishRetained(topic, data); err != nil {
		p.logger.Warn("failed to publish state", "topic", topic, "error", err)
	}
}
