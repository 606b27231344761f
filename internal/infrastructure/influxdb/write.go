package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementLifecycle = "netmuxd_lifecycle"
	MeasurementHeartbeat = "netmuxd_heartbeat"
)

// LifecyclePoint builds a point for one lifecycle transition. Empty tags
// are omitted to keep series cardinality low.
func LifecyclePoint(kind, serial, target, reason string, at time.Time) *write.Point {
	tags := map[string]string{"kind": kind}
	if serial != "" {
		tags["serial"] = serial
	}
	if target != "" {
		tags["target"] = target
	}
	fields := map[string]interface{}{"count": int64(1)}
	if reason != "" {
		fields["reason"] = reason
	}
	return write.NewPoint(MeasurementLifecycle, tags, fields, at)
}

// HeartbeatPoint builds a point for one completed liveness round.
func HeartbeatPoint(serial string, rounds uint64, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementHeartbeat,
		map[string]string{"serial": serial},
		map[string]interface{}{"rounds": rounds},
		at,
	)
}

// WriteLifecycle queues a lifecycle point.
func (c *Client) WriteLifecycle(kind, serial, target, reason string, at time.Time) {
	c.write(LifecyclePoint(kind, serial, target, reason, at))
}

// WriteHeartbeat queues a heartbeat point.
func (c *Client) WriteHeartbeat(serial string, rounds uint64, at time.Time) {
	c.write(HeartbeatPoint(serial, rounds, at))
}

func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}
