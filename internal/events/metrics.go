package events

import "time"

// MetricsSink receives lifecycle metrics. Satisfied by *influxdb.Client.
type MetricsSink interface {
	WriteLifecycle(kind, serial, target, reason string, at time.Time)
	WriteHeartbeat(serial string, rounds uint64, at time.Time)
}

// MetricsWriter turns events into time-series points.
type MetricsWriter struct {
	sink MetricsSink
}

// NewMetricsWriter creates a sink writing to m.
func NewMetricsWriter(m MetricsSink) *MetricsWriter {
	return &MetricsWriter{sink: m}
}

// Handle writes one point for ev.
func (w *MetricsWriter) Handle(ev Event) {
	if ev.Kind == KindHeartbeatRound {
		w.sink.WriteHeartbeat(ev.Serial, ev.Rounds, ev.At)
		return
	}
	w.sink.WriteLifecycle(string(ev.Kind), ev.Serial, ev.Target, ev.Reason, ev.At)
}
