// Package events carries device and supervisor lifecycle events out of the
// supervision core.
//
// Producers (muxer, wifi supervisors and devices) hold an Emitter. The
// daemon wires them to a Bus, which fans each event out to sinks on their
// own goroutines:
//
//	muxer ─┐                 ┌─► MQTTPublisher   (retained state topics)
//	wifi  ─┼─► Bus.Emit ─────┼─► MetricsWriter   (InfluxDB points)
//	       │   (non-blocking)├─► HistoryRecorder (SQLite sessions)
//	       │                 └─► API WebSocket hub
//
// Emit never blocks and a sink never runs on the emitting goroutine, so a
// slow broker or database cannot stall a supervisor, and a sink cannot
// re-enter one.
package events
