// Package influxdb writes netmuxd lifecycle metrics to InfluxDB v2.
//
// Two measurements are written:
//
//	netmuxd_lifecycle  tags: kind, serial, target   fields: count, reason
//	netmuxd_heartbeat  tags: serial                 fields: rounds
//
// Writes are batched and non-blocking. InfluxDB is optional; Connect
// returns ErrDisabled when influxdb.enabled is false.
package influxdb
