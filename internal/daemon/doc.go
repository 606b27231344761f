// Package daemon owns one direct-connection supervisor per configured
// target and drives them as a group.
//
// Supervisors share a single muxer and heartbeat transport. Start launches
// every reconnect loop; Close shuts all supervisors down concurrently, each
// following its own stop, drain, reap ordering. Wake requests arrive from
// the status API or the MQTT command topic
// netmuxd/command/supervisor/{target}/wake.
package daemon
