// Package history records device sessions in SQLite.
//
// A session spans one device registration: it is opened when the muxer
// reports a device attached and closed when the device is detached. Rows
// still open at startup were left by a crash and are closed with reason
// "dangling".
package history
