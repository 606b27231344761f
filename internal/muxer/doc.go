// Package muxer is the in-process device table for netmuxd.
//
// The table is the primary owner of every registered device. Registration
// starts the device; removal never fails. Subscribers are told about
// attaches and detaches through an events.Emitter.
//
// Routing client traffic to devices is not implemented here.
package muxer
