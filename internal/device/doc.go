// Package device provides the device abstraction and the child registry that
// every netmuxd manager embeds.
//
// A Device is one attached peer. Ownership of a live device is shared between
// several holders: the manager that created it (briefly), the Registry child
// set (membership only), the multiplexer table (primary owner once
// registered) and a reaper queue while teardown is pending. The Registry never
// destroys a device itself; it only records membership and asks members to
// Kill themselves.
//
// # Architecture
//
//	┌──────────────────────────────────────────────┐
//	│                  Registry                    │
//	│                                              │
//	│   children (set, guarded by mu)              │
//	│   changed  (lifecycle.Event)                 │
//	│                                              │
//	│   AddChild ──▶ insert, notify                │
//	│   RemoveChild ──▶ delete, notify             │
//	│   ShutdownChildren ──▶ Kill all, wait empty  │
//	└──────────────────────────────────────────────┘
//
// # Locking
//
// The registry mutex is held only for set mutation and snapshots. It is never
// held while calling into a child, so Kill may be invoked from any goroutine
// without deadlocking against the registry.
//
// # Identifiers
//
// Serials longer than MaxSerialLength bytes are truncated rather than
// rejected. Truncation never splits a UTF-8 sequence.
package device
