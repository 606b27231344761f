package device

import (
	"io"
	"unicode/utf8"
)

// MaxSerialLength is the longest serial a device carries, in bytes.
const MaxSerialLength = 255

// ConnKind identifies how a device is attached.
type ConnKind string

const (
	ConnKindUSB     ConnKind = "usb"
	ConnKindNetwork ConnKind = "network"
)

// validKinds contains all recognised connection kinds.
var validKinds = map[ConnKind]bool{
	ConnKindUSB:     true,
	ConnKindNetwork: true,
}

// IsValid reports whether k is a recognised connection kind.
func (k ConnKind) IsValid() bool {
	return validKinds[k]
}

// ParseConnKind converts a string to a ConnKind.
// Returns ErrInvalidKind for unrecognised values.
func ParseConnKind(s string) (ConnKind, error) {
	k := ConnKind(s)
	if !k.IsValid() {
		return "", ErrInvalidKind
	}
	return k, nil
}

// Device is one attached peer.
//
// Kill asks the device to tear itself down. It must be idempotent, safe from
// any goroutine (including the device's own), must not block on teardown and
// must never acquire the lock of the registry that holds the device.
type Device interface {
	Serial() string
	Kind() ConnKind
	Start() error
	Kill()
	StartConnect(port uint16, client io.ReadWriteCloser) error
}

// Addressed is implemented by devices reachable at network addresses.
type Addressed interface {
	Addresses() []string
}

// Base carries the identity shared by every device kind. Embed it to
// satisfy Serial and Kind.
type Base struct {
	serial string
	kind   ConnKind
}

// NewBase creates a device identity. The serial is truncated to
// MaxSerialLength bytes.
func NewBase(serial string, kind ConnKind) Base {
	return Base{
		serial: TruncateSerial(serial),
		kind:   kind,
	}
}

// Serial returns the device identifier.
func (b Base) Serial() string { return b.serial }

// Kind returns how the device is attached.
func (b Base) Kind() ConnKind { return b.kind }

// TruncateSerial shortens s to at most MaxSerialLength bytes without
// splitting a multi-byte rune.
func TruncateSerial(s string) string {
	if len(s) <= MaxSerialLength {
		return s
	}
	cut := MaxSerialLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
