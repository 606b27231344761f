package wifi

import "github.com/nerrad567/netmuxd/internal/device"

// Multiplexer is the routing table devices register into.
//
// AddDevice takes ownership of dev and starts it; on error nothing was
// registered and the caller must roll back. DeleteDevice always succeeds.
type Multiplexer interface {
	AddDevice(dev device.Device, notify bool) error
	DeleteDevice(dev device.Device)
	HaveDeviceWithAddress(addrs []string) bool
}

// Reaper accepts devices that have decided to die. Every manager kind that
// owns wifi devices implements it.
type Reaper interface {
	AcceptDyingChild(dev *Device)
}

// Logger defines the logging interface for the wifi package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
