// Package platform adapts the host's input stack to the engine: it
// discovers keyboards, turns their raw events into engine input, and injects
// the engine's output as synthetic key events.
package platform

import (
	"errors"

	"keyrx/internal/runtime"
)

// ErrUnsupported reports that no backend exists for this platform.
var ErrUnsupported = errors.New("platform: no input backend for this OS")

// DeviceInfo identifies a discovered keyboard.
type DeviceInfo struct {
	// Path is the platform handle (on Linux, the /dev/input node).
	Path string

	// Name is the human-readable device name used for pattern matching.
	Name string

	// ID is the stable identity derived from serial or vendor/product/port.
	ID runtime.DeviceID
}

// RawEvent is one key edge read from a device, stamped with the platform's
// monotonic clock in microseconds.
type RawEvent struct {
	Device runtime.DeviceID
	Event  runtime.KeyEvent
	TimeUs uint64
}

// Device is an open input device delivering key events.
type Device interface {
	Info() DeviceInfo

	// Read blocks until the next key event. Non-key traffic (scan codes,
	// sync reports, mouse axes) is filtered out.
	Read() (RawEvent, error)

	Close() error
}

// Injector emits synthetic key events to the host.
type Injector interface {
	Emit(ev runtime.OutputEvent) error
	Close() error
}

// Backend is a platform's device stack.
type Backend interface {
	// Discover lists keyboards currently present.
	Discover() ([]DeviceInfo, error)

	// Open opens a device for reading. With grab, the device is claimed
	// exclusively so its events reach only the engine.
	Open(info DeviceInfo, grab bool) (Device, error)

	// NewInjector creates the synthetic output device.
	NewInjector() (Injector, error)
}
