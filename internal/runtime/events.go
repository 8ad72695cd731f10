// Package runtime implements the remapping engine: per-event dispatch, the
// tap-hold DFA, and the shared modifier/lock/layer state.
//
// The engine is single-threaded by design. Platform adapters funnel raw
// events into one processing goroutine that owns the Engine; ExtendedState
// mutation is therefore strictly ordered across devices without locking.
// Process never blocks and never allocates once the caller reuses its output
// buffer.
package runtime

import "keyrx/internal/keycode"

// KeyEvent is a raw user key transition as reported by a platform adapter,
// already translated to the logical key catalog.
type KeyEvent struct {
	Key   keycode.KeyCode
	Press bool
}

// OutputEvent is one synthetic event for the adapter to inject back into the
// OS.
type OutputEvent struct {
	// Device attributes the output to the device whose input produced it.
	Device DeviceID
	Key    keycode.KeyCode
	Press  bool
	// Flags carries physical modifier flags (profile.FlagShift etc.) the
	// adapter must wrap around the key for modified-output rules.
	Flags uint8
	// DelayMs asks the adapter to wait before injecting this event.
	// Only macro playback sets it.
	DelayMs uint16
}
