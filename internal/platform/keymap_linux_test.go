//go:build linux

package platform

import (
	"testing"

	"keyrx/internal/keycode"
)

func TestKeymapRoundTrip(t *testing.T) {
	for code := uint16(0); code < maxEvdevCode; code++ {
		k := fromEvdev(code)
		if k == keycode.None {
			continue
		}
		back, ok := toEvdev(k)
		if !ok {
			t.Fatalf("key %s maps from evdev %d but not back", k, code)
		}
		// Aliased evdev codes collapse onto one catalog key; the reverse
		// table keeps the first registered code.
		if fromEvdev(back) != k {
			t.Fatalf("key %s: reverse code %d maps to %s", k, back, fromEvdev(back))
		}
	}
}

func TestKeymapKnownCodes(t *testing.T) {
	cases := []struct {
		code uint16
		key  keycode.KeyCode
	}{
		{1, keycode.Escape},
		{16, keycode.Q},
		{30, keycode.A},
		{44, keycode.Z},
		{57, keycode.Space},
		{58, keycode.CapsLock},
		{105, keycode.Left},
	}
	for _, c := range cases {
		if got := fromEvdev(c.code); got != c.key {
			t.Errorf("evdev %d: got %s, want %s", c.code, got, c.key)
		}
	}
}

func TestKeymapUnknownCode(t *testing.T) {
	if got := fromEvdev(255); got != keycode.None {
		t.Errorf("code 255: got %s, want None", got)
	}
	if got := fromEvdev(0); got != keycode.None {
		t.Errorf("code 0: got %s, want None", got)
	}
}
