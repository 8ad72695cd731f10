//go:build linux

package platform

import "keyrx/internal/keycode"

// Linux input-event key codes (input-event-codes.h) for the keys the
// catalog covers.
const (
	keyEsc        = 1
	key1          = 2
	key0          = 11
	keyMinus      = 12
	keyEqual      = 13
	keyBackspace  = 14
	keyTab        = 15
	keyQ          = 16
	keyLeftBrace  = 26
	keyRightBrace = 27
	keyEnter      = 28
	keyLeftCtrl   = 29
	keyA          = 30
	keySemicolon  = 39
	keyApostrophe = 40
	keyGrave      = 41
	keyLeftShift  = 42
	keyBackslash  = 43
	keyZ          = 44
	keyComma      = 51
	keyDot        = 52
	keySlash      = 53
	keyRightShift = 54
	keyKPAsterisk = 55
	keyLeftAlt    = 56
	keySpace      = 57
	keyCapsLock   = 58
	keyF1         = 59
	keyNumLock    = 69
	keyScrollLock = 70
	keyKP7        = 71
	keyKP8        = 72
	keyKP9        = 73
	keyKPMinus    = 74
	keyKP4        = 75
	keyKP5        = 76
	keyKP6        = 77
	keyKPPlus     = 78
	keyKP1        = 79
	keyKP2        = 80
	keyKP3        = 81
	keyKP0        = 82
	keyKPDot      = 83
	keyF11        = 87
	keyF12        = 88
	keyKPEnter    = 96
	keyRightCtrl  = 97
	keyKPSlash    = 98
	keySysRq      = 99
	keyRightAlt   = 100
	keyHome       = 102
	keyUp         = 103
	keyPageUp     = 104
	keyLeft       = 105
	keyRight      = 106
	keyEnd        = 107
	keyDown       = 108
	keyPageDown   = 109
	keyInsert     = 110
	keyDelete     = 111
	keyMute       = 113
	keyVolumeDown = 114
	keyVolumeUp   = 115
	keyPause      = 119
	keyLeftMeta   = 125
	keyRightMeta  = 126
	keyCompose    = 127
	keyPlayPause  = 164
	keyF13        = 183
	maxEvdevCode  = 256
)

// evdevToCatalog maps Linux key codes to catalog codes. Built at init from
// the block layout above; unmapped codes stay None and are passed through
// untranslated by the reader.
var evdevToCatalog [maxEvdevCode]keycode.KeyCode

// catalogToEvdev is the inverse, used by the injector.
var catalogToEvdev []uint16

func init() {
	m := evdevToCatalog[:]

	// Letter rows follow the physical QWERTY layout, not alphabet order.
	qwerty1 := []keycode.KeyCode{keycode.Q, keycode.W, keycode.E, keycode.R, keycode.T, keycode.Y, keycode.U, keycode.I, keycode.O, keycode.P}
	for i, k := range qwerty1 {
		m[keyQ+i] = k
	}
	qwerty2 := []keycode.KeyCode{keycode.A, keycode.S, keycode.D, keycode.F, keycode.G, keycode.H, keycode.J, keycode.K, keycode.L}
	for i, k := range qwerty2 {
		m[keyA+i] = k
	}
	qwerty3 := []keycode.KeyCode{keycode.Z, keycode.X, keycode.C, keycode.V, keycode.B, keycode.N, keycode.M}
	for i, k := range qwerty3 {
		m[keyZ+i] = k
	}

	digits := []keycode.KeyCode{keycode.Key1, keycode.Key2, keycode.Key3, keycode.Key4, keycode.Key5, keycode.Key6, keycode.Key7, keycode.Key8, keycode.Key9, keycode.Key0}
	for i, k := range digits {
		m[key1+i] = k
	}

	for i := 0; i < 10; i++ {
		m[keyF1+i] = keycode.F1 + keycode.KeyCode(i)
	}
	m[keyF11] = keycode.F11
	m[keyF12] = keycode.F12
	for i := 0; i < 12; i++ {
		m[keyF13+i] = keycode.F13 + keycode.KeyCode(i)
	}

	m[keyEsc] = keycode.Escape
	m[keyTab] = keycode.Tab
	m[keySpace] = keycode.Space
	m[keyEnter] = keycode.Enter
	m[keyBackspace] = keycode.Backspace
	m[keyDelete] = keycode.Delete
	m[keyInsert] = keycode.Insert
	m[keyHome] = keycode.Home
	m[keyEnd] = keycode.End
	m[keyPageUp] = keycode.PageUp
	m[keyPageDown] = keycode.PageDown
	m[keyLeft] = keycode.Left
	m[keyRight] = keycode.Right
	m[keyUp] = keycode.Up
	m[keyDown] = keycode.Down
	m[keyCapsLock] = keycode.CapsLock
	m[keyScrollLock] = keycode.ScrollLock
	m[keyNumLock] = keycode.NumLock
	m[keySysRq] = keycode.PrintScreen
	m[keyPause] = keycode.Pause
	m[keyCompose] = keycode.Menu

	m[keyLeftShift] = keycode.LShift
	m[keyRightShift] = keycode.RShift
	m[keyLeftCtrl] = keycode.LCtrl
	m[keyRightCtrl] = keycode.RCtrl
	m[keyLeftAlt] = keycode.LAlt
	m[keyRightAlt] = keycode.RAlt
	m[keyLeftMeta] = keycode.LMeta
	m[keyRightMeta] = keycode.RMeta

	m[keyMinus] = keycode.Minus
	m[keyEqual] = keycode.Equal
	m[keyLeftBrace] = keycode.LBracket
	m[keyRightBrace] = keycode.RBracket
	m[keyBackslash] = keycode.Backslash
	m[keySemicolon] = keycode.Semicolon
	m[keyApostrophe] = keycode.Quote
	m[keyGrave] = keycode.Grave
	m[keyComma] = keycode.Comma
	m[keyDot] = keycode.Period
	m[keySlash] = keycode.Slash

	kp := map[int]keycode.KeyCode{
		keyKP0: keycode.KP0, keyKP1: keycode.KP1, keyKP2: keycode.KP2,
		keyKP3: keycode.KP3, keyKP4: keycode.KP4, keyKP5: keycode.KP5,
		keyKP6: keycode.KP6, keyKP7: keycode.KP7, keyKP8: keycode.KP8,
		keyKP9: keycode.KP9, keyKPDot: keycode.KPDot, keyKPEnter: keycode.KPEnter,
		keyKPPlus: keycode.KPPlus, keyKPMinus: keycode.KPMinus,
		keyKPAsterisk: keycode.KPStar, keyKPSlash: keycode.KPSlash,
	}
	for code, k := range kp {
		m[code] = k
	}

	m[keyVolumeUp] = keycode.VolumeUp
	m[keyVolumeDown] = keycode.VolumeDown
	m[keyMute] = keycode.Mute
	m[keyPlayPause] = keycode.PlayPause

	catalogToEvdev = make([]uint16, keycode.Count())
	for code, k := range evdevToCatalog {
		if k != keycode.None && catalogToEvdev[k] == 0 {
			catalogToEvdev[k] = uint16(code)
		}
	}
}

// fromEvdev translates a Linux key code, or None when uncovered.
func fromEvdev(code uint16) keycode.KeyCode {
	if int(code) >= maxEvdevCode {
		return keycode.None
	}
	return evdevToCatalog[code]
}

// toEvdev translates a catalog code back to the Linux key code.
func toEvdev(k keycode.KeyCode) (uint16, bool) {
	if !k.Valid() || int(k) >= len(catalogToEvdev) {
		return 0, false
	}
	code := catalogToEvdev[k]
	return code, code != 0
}
