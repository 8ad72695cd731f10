// Package keycode defines the logical key catalog shared by the compiler and
// the runtime engine.
//
// Every key the remapper can reference has exactly one KeyCode and one or more
// textual aliases. Alias resolution goes through a minimal perfect hash so the
// compiler (and anything else resolving names) gets O(1) lookup with zero
// collisions over the full catalog.
package keycode

// KeyCode identifies a logical key in the catalog.
//
// Values are stable: they are baked into compiled profiles, so new keys are
// only ever appended, never renumbered.
type KeyCode uint16

const (
	None KeyCode = iota

	// Letters.
	A
	B
	C
	D
	E
	F
	G
	H
	I
	J
	K
	L
	M
	N
	O
	P
	Q
	R
	S
	T
	U
	V
	W
	X
	Y
	Z

	// Top-row digits.
	Key0
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9

	// Function keys.
	F1
	F2
	F3
	F4
	F5
	F6
	F7
	F8
	F9
	F10
	F11
	F12
	F13
	F14
	F15
	F16
	F17
	F18
	F19
	F20
	F21
	F22
	F23
	F24

	// Control and editing keys.
	Escape
	Tab
	Space
	Enter
	Backspace
	Delete
	Insert
	Home
	End
	PageUp
	PageDown
	Left
	Right
	Up
	Down
	CapsLock
	ScrollLock
	NumLock
	PrintScreen
	Pause
	Menu

	// Physical modifiers.
	LShift
	RShift
	LCtrl
	RCtrl
	LAlt
	RAlt
	LMeta
	RMeta

	// Punctuation.
	Minus
	Equal
	LBracket
	RBracket
	Backslash
	Semicolon
	Quote
	Grave
	Comma
	Period
	Slash

	// Numpad.
	KP0
	KP1
	KP2
	KP3
	KP4
	KP5
	KP6
	KP7
	KP8
	KP9
	KPDot
	KPEnter
	KPPlus
	KPMinus
	KPStar
	KPSlash

	// Media and misc.
	VolumeUp
	VolumeDown
	Mute
	PlayPause

	// maxKeyCode is one past the last catalog entry. Arena sizing in the
	// runtime depends on this.
	maxKeyCode
)

// Count returns the number of catalog entries, including None.
func Count() int { return int(maxKeyCode) }

// Valid reports whether k refers to a catalog entry other than None.
func (k KeyCode) Valid() bool { return k > None && k < maxKeyCode }

// entry pairs an alias with its key code. The first alias registered for a
// code is its canonical name.
type entry struct {
	alias string
	code  KeyCode
}

// catalog lists every recognized alias in registration order. Order matters:
// the perfect hash and catalog checksum are both derived from it.
var catalog = []entry{
	{"A", A}, {"B", B}, {"C", C}, {"D", D}, {"E", E}, {"F", F},
	{"G", G}, {"H", H}, {"I", I}, {"J", J}, {"K", K}, {"L", L},
	{"M", M}, {"N", N}, {"O", O}, {"P", P}, {"Q", Q}, {"R", R},
	{"S", S}, {"T", T}, {"U", U}, {"V", V}, {"W", W}, {"X", X},
	{"Y", Y}, {"Z", Z},

	{"0", Key0}, {"1", Key1}, {"2", Key2}, {"3", Key3}, {"4", Key4},
	{"5", Key5}, {"6", Key6}, {"7", Key7}, {"8", Key8}, {"9", Key9},

	{"F1", F1}, {"F2", F2}, {"F3", F3}, {"F4", F4}, {"F5", F5},
	{"F6", F6}, {"F7", F7}, {"F8", F8}, {"F9", F9}, {"F10", F10},
	{"F11", F11}, {"F12", F12}, {"F13", F13}, {"F14", F14},
	{"F15", F15}, {"F16", F16}, {"F17", F17}, {"F18", F18},
	{"F19", F19}, {"F20", F20}, {"F21", F21}, {"F22", F22},
	{"F23", F23}, {"F24", F24},

	{"Escape", Escape}, {"Esc", Escape},
	{"Tab", Tab},
	{"Space", Space},
	{"Enter", Enter}, {"Return", Enter},
	{"Backspace", Backspace},
	{"Delete", Delete}, {"Del", Delete},
	{"Insert", Insert}, {"Ins", Insert},
	{"Home", Home},
	{"End", End},
	{"PageUp", PageUp}, {"PgUp", PageUp},
	{"PageDown", PageDown}, {"PgDn", PageDown},
	{"Left", Left},
	{"Right", Right},
	{"Up", Up},
	{"Down", Down},
	{"CapsLock", CapsLock}, {"Caps", CapsLock},
	{"ScrollLock", ScrollLock},
	{"NumLock", NumLock},
	{"PrintScreen", PrintScreen}, {"PrtSc", PrintScreen},
	{"Pause", Pause},
	{"Menu", Menu},

	{"LShift", LShift}, {"RShift", RShift},
	{"LCtrl", LCtrl}, {"RCtrl", RCtrl},
	{"LAlt", LAlt}, {"RAlt", RAlt},
	{"LMeta", LMeta}, {"LWin", LMeta},
	{"RMeta", RMeta}, {"RWin", RMeta},

	{"Minus", Minus},
	{"Equal", Equal},
	{"LBracket", LBracket},
	{"RBracket", RBracket},
	{"Backslash", Backslash},
	{"Semicolon", Semicolon},
	{"Quote", Quote},
	{"Grave", Grave}, {"Backtick", Grave},
	{"Comma", Comma},
	{"Period", Period}, {"Dot", Period},
	{"Slash", Slash},

	{"KP0", KP0}, {"KP1", KP1}, {"KP2", KP2}, {"KP3", KP3},
	{"KP4", KP4}, {"KP5", KP5}, {"KP6", KP6}, {"KP7", KP7},
	{"KP8", KP8}, {"KP9", KP9},
	{"KPDot", KPDot},
	{"KPEnter", KPEnter},
	{"KPPlus", KPPlus},
	{"KPMinus", KPMinus},
	{"KPStar", KPStar},
	{"KPSlash", KPSlash},

	{"VolumeUp", VolumeUp},
	{"VolumeDown", VolumeDown},
	{"Mute", Mute},
	{"PlayPause", PlayPause},
}

// names maps each code back to its canonical alias.
var names = func() [maxKeyCode]string {
	var n [maxKeyCode]string
	for _, e := range catalog {
		if n[e.code] == "" {
			n[e.code] = e.alias
		}
	}
	n[None] = "None"
	return n
}()

// String returns the canonical alias for k, or "None"/"KeyCode(n)" for
// out-of-catalog values.
func (k KeyCode) String() string {
	if k < maxKeyCode {
		return names[k]
	}
	return "KeyCode(" + itoa(uint16(k)) + ")"
}

func itoa(v uint16) string {
	if v == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// Aliases returns all registered aliases in registration order.
func Aliases() []string {
	out := make([]string, len(catalog))
	for i, e := range catalog {
		out[i] = e.alias
	}
	return out
}

// table is the process-wide perfect hash over the catalog, built once at init.
var table = func() *Table {
	t, err := Build(catalog)
	if err != nil {
		panic("keycode: catalog perfect hash construction failed: " + err.Error())
	}
	return t
}()

// Resolve maps an alias to its KeyCode. The second result is false for
// aliases not in the catalog.
func Resolve(alias string) (KeyCode, bool) {
	return table.Lookup(alias)
}

// Hash returns the process catalog's perfect hash table.
func Hash() *Table { return table }
