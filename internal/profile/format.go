// Package profile defines the compiled profile binary format: the artifact
// the compiler emits and the runtime engine consumes.
//
// The format is little-endian throughout and contains only offsets, never
// pointers, so an artifact can be memory-mapped and indexed in place on any
// architecture. Rule records are fixed-size; reading one is a handful of
// bounds-checked slice reads with no heap allocation, which is what keeps the
// engine's steady-state path allocation-free.
//
// Layout:
//
//	header            96 bytes (magic, version, catalog checksum, source
//	                  hash, section offsets)
//	perfect hash      displacement / code / check arrays from the key catalog
//	device patterns   ordered pattern records + string pool
//	layer tables      per pattern, ordered (rulesOff, ruleCount) pairs
//	rule records      96 bytes each
//	macro pool        4-byte steps
//	metadata          compiler version + compile timestamp
package profile

import "keyrx/internal/keycode"

// Magic identifies a compiled profile ("KRXP" little-endian).
const Magic uint32 = 0x50585248

// Version is the current binary format version. Readers reject any other.
const Version uint16 = 2

// Fixed record sizes. These are part of the wire format; changing any of
// them requires a Version bump.
const (
	headerSize  = 96
	patternSize = 16
	layerSize   = 8
	ruleSize    = 96
	stepSize    = 4
)

// Header field offsets.
const (
	offMagic      = 0
	offVersion    = 4
	offCatalogSum = 8
	offSourceHash = 40
	offMPHF       = 72
	offPatterns   = 76
	offMacros     = 80
	offMeta       = 84
	offFileSize   = 88
)

// ActionKind discriminates the closed set of rule actions. Dispatch in the
// engine is an exhaustive switch over these.
type ActionKind uint8

const (
	// ActionPassThrough re-emits the source key unchanged.
	ActionPassThrough ActionKind = iota
	// ActionRemap emits operand A instead of the source key.
	ActionRemap
	// ActionModifier holds custom modifier A while the key is down.
	ActionModifier
	// ActionLock toggles custom lock A on press.
	ActionLock
	// ActionTapHold taps key A or holds modifier B, threshold C ms.
	ActionTapHold
	// ActionModifiedOutput emits key A with the physical modifier flags
	// from Rule.Flags held around it.
	ActionModifiedOutput
	// ActionLayerMomentary activates layer A while the key is down.
	ActionLayerMomentary
	// ActionLayerToggle toggles layer A on press.
	ActionLayerToggle
	// ActionLayerTo switches to layer A on press.
	ActionLayerTo
	// ActionLayerOneShot activates layer A for the next key event only.
	ActionLayerOneShot
	// ActionLayerTap taps key B or activates layer A while held,
	// threshold C ms.
	ActionLayerTap
	// ActionMacro plays macro pool steps [A, A+B).
	ActionMacro

	actionKindCount
)

func (k ActionKind) String() string {
	switch k {
	case ActionPassThrough:
		return "pass_through"
	case ActionRemap:
		return "remap"
	case ActionModifier:
		return "modifier"
	case ActionLock:
		return "lock"
	case ActionTapHold:
		return "tap_hold"
	case ActionModifiedOutput:
		return "modified_output"
	case ActionLayerMomentary:
		return "layer_momentary"
	case ActionLayerToggle:
		return "layer_toggle"
	case ActionLayerTo:
		return "layer_to"
	case ActionLayerOneShot:
		return "layer_one_shot"
	case ActionLayerTap:
		return "layer_tap"
	case ActionMacro:
		return "macro"
	default:
		return "invalid"
	}
}

// Physical modifier flags for ActionModifiedOutput.
const (
	FlagShift uint8 = 1 << iota
	FlagCtrl
	FlagAlt
	FlagMeta
)

// Custom modifier and lock id spaces. 0xFF is reserved in both.
const (
	MaxModifierID = 0xFE
	ModifierCount = MaxModifierID + 1
	MaxLockID     = 0x3F // locks fit one 64-bit word
	LockCount     = MaxLockID + 1
)

// Condition is the required/forbidden state a rule needs to fire. All
// required bits must be set and no forbidden bit may be set in the extended
// state at lookup time.
type Condition struct {
	RequiredMods  [4]uint64
	ForbiddenMods [4]uint64
	RequiredLocks uint64
	ForbiddenLocks uint64
}

// RequireMod marks modifier id as required.
func (c *Condition) RequireMod(id uint8) { c.RequiredMods[id>>6] |= 1 << (id & 63) }

// ForbidMod marks modifier id as forbidden.
func (c *Condition) ForbidMod(id uint8) { c.ForbiddenMods[id>>6] |= 1 << (id & 63) }

// RequireLock marks lock id as required.
func (c *Condition) RequireLock(id uint8) { c.RequiredLocks |= 1 << (id & 63) }

// ForbidLock marks lock id as forbidden.
func (c *Condition) ForbidLock(id uint8) { c.ForbiddenLocks |= 1 << (id & 63) }

// Empty reports whether the condition is unconstrained.
func (c *Condition) Empty() bool {
	return c.RequiredMods == [4]uint64{} && c.ForbiddenMods == [4]uint64{} &&
		c.RequiredLocks == 0 && c.ForbiddenLocks == 0
}

// Overlaps reports whether two conditions can be satisfied by the same
// extended state: neither requires a bit the other forbids. Two rules for
// the same source key with overlapping conditions shadow each other under
// first-match, which the compiler rejects.
func (c *Condition) Overlaps(o *Condition) bool {
	for i := 0; i < 4; i++ {
		if c.RequiredMods[i]&o.ForbiddenMods[i] != 0 {
			return false
		}
		if o.RequiredMods[i]&c.ForbiddenMods[i] != 0 {
			return false
		}
	}
	if c.RequiredLocks&o.ForbiddenLocks != 0 || o.RequiredLocks&c.ForbiddenLocks != 0 {
		return false
	}
	return true
}

// Rule is one mapping rule as stored in a layer's rule table.
type Rule struct {
	Source keycode.KeyCode
	Kind   ActionKind
	Flags  uint8
	A      uint16
	B      uint16
	C      uint16
	Cond   Condition
}

// MacroStep is one entry in the macro pool: emit Key (press then release),
// then wait DelayMs before the next step.
type MacroStep struct {
	Key     keycode.KeyCode
	DelayMs uint16
}

// Meta is the compilation metadata block.
type Meta struct {
	CompilerVersion string
	// CompiledAt is a Unix timestamp. Zero by default so identical source
	// compiles to identical bytes; callers that want a real timestamp opt
	// in explicitly.
	CompiledAt uint64
}
