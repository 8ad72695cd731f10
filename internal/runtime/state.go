package runtime

import "keyrx/internal/profile"

// ExtendedState is the single shared modifier/lock state consulted for every
// event regardless of originating device. It is owned by the engine's
// processing goroutine and mutated only from there; snapshots for the
// control plane are taken through the engine.
type ExtendedState struct {
	mods  [4]uint64
	locks uint64
}

// SetMod activates a custom modifier bit.
func (s *ExtendedState) SetMod(id uint8) { s.mods[id>>6] |= 1 << (id & 63) }

// ClearMod deactivates a custom modifier bit.
func (s *ExtendedState) ClearMod(id uint8) { s.mods[id>>6] &^= 1 << (id & 63) }

// ModActive reports whether a custom modifier is active.
func (s *ExtendedState) ModActive(id uint8) bool {
	return s.mods[id>>6]&(1<<(id&63)) != 0
}

// ToggleLock flips a lock bit.
func (s *ExtendedState) ToggleLock(id uint8) { s.locks ^= 1 << (id & 63) }

// LockActive reports whether a lock is active.
func (s *ExtendedState) LockActive(id uint8) bool {
	return s.locks&(1<<(id&63)) != 0
}

// Satisfies evaluates a rule condition against the current bits: all
// required bits set, no forbidden bit set.
func (s *ExtendedState) Satisfies(c *profile.Condition) bool {
	for i := 0; i < 4; i++ {
		if s.mods[i]&c.RequiredMods[i] != c.RequiredMods[i] {
			return false
		}
		if s.mods[i]&c.ForbiddenMods[i] != 0 {
			return false
		}
	}
	if s.locks&c.RequiredLocks != c.RequiredLocks {
		return false
	}
	return s.locks&c.ForbiddenLocks == 0
}

// ActiveModifiers lists the active modifier ids in ascending order.
func (s *ExtendedState) ActiveModifiers() []uint8 {
	var out []uint8
	for id := 0; id < profile.ModifierCount; id++ {
		if s.ModActive(uint8(id)) {
			out = append(out, uint8(id))
		}
	}
	return out
}

// ActiveLocks lists the active lock ids in ascending order.
func (s *ExtendedState) ActiveLocks() []uint8 {
	var out []uint8
	for id := 0; id <= profile.MaxLockID; id++ {
		if s.LockActive(uint8(id)) {
			out = append(out, uint8(id))
		}
	}
	return out
}

// Reset clears all modifier and lock bits.
func (s *ExtendedState) Reset() {
	s.mods = [4]uint64{}
	s.locks = 0
}
