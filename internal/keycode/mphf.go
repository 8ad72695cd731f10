package keycode

import (
	"errors"
	"fmt"
	"sort"
)

// Table is a minimal perfect hash over a fixed alias set (CHD construction:
// a first-level hash picks a bucket, the bucket's displacement value picks
// the final slot). Lookup is two hash evaluations and two array reads, no
// probing, no collisions.
//
// A Table is immutable after Build and safe for concurrent use.
type Table struct {
	// displace holds one value per bucket. Negative values encode a direct
	// slot assignment (-slot-1) for single-entry buckets; non-negative
	// values are the seed for the second-level hash.
	displace []int32
	// codes holds the KeyCode stored in each slot.
	codes []KeyCode
	// check holds the base hash of the alias stored in each slot, so that
	// lookups of unknown aliases are rejected instead of aliasing onto a
	// valid slot.
	check []uint32
}

// fnv1a is the 32-bit FNV-1a hash with a seed folded in up front. Seed 0 is
// the first-level hash; Build probes other seeds for crowded buckets.
func fnv1a(seed uint32, s string) uint32 {
	h := uint32(2166136261) ^ seed*0x9e3779b9
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

const maxDisplaceSeed = 1 << 16

// Build constructs a minimal perfect hash over the given entries.
// Construction is deterministic for a given entry order.
func Build(entries []entry) (*Table, error) {
	n := len(entries)
	if n == 0 {
		return nil, errors.New("keycode: empty catalog")
	}

	t := &Table{
		displace: make([]int32, n),
		codes:    make([]KeyCode, n),
		check:    make([]uint32, n),
	}

	type bucket struct {
		id      int
		entries []int
	}
	buckets := make([]bucket, n)
	for i := range buckets {
		buckets[i].id = i
	}
	for i, e := range entries {
		b := int(fnv1a(0, e.alias) % uint32(n))
		buckets[b].entries = append(buckets[b].entries, i)
	}

	// Place crowded buckets first; singles fill the remaining holes.
	sort.SliceStable(buckets, func(i, j int) bool {
		return len(buckets[i].entries) > len(buckets[j].entries)
	})

	occupied := make([]bool, n)
	var singles []bucket
	for _, b := range buckets {
		if len(b.entries) == 0 {
			continue
		}
		if len(b.entries) == 1 {
			singles = append(singles, b)
			continue
		}
		placed := false
		for seed := uint32(1); seed < maxDisplaceSeed; seed++ {
			slots := make([]int, 0, len(b.entries))
			ok := true
			for _, ei := range b.entries {
				slot := int(fnv1a(seed, entries[ei].alias) % uint32(n))
				if occupied[slot] {
					ok = false
					break
				}
				dup := false
				for _, s := range slots {
					if s == slot {
						dup = true
						break
					}
				}
				if dup {
					ok = false
					break
				}
				slots = append(slots, slot)
			}
			if !ok {
				continue
			}
			for k, ei := range b.entries {
				slot := slots[k]
				occupied[slot] = true
				t.codes[slot] = entries[ei].code
				t.check[slot] = fnv1a(0, entries[ei].alias)
			}
			t.displace[b.id] = int32(seed)
			placed = true
			break
		}
		if !placed {
			return nil, fmt.Errorf("keycode: no displacement seed for bucket %d", b.id)
		}
	}

	// Assign single-entry buckets directly into free slots.
	free := make([]int, 0, n)
	for slot, used := range occupied {
		if !used {
			free = append(free, slot)
		}
	}
	if len(free) < len(singles) {
		return nil, errors.New("keycode: slot accounting mismatch")
	}
	for i, b := range singles {
		slot := free[i]
		ei := b.entries[0]
		occupied[slot] = true
		t.codes[slot] = entries[ei].code
		t.check[slot] = fnv1a(0, entries[ei].alias)
		t.displace[b.id] = int32(-slot - 1)
	}

	return t, nil
}

// Lookup resolves an alias to its KeyCode in O(1).
func (t *Table) Lookup(alias string) (KeyCode, bool) {
	n := uint32(len(t.codes))
	base := fnv1a(0, alias)
	d := t.displace[base%n]
	var slot uint32
	if d < 0 {
		slot = uint32(-d - 1)
	} else {
		slot = fnv1a(uint32(d), alias) % n
	}
	if t.check[slot] != base {
		return None, false
	}
	return t.codes[slot], true
}

// Len returns the number of slots (equal to the number of aliases).
func (t *Table) Len() int { return len(t.codes) }

// Slot returns the stored code and check hash for a slot, for serialization.
func (t *Table) Slot(i int) (KeyCode, uint32) { return t.codes[i], t.check[i] }

// Displacements returns the displacement array, for serialization.
func (t *Table) Displacements() []int32 { return t.displace }

// FromParts reassembles a Table from serialized sections. The parts are
// validated for shape only; the catalog checksum guards semantic drift.
func FromParts(displace []int32, codes []KeyCode, check []uint32) (*Table, error) {
	if len(displace) == 0 || len(displace) != len(codes) || len(codes) != len(check) {
		return nil, errors.New("keycode: malformed perfect hash sections")
	}
	return &Table{displace: displace, codes: codes, check: check}, nil
}
