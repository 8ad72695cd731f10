package profile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"

	"keyrx/internal/keycode"
)

// ErrInvalidProfile is wrapped by every load-time validation failure. The
// engine refuses to run against a profile that fails any of these checks.
var ErrInvalidProfile = errors.New("invalid profile")

// Profile is a loaded, validated compiled profile. All accessors index the
// underlying byte slice directly; nothing is deserialized up front except
// the perfect hash table. A Profile is immutable and safe for concurrent
// readers.
type Profile struct {
	data  []byte
	table *keycode.Table

	patternsOff uint32
	macrosOff   uint32
	metaOff     uint32

	sourceHash [32]byte
	meta       Meta
}

// Load validates raw artifact bytes and returns a Profile view over them.
// The slice is retained; callers must not mutate it afterwards.
func Load(data []byte) (*Profile, error) {
	le := binary.LittleEndian
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: truncated header (%d bytes)", ErrInvalidProfile, len(data))
	}
	if le.Uint32(data[offMagic:]) != Magic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidProfile)
	}
	if v := le.Uint16(data[offVersion:]); v != Version {
		return nil, fmt.Errorf("%w: format version %d, want %d", ErrInvalidProfile, v, Version)
	}
	if size := le.Uint32(data[offFileSize:]); int(size) != len(data) {
		return nil, fmt.Errorf("%w: size field %d does not match %d bytes", ErrInvalidProfile, size, len(data))
	}
	want := keycode.Checksum()
	var got [32]byte
	copy(got[:], data[offCatalogSum:])
	if got != want {
		return nil, fmt.Errorf("%w: catalog checksum mismatch", ErrInvalidProfile)
	}

	p := &Profile{
		data:        data,
		patternsOff: le.Uint32(data[offPatterns:]),
		macrosOff:   le.Uint32(data[offMacros:]),
		metaOff:     le.Uint32(data[offMeta:]),
	}
	copy(p.sourceHash[:], data[offSourceHash:])

	mphfOff := le.Uint32(data[offMPHF:])
	table, err := p.readTable(mphfOff)
	if err != nil {
		return nil, err
	}
	p.table = table

	if err := p.validateTables(); err != nil {
		return nil, err
	}
	if err := p.readMeta(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadFile reads and validates an artifact from disk.
func LoadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

func (p *Profile) readTable(off uint32) (*keycode.Table, error) {
	le := binary.LittleEndian
	if !p.inBounds(off, 4) {
		return nil, fmt.Errorf("%w: perfect hash section out of bounds", ErrInvalidProfile)
	}
	n := le.Uint32(p.data[off:])
	if n == 0 || !p.sectionFits(off+4, n, 10) {
		return nil, fmt.Errorf("%w: truncated perfect hash section", ErrInvalidProfile)
	}
	displace := make([]int32, n)
	codes := make([]keycode.KeyCode, n)
	check := make([]uint32, n)
	at := off + 4
	for i := uint32(0); i < n; i++ {
		displace[i] = int32(le.Uint32(p.data[at:]))
		at += 4
	}
	for i := uint32(0); i < n; i++ {
		codes[i] = keycode.KeyCode(le.Uint16(p.data[at:]))
		at += 2
	}
	for i := uint32(0); i < n; i++ {
		check[i] = le.Uint32(p.data[at:])
		at += 4
	}
	t, err := keycode.FromParts(displace, codes, check)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	return t, nil
}

// validateTables walks every pattern, layer and rule header once at load so
// the hot path can index without bounds anxiety.
func (p *Profile) validateTables() error {
	if !p.inBounds(p.patternsOff, 4) {
		return fmt.Errorf("%w: pattern table offset out of bounds", ErrInvalidProfile)
	}
	n := p.Patterns()
	if !p.sectionFits(p.patternsOff+4, uint32(n), patternSize) {
		return fmt.Errorf("%w: truncated pattern table", ErrInvalidProfile)
	}
	for i := 0; i < n; i++ {
		nameOff, nameLen, layersOff, layerCount := p.patternRecord(i)
		if !p.inBounds(nameOff, nameLen) {
			return fmt.Errorf("%w: pattern %d name out of bounds", ErrInvalidProfile, i)
		}
		if !p.sectionFits(layersOff, layerCount, layerSize) {
			return fmt.Errorf("%w: pattern %d layer table out of bounds", ErrInvalidProfile, i)
		}
		for l := uint32(0); l < layerCount; l++ {
			rulesOff, ruleCount := p.layerRecord(layersOff, l)
			if !p.sectionFits(rulesOff, ruleCount, ruleSize) {
				return fmt.Errorf("%w: pattern %d layer %d rules out of bounds", ErrInvalidProfile, i, l)
			}
			for r := uint32(0); r < ruleCount; r++ {
				rec := p.data[rulesOff+r*ruleSize:]
				if ActionKind(rec[2]) >= actionKindCount {
					return fmt.Errorf("%w: pattern %d layer %d rule %d has invalid action", ErrInvalidProfile, i, l, r)
				}
			}
		}
	}
	if !p.inBounds(p.macrosOff, 4) {
		return fmt.Errorf("%w: truncated macro pool", ErrInvalidProfile)
	}
	mc := binary.LittleEndian.Uint32(p.data[p.macrosOff:])
	if !p.sectionFits(p.macrosOff+4, mc, stepSize) {
		return fmt.Errorf("%w: truncated macro pool", ErrInvalidProfile)
	}
	return nil
}

func (p *Profile) readMeta() error {
	le := binary.LittleEndian
	if !p.inBounds(p.metaOff, 2) {
		return fmt.Errorf("%w: truncated metadata", ErrInvalidProfile)
	}
	vlen := uint32(le.Uint16(p.data[p.metaOff:]))
	if !p.inBounds(p.metaOff, 2+vlen+8) {
		return fmt.Errorf("%w: truncated metadata", ErrInvalidProfile)
	}
	p.meta.CompilerVersion = string(p.data[p.metaOff+2 : p.metaOff+2+vlen])
	p.meta.CompiledAt = le.Uint64(p.data[p.metaOff+2+vlen:])
	return nil
}

func (p *Profile) inBounds(off, length uint32) bool {
	end := uint64(off) + uint64(length)
	return end <= uint64(len(p.data))
}

// sectionFits reports whether count records of recSize bytes starting at
// off fit in the artifact. The arithmetic stays in uint64 so a hostile
// count cannot wrap a uint32 size past the bounds check.
func (p *Profile) sectionFits(off, count, recSize uint32) bool {
	if uint64(off) > uint64(len(p.data)) {
		return false
	}
	return uint64(count)*uint64(recSize) <= uint64(len(p.data))-uint64(off)
}

// Table returns the embedded perfect hash table.
func (p *Profile) Table() *keycode.Table { return p.table }

// SourceHash returns the BLAKE2b hash of the DSL source this profile was
// compiled from.
func (p *Profile) SourceHash() [32]byte { return p.sourceHash }

// Meta returns the compilation metadata block.
func (p *Profile) Meta() Meta { return p.meta }

// Size returns the artifact size in bytes.
func (p *Profile) Size() int { return len(p.data) }

// Bytes returns the raw artifact.
func (p *Profile) Bytes() []byte { return p.data }

// Patterns returns the number of device patterns.
func (p *Profile) Patterns() int {
	return int(binary.LittleEndian.Uint32(p.data[p.patternsOff:]))
}

func (p *Profile) patternRecord(i int) (nameOff, nameLen, layersOff, layerCount uint32) {
	le := binary.LittleEndian
	rec := p.data[p.patternsOff+4+uint32(i)*patternSize:]
	return le.Uint32(rec), le.Uint32(rec[4:]), le.Uint32(rec[8:]), le.Uint32(rec[12:])
}

func (p *Profile) layerRecord(layersOff, layer uint32) (rulesOff, ruleCount uint32) {
	le := binary.LittleEndian
	rec := p.data[layersOff+layer*layerSize:]
	return le.Uint32(rec), le.Uint32(rec[4:])
}

// PatternName returns the glob pattern string at index i.
func (p *Profile) PatternName(i int) string {
	off, length, _, _ := p.patternRecord(i)
	return string(p.data[off : off+length])
}

// Layers returns the layer count for pattern i (always >= 1; layer 0 is the
// base layer).
func (p *Profile) Layers(i int) int {
	_, _, _, count := p.patternRecord(i)
	return int(count)
}

// RuleCount returns the number of rules in (pattern, layer).
func (p *Profile) RuleCount(pattern, layer int) int {
	_, _, layersOff, _ := p.patternRecord(pattern)
	_, count := p.layerRecord(layersOff, uint32(layer))
	return int(count)
}

// RuleAt decodes rule r of (pattern, layer) into out. The decode is a fixed
// number of slice reads; out lives wherever the caller put it, so the hot
// path can keep it on the stack.
func (p *Profile) RuleAt(pattern, layer, r int, out *Rule) {
	_, _, layersOff, _ := p.patternRecord(pattern)
	rulesOff, _ := p.layerRecord(layersOff, uint32(layer))
	rec := p.data[rulesOff+uint32(r)*ruleSize:]
	le := binary.LittleEndian
	out.Source = keycode.KeyCode(le.Uint16(rec))
	out.Kind = ActionKind(rec[2])
	out.Flags = rec[3]
	out.A = le.Uint16(rec[4:])
	out.B = le.Uint16(rec[6:])
	out.C = le.Uint16(rec[8:])
	at := 16
	for i := 0; i < 4; i++ {
		out.Cond.RequiredMods[i] = le.Uint64(rec[at:])
		at += 8
	}
	for i := 0; i < 4; i++ {
		out.Cond.ForbiddenMods[i] = le.Uint64(rec[at:])
		at += 8
	}
	out.Cond.RequiredLocks = le.Uint64(rec[at:])
	out.Cond.ForbiddenLocks = le.Uint64(rec[at+8:])
}

// MacroSteps returns the number of steps in the macro pool.
func (p *Profile) MacroSteps() int {
	return int(binary.LittleEndian.Uint32(p.data[p.macrosOff:]))
}

// MacroStepAt returns step i of the macro pool.
func (p *Profile) MacroStepAt(i int) MacroStep {
	le := binary.LittleEndian
	rec := p.data[p.macrosOff+4+uint32(i)*stepSize:]
	return MacroStep{
		Key:     keycode.KeyCode(le.Uint16(rec)),
		DelayMs: le.Uint16(rec[2:]),
	}
}

// MatchDevice resolves a device name against the pattern table in
// declaration order and returns the first matching index, or -1 when no
// pattern matches (the device is pure pass-through).
func (p *Profile) MatchDevice(name string) int {
	n := p.Patterns()
	for i := 0; i < n; i++ {
		if MatchPattern(p.PatternName(i), name) {
			return i
		}
	}
	return -1
}

// MatchPattern implements the device glob semantics: "Name" exact,
// "Prefix*" prefix, "*Suffix" suffix, "*Contains*" substring, "*"
// universal. Matching is case-sensitive.
func MatchPattern(pattern, name string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) >= 2:
		return strings.Contains(name, pattern[1:len(pattern)-1])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(name, pattern[1:])
	default:
		return pattern == name
	}
}
