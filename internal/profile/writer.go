package profile

import (
	"encoding/binary"
	"fmt"

	"keyrx/internal/keycode"
)

// Builder assembles a compiled profile. Append patterns, layers, rules and
// macros, then call Bytes. Emission is fully deterministic: the same calls
// in the same order always produce identical bytes.
type Builder struct {
	patterns   []*PatternBuilder
	macros     []MacroStep
	sourceHash [32]byte
	meta       Meta
}

// PatternBuilder accumulates the layer tables for one device pattern.
type PatternBuilder struct {
	pattern string
	layers  [][]Rule
}

// NewBuilder returns an empty profile builder.
func NewBuilder() *Builder {
	return &Builder{meta: Meta{CompilerVersion: "dev"}}
}

// SetSourceHash records the BLAKE2b hash of the DSL source.
func (b *Builder) SetSourceHash(h [32]byte) { b.sourceHash = h }

// SetMeta records the compilation metadata block.
func (b *Builder) SetMeta(m Meta) { b.meta = m }

// AddPattern appends a device pattern. Patterns are matched at runtime in
// the order they are added; callers must preserve declaration order.
func (b *Builder) AddPattern(pattern string) *PatternBuilder {
	p := &PatternBuilder{pattern: pattern, layers: [][]Rule{nil}}
	b.patterns = append(b.patterns, p)
	return p
}

// AddMacro appends steps to the macro pool and returns the (offset, count)
// operands for an ActionMacro rule.
func (b *Builder) AddMacro(steps []MacroStep) (off, count uint16) {
	off = uint16(len(b.macros))
	b.macros = append(b.macros, steps...)
	return off, uint16(len(steps))
}

// AddLayer appends an empty layer and returns its index. Layer 0 (the base
// layer) always exists.
func (p *PatternBuilder) AddLayer() uint16 {
	p.layers = append(p.layers, nil)
	return uint16(len(p.layers) - 1)
}

// AddRule appends a rule to the given layer. Rule order within a layer is
// the first-match order the runtime uses.
func (p *PatternBuilder) AddRule(layer uint16, r Rule) error {
	if int(layer) >= len(p.layers) {
		return fmt.Errorf("profile: layer %d out of range (have %d)", layer, len(p.layers))
	}
	p.layers[layer] = append(p.layers[layer], r)
	return nil
}

// Bytes serializes the profile.
func (b *Builder) Bytes() []byte {
	table := keycode.Hash()
	n := table.Len()

	// Section sizes, computed up front so every offset is known before a
	// single byte is written.
	mphfOff := uint32(headerSize)
	mphfLen := 4 + 4*n + 2*n + 4*n

	patternsOff := mphfOff + uint32(mphfLen)
	patternsLen := 4 + patternSize*len(b.patterns)

	stringsOff := patternsOff + uint32(patternsLen)
	stringsLen := 0
	for _, p := range b.patterns {
		stringsLen += len(p.pattern)
	}

	layersOff := stringsOff + uint32(stringsLen)
	layersLen := 0
	rulesLen := 0
	for _, p := range b.patterns {
		layersLen += layerSize * len(p.layers)
		for _, rules := range p.layers {
			rulesLen += ruleSize * len(rules)
		}
	}
	rulesOff := layersOff + uint32(layersLen)

	macrosOff := rulesOff + uint32(rulesLen)
	macrosLen := 4 + stepSize*len(b.macros)

	metaOff := macrosOff + uint32(macrosLen)
	metaLen := 2 + len(b.meta.CompilerVersion) + 8

	total := metaOff + uint32(metaLen)
	buf := make([]byte, total)
	le := binary.LittleEndian

	// Header.
	le.PutUint32(buf[offMagic:], Magic)
	le.PutUint16(buf[offVersion:], Version)
	sum := keycode.Checksum()
	copy(buf[offCatalogSum:], sum[:])
	copy(buf[offSourceHash:], b.sourceHash[:])
	le.PutUint32(buf[offMPHF:], mphfOff)
	le.PutUint32(buf[offPatterns:], patternsOff)
	le.PutUint32(buf[offMacros:], macrosOff)
	le.PutUint32(buf[offMeta:], metaOff)
	le.PutUint32(buf[offFileSize:], total)

	// Perfect hash section: slot count, displacements, codes, checks.
	at := mphfOff
	le.PutUint32(buf[at:], uint32(n))
	at += 4
	for _, d := range table.Displacements() {
		le.PutUint32(buf[at:], uint32(d))
		at += 4
	}
	for i := 0; i < n; i++ {
		code, _ := table.Slot(i)
		le.PutUint16(buf[at:], uint16(code))
		at += 2
	}
	for i := 0; i < n; i++ {
		_, check := table.Slot(i)
		le.PutUint32(buf[at:], check)
		at += 4
	}

	// Pattern table and string pool.
	at = patternsOff
	le.PutUint32(buf[at:], uint32(len(b.patterns)))
	at += 4
	strAt := stringsOff
	layerAt := layersOff
	ruleAt := rulesOff
	for _, p := range b.patterns {
		le.PutUint32(buf[at:], strAt)
		le.PutUint32(buf[at+4:], uint32(len(p.pattern)))
		le.PutUint32(buf[at+8:], layerAt)
		le.PutUint32(buf[at+12:], uint32(len(p.layers)))
		at += patternSize

		copy(buf[strAt:], p.pattern)
		strAt += uint32(len(p.pattern))

		for _, rules := range p.layers {
			le.PutUint32(buf[layerAt:], ruleAt)
			le.PutUint32(buf[layerAt+4:], uint32(len(rules)))
			layerAt += layerSize
			for i := range rules {
				putRule(buf[ruleAt:ruleAt+ruleSize], &rules[i])
				ruleAt += ruleSize
			}
		}
	}

	// Macro pool.
	at = macrosOff
	le.PutUint32(buf[at:], uint32(len(b.macros)))
	at += 4
	for _, s := range b.macros {
		le.PutUint16(buf[at:], uint16(s.Key))
		le.PutUint16(buf[at+2:], s.DelayMs)
		at += stepSize
	}

	// Metadata.
	at = metaOff
	le.PutUint16(buf[at:], uint16(len(b.meta.CompilerVersion)))
	at += 2
	copy(buf[at:], b.meta.CompilerVersion)
	at += uint32(len(b.meta.CompilerVersion))
	le.PutUint64(buf[at:], b.meta.CompiledAt)

	return buf
}

func putRule(dst []byte, r *Rule) {
	le := binary.LittleEndian
	le.PutUint16(dst[0:], uint16(r.Source))
	dst[2] = byte(r.Kind)
	dst[3] = r.Flags
	le.PutUint16(dst[4:], r.A)
	le.PutUint16(dst[6:], r.B)
	le.PutUint16(dst[8:], r.C)
	// 6 bytes of padding keep the condition block 16-byte aligned within
	// the record.
	at := 16
	for i := 0; i < 4; i++ {
		le.PutUint64(dst[at:], r.Cond.RequiredMods[i])
		at += 8
	}
	for i := 0; i < 4; i++ {
		le.PutUint64(dst[at:], r.Cond.ForbiddenMods[i])
		at += 8
	}
	le.PutUint64(dst[at:], r.Cond.RequiredLocks)
	le.PutUint64(dst[at+8:], r.Cond.ForbiddenLocks)
}
