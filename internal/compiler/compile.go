package compiler

import (
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"keyrx/internal/keycode"
	"keyrx/internal/profile"
)

// CompilerVersion is stamped into artifact metadata.
const CompilerVersion = "0.4.0"

// DefaultThresholdMs is the tap-hold decision window used when the DSL does
// not supply one.
const DefaultThresholdMs = 200

// physicalModifiers cannot be used as MD_ ids; they are real keys.
var physicalModifiers = []string{
	"LShift", "RShift", "LCtrl", "RCtrl", "LAlt", "RAlt", "LMeta", "RMeta",
}

// Options control artifact metadata. The zero value produces reproducible
// builds (timestamp zeroed).
type Options struct {
	CompiledAt uint64
}

// Compile parses and compiles DSL source into a profile artifact. On
// failure the returned error is an ErrorList carrying every collected
// diagnostic.
func Compile(src string) ([]byte, error) {
	return CompileWithOptions(src, Options{})
}

// CompileWithOptions is Compile with explicit metadata options.
func CompileWithOptions(src string, opts Options) ([]byte, error) {
	var errs ErrorList
	blocks := parse(src, &errs)

	b := profile.NewBuilder()
	b.SetSourceHash(blake2b.Sum256([]byte(src)))
	b.SetMeta(profile.Meta{CompilerVersion: CompilerVersion, CompiledAt: opts.CompiledAt})

	for i := range blocks {
		compileBlock(b, &blocks[i], &errs)
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// placedRule carries a rule plus the source position that produced it, for
// shadow diagnostics.
type placedRule struct {
	rule profile.Rule
	line int
	col  int
}

// blockState accumulates one device block's layers while walking its
// statement tree.
type blockState struct {
	b    *profile.Builder
	pb   *profile.PatternBuilder
	errs *ErrorList

	// layers[0] is the base layer. Condition-derived layers are allocated
	// in first-appearance order of each distinct condition signature.
	layers     [][]placedRule
	signatures []profile.Condition

	// layerRefs records every numeric layer reference for end-of-block
	// range validation.
	layerRefs []arg
}

func compileBlock(b *profile.Builder, blk *deviceBlock, errs *ErrorList) {
	st := &blockState{
		b:      b,
		pb:     b.AddPattern(blk.pattern),
		errs:   errs,
		layers: make([][]placedRule, 1),
	}
	var root profile.Condition
	st.walk(blk.items, root)

	// Layer references are resolvable only once the block's full layer
	// count is known.
	for _, ref := range st.layerRefs {
		if ref.num >= len(st.layers) {
			errs.add(ErrIDOutOfRange, ref.line, ref.col,
				"layer %d does not exist (block has %d layers)", ref.num, len(st.layers))
		}
	}

	st.checkShadowing()

	for li, rules := range st.layers {
		if li > 0 {
			st.pb.AddLayer()
		}
		for _, pr := range rules {
			st.pb.AddRule(uint16(li), pr.rule)
		}
	}
}

// layerFor returns the layer index for a condition signature, allocating a
// new layer on first appearance. The base (empty) condition is layer 0.
func (st *blockState) layerFor(cond profile.Condition) int {
	if cond.Empty() {
		return 0
	}
	for i, sig := range st.signatures {
		if sig == cond {
			return i + 1
		}
	}
	st.signatures = append(st.signatures, cond)
	st.layers = append(st.layers, nil)
	return len(st.signatures)
}

func (st *blockState) walk(items []item, cond profile.Condition) {
	for i := range items {
		it := &items[i]
		switch it.kind {
		case itemWhen, itemWhenNot:
			sub := cond
			ok := true
			for _, a := range it.args {
				if !applyCondition(&sub, a, it.kind == itemWhenNot, st.errs) {
					ok = false
				}
			}
			if ok {
				// Register the layer even if the block is empty, so
				// MO/LT references to it stay stable.
				if !sub.Empty() {
					st.layerFor(sub)
				}
				st.walk(it.block, sub)
			}
		case itemMap:
			st.compileMap(it, cond)
		case itemTapHold:
			st.compileTapHold(it, cond)
		case itemMacro:
			st.compileMacro(it, cond)
		}
	}
}

// place appends a finished rule to the base layer and, for conditional
// rules, a condition-stripped copy to the condition's own layer (the target
// of MO/TG/LT actions).
func (st *blockState) place(r profile.Rule, cond profile.Condition, line, col int) {
	r.Cond = cond
	st.layers[0] = append(st.layers[0], placedRule{rule: r, line: line, col: col})
	if !cond.Empty() {
		li := st.layerFor(cond)
		bare := r
		bare.Cond = profile.Condition{}
		st.layers[li] = append(st.layers[li], placedRule{rule: bare, line: line, col: col})
	}
}

func (st *blockState) compileMap(it *item, cond profile.Condition) {
	src, ok := st.sourceKey(it.args[0])
	if !ok {
		return
	}
	r, ok := st.target(it.args[1])
	if !ok {
		return
	}
	r.Source = src
	st.place(r, cond, it.line, it.col)
}

func (st *blockState) compileTapHold(it *item, cond profile.Condition) {
	src, ok := st.sourceKey(it.args[0])
	if !ok {
		return
	}
	tap, ok := st.plainKey(it.args[1])
	if !ok {
		return
	}
	a := it.args[2]
	if !strings.HasPrefix(a.text, "MD_") {
		st.errs.add(ErrInvalidTarget, a.line, a.col, "tap_hold hold action must be MD_xx, got %q", a.text)
		return
	}
	mod, ok := st.modifierID(a)
	if !ok {
		return
	}
	th := it.args[3]
	if !th.isNum || th.num <= 0 || th.num > 0xFFFF {
		st.errs.add(ErrSyntax, th.line, th.col, "tap_hold threshold must be a positive millisecond count")
		return
	}
	st.place(profile.Rule{
		Source: src,
		Kind:   profile.ActionTapHold,
		A:      uint16(tap),
		B:      uint16(mod),
		C:      uint16(th.num),
	}, cond, it.line, it.col)
}

func (st *blockState) compileMacro(it *item, cond profile.Condition) {
	src, ok := st.sourceKey(it.args[0])
	if !ok {
		return
	}
	stepsArg := it.args[1]
	var steps []profile.MacroStep
	for _, part := range strings.Split(stepsArg.text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, delay := part, 0
		if i := strings.IndexByte(part, ':'); i >= 0 {
			name = part[:i]
			d, err := strconv.Atoi(part[i+1:])
			if err != nil || d < 0 || d > 0xFFFF {
				st.errs.add(ErrSyntax, stepsArg.line, stepsArg.col, "bad macro delay in %q", part)
				return
			}
			delay = d
		}
		key, ok := st.plainKey(arg{text: name, line: stepsArg.line, col: stepsArg.col})
		if !ok {
			return
		}
		steps = append(steps, profile.MacroStep{Key: key, DelayMs: uint16(delay)})
	}
	if len(steps) == 0 {
		st.errs.add(ErrSyntax, stepsArg.line, stepsArg.col, "empty macro sequence")
		return
	}
	off, count := st.b.AddMacro(steps)
	st.place(profile.Rule{
		Source: src,
		Kind:   profile.ActionMacro,
		A:      off,
		B:      count,
	}, cond, it.line, it.col)
}

// sourceKey resolves a map/tap_hold source argument. Bare aliases and
// VK_/KEY_ prefixed forms are both accepted for sources.
func (st *blockState) sourceKey(a arg) (keycode.KeyCode, bool) {
	if a.isNum {
		st.errs.add(ErrSyntax, a.line, a.col, "source key must be a string")
		return keycode.None, false
	}
	name := strings.TrimPrefix(strings.TrimPrefix(a.text, "VK_"), "KEY_")
	code, ok := keycode.Resolve(name)
	if !ok {
		st.errs.add(ErrUnknownKey, a.line, a.col, "unknown key %q", a.text)
		return keycode.None, false
	}
	return code, true
}

// plainKey resolves a key that must carry a VK_/KEY_ prefix (target
// position, macro steps, LT tap keys).
func (st *blockState) plainKey(a arg) (keycode.KeyCode, bool) {
	name := a.text
	switch {
	case strings.HasPrefix(name, "VK_"):
		name = name[3:]
	case strings.HasPrefix(name, "KEY_"):
		name = name[4:]
	}
	code, ok := keycode.Resolve(name)
	if !ok {
		st.errs.add(ErrUnknownKey, a.line, a.col, "unknown key %q", a.text)
		return keycode.None, false
	}
	return code, true
}

func (st *blockState) modifierID(a arg) (uint8, bool) {
	idPart := strings.TrimPrefix(a.text, "MD_")
	for _, pm := range physicalModifiers {
		if idPart == pm {
			st.errs.add(ErrInvalidTarget, a.line, a.col,
				"%q is a physical modifier; map it as a key, not an MD_ id", a.text)
			return 0, false
		}
	}
	id, err := strconv.ParseUint(idPart, 16, 16)
	if err != nil {
		st.errs.add(ErrInvalidTarget, a.line, a.col, "bad modifier id %q (want MD_00..MD_FE)", a.text)
		return 0, false
	}
	if id > profile.MaxModifierID {
		st.errs.add(ErrIDOutOfRange, a.line, a.col, "modifier id %#02x out of range (max %#02x)", id, profile.MaxModifierID)
		return 0, false
	}
	return uint8(id), true
}

func (st *blockState) lockID(a arg) (uint8, bool) {
	idPart := strings.TrimPrefix(a.text, "LK_")
	id, err := strconv.ParseUint(idPart, 16, 16)
	if err != nil {
		st.errs.add(ErrInvalidTarget, a.line, a.col, "bad lock id %q (want LK_00..LK_3F)", a.text)
		return 0, false
	}
	if id > profile.MaxLockID {
		st.errs.add(ErrIDOutOfRange, a.line, a.col, "lock id %#02x out of range (max %#02x)", id, profile.MaxLockID)
		return 0, false
	}
	return uint8(id), true
}

// target parses a map() target string into a partially-filled rule (Source
// left to the caller).
func (st *blockState) target(a arg) (profile.Rule, bool) {
	if a.isNum {
		st.errs.add(ErrInvalidTarget, a.line, a.col, "target must be a string")
		return profile.Rule{}, false
	}
	s := a.text
	switch {
	case strings.HasPrefix(s, "MD_"):
		id, ok := st.modifierID(a)
		if !ok {
			return profile.Rule{}, false
		}
		return profile.Rule{Kind: profile.ActionModifier, A: uint16(id)}, true

	case strings.HasPrefix(s, "LK_"):
		id, ok := st.lockID(a)
		if !ok {
			return profile.Rule{}, false
		}
		return profile.Rule{Kind: profile.ActionLock, A: uint16(id)}, true

	case strings.HasPrefix(s, "MO("), strings.HasPrefix(s, "TO("),
		strings.HasPrefix(s, "TG("), strings.HasPrefix(s, "OSL("):
		return st.layerTarget(a)

	case strings.HasPrefix(s, "LT("):
		return st.layerTapTarget(a)

	case strings.HasPrefix(s, "VK_"), strings.HasPrefix(s, "KEY_"):
		return st.keyTarget(a)
	}
	st.errs.add(ErrInvalidTarget, a.line, a.col,
		"unrecognized target %q (want VK_/KEY_ key, MD_xx, LK_xx, or layer action)", s)
	return profile.Rule{}, false
}

// keyTarget handles VK_X and VK_X+Shift+... forms.
func (st *blockState) keyTarget(a arg) (profile.Rule, bool) {
	parts := strings.Split(a.text, "+")
	key, ok := st.plainKey(arg{text: parts[0], line: a.line, col: a.col})
	if !ok {
		return profile.Rule{}, false
	}
	if len(parts) == 1 {
		return profile.Rule{Kind: profile.ActionRemap, A: uint16(key)}, true
	}
	var flags uint8
	for _, m := range parts[1:] {
		switch m {
		case "Shift":
			flags |= profile.FlagShift
		case "Ctrl":
			flags |= profile.FlagCtrl
		case "Alt":
			flags |= profile.FlagAlt
		case "Win", "Meta":
			flags |= profile.FlagMeta
		default:
			st.errs.add(ErrInvalidTarget, a.line, a.col, "unknown output modifier %q in %q", m, a.text)
			return profile.Rule{}, false
		}
	}
	return profile.Rule{Kind: profile.ActionModifiedOutput, A: uint16(key), Flags: flags}, true
}

func (st *blockState) layerTarget(a arg) (profile.Rule, bool) {
	op := a.text[:strings.IndexByte(a.text, '(')]
	inner, ok := callBody(a.text)
	if !ok {
		st.errs.add(ErrInvalidTarget, a.line, a.col, "malformed layer action %q", a.text)
		return profile.Rule{}, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(inner))
	if err != nil || n < 0 {
		st.errs.add(ErrInvalidTarget, a.line, a.col, "layer action %q needs a layer index", a.text)
		return profile.Rule{}, false
	}
	st.layerRefs = append(st.layerRefs, arg{num: n, line: a.line, col: a.col})
	var kind profile.ActionKind
	switch op {
	case "MO":
		kind = profile.ActionLayerMomentary
	case "TO":
		kind = profile.ActionLayerTo
	case "TG":
		kind = profile.ActionLayerToggle
	case "OSL":
		kind = profile.ActionLayerOneShot
	}
	return profile.Rule{Kind: kind, A: uint16(n)}, true
}

func (st *blockState) layerTapTarget(a arg) (profile.Rule, bool) {
	inner, ok := callBody(a.text)
	if !ok {
		st.errs.add(ErrInvalidTarget, a.line, a.col, "malformed layer action %q", a.text)
		return profile.Rule{}, false
	}
	parts := strings.SplitN(inner, ",", 2)
	if len(parts) != 2 {
		st.errs.add(ErrInvalidTarget, a.line, a.col, "LT needs (layer, key), got %q", a.text)
		return profile.Rule{}, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || n < 0 {
		st.errs.add(ErrInvalidTarget, a.line, a.col, "LT layer index in %q is not a number", a.text)
		return profile.Rule{}, false
	}
	key, ok := st.plainKey(arg{text: strings.TrimSpace(parts[1]), line: a.line, col: a.col})
	if !ok {
		return profile.Rule{}, false
	}
	st.layerRefs = append(st.layerRefs, arg{num: n, line: a.line, col: a.col})
	return profile.Rule{
		Kind: profile.ActionLayerTap,
		A:    uint16(n),
		B:    uint16(key),
		C:    DefaultThresholdMs,
	}, true
}

func callBody(s string) (string, bool) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return "", false
	}
	return s[open+1 : len(s)-1], true
}

func applyCondition(c *profile.Condition, a arg, negate bool, errs *ErrorList) bool {
	st := &blockState{errs: errs}
	switch {
	case strings.HasPrefix(a.text, "MD_"):
		id, ok := st.modifierID(a)
		if !ok {
			return false
		}
		if negate {
			c.ForbidMod(id)
		} else {
			c.RequireMod(id)
		}
		return true
	case strings.HasPrefix(a.text, "LK_"):
		id, ok := st.lockID(a)
		if !ok {
			return false
		}
		if negate {
			c.ForbidLock(id)
		} else {
			c.RequireLock(id)
		}
		return true
	}
	errs.add(ErrSyntax, a.line, a.col, "condition must be MD_xx or LK_xx, got %q", a.text)
	return false
}

// checkShadowing rejects rules that an earlier rule for the same source key
// makes unreachable. Under first-match, an earlier rule shadows a later one
// when its condition is satisfied by every state satisfying the later one
// (its required and forbidden sets are subsets). Partial overlap without
// subsumption stays legal; ordering it correctly is the author's contract.
func (st *blockState) checkShadowing() {
	for _, rules := range st.layers {
		for j := 1; j < len(rules); j++ {
			for i := 0; i < j; i++ {
				if rules[i].rule.Source != rules[j].rule.Source {
					continue
				}
				if subsumes(&rules[i].rule.Cond, &rules[j].rule.Cond) {
					st.errs.add(ErrDuplicateMapping, rules[j].line, rules[j].col,
						"mapping for %s is shadowed by the rule at line %d",
						rules[j].rule.Source, rules[i].line)
				}
			}
		}
	}
}

// subsumes reports whether condition a fires for every state that satisfies
// condition b.
func subsumes(a, b *profile.Condition) bool {
	for i := 0; i < 4; i++ {
		if a.RequiredMods[i]&^b.RequiredMods[i] != 0 {
			return false
		}
		if a.ForbiddenMods[i]&^b.ForbiddenMods[i] != 0 {
			return false
		}
	}
	if a.RequiredLocks&^b.RequiredLocks != 0 {
		return false
	}
	if a.ForbiddenLocks&^b.ForbiddenLocks != 0 {
		return false
	}
	return true
}

// SourceHash returns the BLAKE2b digest compilation stamps into artifacts,
// for cache keying.
func SourceHash(src string) [32]byte {
	return blake2b.Sum256([]byte(src))
}
