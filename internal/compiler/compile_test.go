package compiler

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"keyrx/internal/keycode"
	"keyrx/internal/profile"
)

func kinds(t *testing.T, err error) []ErrorKind {
	t.Helper()
	var list ErrorList
	require.True(t, errors.As(err, &list), "error must be an ErrorList, got %T", err)
	out := make([]ErrorKind, len(list))
	for i, e := range list {
		out[i] = e.Kind
	}
	return out
}

func TestCompileMinimal(t *testing.T) {
	data, err := Compile(`
		// remap caps to escape everywhere
		when_device_start("*")
			map("CapsLock", "VK_Escape")
		when_device_end()
	`)
	require.NoError(t, err)

	p, err := profile.Load(data)
	require.NoError(t, err)
	require.Equal(t, 1, p.Patterns())
	require.Equal(t, "*", p.PatternName(0))
	require.Equal(t, 1, p.RuleCount(0, 0))

	var r profile.Rule
	p.RuleAt(0, 0, 0, &r)
	require.Equal(t, keycode.CapsLock, r.Source)
	require.Equal(t, profile.ActionRemap, r.Kind)
	require.Equal(t, uint16(keycode.Escape), r.A)
}

// Same source, same bytes: compilation is deterministic and repeatable.
func TestCompileDeterministic(t *testing.T) {
	src := `
		device_start("My Board")
			map("LShift", "MD_00")
			when("MD_00") {
				map("H", "VK_Left")
				map("J", "VK_Down")
			}
			tap_hold("CapsLock", "VK_Escape", "MD_01", 180)
			macro("F5", "VK_H:10,VK_I")
		device_end()
		when_device_start("*")
			map("ScrollLock", "LK_00")
		when_device_end()
	`
	a, err := Compile(src)
	require.NoError(t, err)
	b, err := Compile(src)
	require.NoError(t, err)
	require.True(t, bytes.Equal(a, b))
}

func TestModifierTargetLeavesNoRemap(t *testing.T) {
	data, err := Compile(`
		when_device_start("*")
			map("CapsLock", "MD_0A")
		when_device_end()
	`)
	require.NoError(t, err)
	p, err := profile.Load(data)
	require.NoError(t, err)

	var r profile.Rule
	p.RuleAt(0, 0, 0, &r)
	require.Equal(t, profile.ActionModifier, r.Kind)
	require.Equal(t, uint16(0x0A), r.A)
}

func TestWhenBlocksBecomeLayers(t *testing.T) {
	// Most-specific condition first, per the documented first-match
	// ordering contract.
	data, err := Compile(`
		when_device_start("*")
			when("MD_00", "LK_01") {
				map("H", "VK_Home")
			}
			when("MD_00") {
				map("H", "VK_Left")
			}
		when_device_end()
	`)
	require.NoError(t, err)
	p, err := profile.Load(data)
	require.NoError(t, err)

	// Base layer plus one layer per distinct condition set.
	require.Equal(t, 3, p.Layers(0))
	require.Equal(t, 2, p.RuleCount(0, 0))
	require.Equal(t, 1, p.RuleCount(0, 1))
	require.Equal(t, 1, p.RuleCount(0, 2))

	// Base-layer copies keep their conditions; layer copies are bare.
	var r profile.Rule
	p.RuleAt(0, 0, 0, &r)
	require.Equal(t, uint64(1), r.Cond.RequiredMods[0])
	require.Equal(t, uint64(2), r.Cond.RequiredLocks)
	p.RuleAt(0, 1, 0, &r)
	require.True(t, r.Cond.Empty())
}

func TestNestedWhenComposesAnd(t *testing.T) {
	data, err := Compile(`
		when_device_start("*")
			when("MD_00") {
				when("LK_01") {
					map("H", "VK_Home")
				}
			}
		when_device_end()
	`)
	require.NoError(t, err)
	p, err := profile.Load(data)
	require.NoError(t, err)

	var r profile.Rule
	p.RuleAt(0, 0, 0, &r)
	require.Equal(t, uint64(1), r.Cond.RequiredMods[0])
	require.Equal(t, uint64(2), r.Cond.RequiredLocks)
}

func TestWhenNotSetsForbiddenBits(t *testing.T) {
	data, err := Compile(`
		when_device_start("*")
			when_not("MD_00") {
				map("H", "VK_H")
			}
		when_device_end()
	`)
	require.NoError(t, err)
	p, err := profile.Load(data)
	require.NoError(t, err)

	var r profile.Rule
	p.RuleAt(0, 0, 0, &r)
	require.Equal(t, uint64(1), r.Cond.ForbiddenMods[0])
	require.Equal(t, uint64(0), r.Cond.RequiredMods[0])
}

func TestUnknownKeyError(t *testing.T) {
	_, err := Compile(`
		when_device_start("*")
			map("NotAKey", "VK_B")
			map("A", "VK_AlsoNotAKey")
		when_device_end()
	`)
	require.Error(t, err)
	require.Equal(t, []ErrorKind{ErrUnknownKey, ErrUnknownKey}, kinds(t, err))
}

// An unconditional rule declared before a conditional one for the same key
// shadows it under first-match; the compiler rejects the source.
func TestShadowedMappingRejected(t *testing.T) {
	_, err := Compile(`
		when_device_start("*")
			map("J", "VK_X")
			when("MD_00") {
				map("J", "VK_Left")
			}
		when_device_end()
	`)
	require.Error(t, err)
	require.Contains(t, kinds(t, err), ErrDuplicateMapping)
}

// Conditional before unconditional is the documented ordering and is legal.
func TestConditionalBeforeUnconditionalAllowed(t *testing.T) {
	_, err := Compile(`
		when_device_start("*")
			when("MD_00") {
				map("J", "VK_Left")
			}
			map("J", "VK_X")
		when_device_end()
	`)
	require.NoError(t, err)
}

func TestExactDuplicateRejected(t *testing.T) {
	_, err := Compile(`
		when_device_start("*")
			map("A", "VK_B")
			map("A", "VK_C")
		when_device_end()
	`)
	require.Error(t, err)
	require.Contains(t, kinds(t, err), ErrDuplicateMapping)
}

// Partial overlap without subsumption is the author's ordering problem, not
// a compile error.
func TestPartialOverlapAllowed(t *testing.T) {
	_, err := Compile(`
		when_device_start("*")
			when("MD_00") {
				map("J", "VK_Left")
			}
			when("MD_01") {
				map("J", "VK_Right")
			}
		when_device_end()
	`)
	require.NoError(t, err)
}

func TestUnterminatedBlock(t *testing.T) {
	_, err := Compile(`
		device_start("Board")
			map("A", "VK_B")
	`)
	require.Error(t, err)
	require.Contains(t, kinds(t, err), ErrUnterminatedBlock)
}

func TestUnterminatedWhen(t *testing.T) {
	_, err := Compile(`
		device_start("Board")
			when("MD_00") {
				map("A", "VK_B")
		device_end()
	`)
	require.Error(t, err)
	require.Contains(t, kinds(t, err), ErrUnterminatedBlock)
}

func TestModifierIDRange(t *testing.T) {
	_, err := Compile(`
		when_device_start("*")
			map("A", "MD_FF")
		when_device_end()
	`)
	require.Error(t, err)
	require.Contains(t, kinds(t, err), ErrIDOutOfRange)
}

func TestLockIDRange(t *testing.T) {
	_, err := Compile(`
		when_device_start("*")
			map("A", "LK_40")
		when_device_end()
	`)
	require.Error(t, err)
	require.Contains(t, kinds(t, err), ErrIDOutOfRange)
}

func TestPhysicalModifierRejectedAsMD(t *testing.T) {
	_, err := Compile(`
		when_device_start("*")
			map("CapsLock", "MD_LShift")
		when_device_end()
	`)
	require.Error(t, err)
	require.Contains(t, kinds(t, err), ErrInvalidTarget)
}

func TestLayerReferenceOutOfRange(t *testing.T) {
	_, err := Compile(`
		when_device_start("*")
			map("Space", "MO(3)")
		when_device_end()
	`)
	require.Error(t, err)
	require.Contains(t, kinds(t, err), ErrIDOutOfRange)
}

func TestLayerReferenceValid(t *testing.T) {
	_, err := Compile(`
		when_device_start("*")
			when("MD_00") {
				map("H", "VK_Left")
			}
			map("Space", "MO(1)")
		when_device_end()
	`)
	require.NoError(t, err)
}

func TestErrorsCarryPositions(t *testing.T) {
	_, err := Compile("when_device_start(\"*\")\n\tmap(\"Bogus\", \"VK_B\")\nwhen_device_end()")
	var list ErrorList
	require.ErrorAs(t, err, &list)
	require.Len(t, list, 1)
	require.Equal(t, 2, list[0].Line)
}

func TestErrorsAreCollectedNotFailFast(t *testing.T) {
	_, err := Compile(`
		when_device_start("*")
			map("Bogus1", "VK_B")
			map("A", "MD_ZZ")
			map("Bogus2", "VK_C")
		when_device_end()
	`)
	var list ErrorList
	require.ErrorAs(t, err, &list)
	require.GreaterOrEqual(t, len(list), 3)
}

func TestEmptyPatternRejected(t *testing.T) {
	_, err := Compile(`
		when_device_start("")
		when_device_end()
	`)
	require.Error(t, err)
	require.Contains(t, kinds(t, err), ErrInvalidPattern)
}

func TestExactDeviceNameRejectsGlob(t *testing.T) {
	_, err := Compile(`
		device_start("USB Keyboard *")
			map("A", "VK_B")
		device_end()
	`)
	require.Error(t, err)
	require.Contains(t, kinds(t, err), ErrInvalidPattern)
}

func TestSourceHashStamped(t *testing.T) {
	src := `
		when_device_start("*")
			map("A", "VK_B")
		when_device_end()
	`
	data, err := Compile(src)
	require.NoError(t, err)
	p, err := profile.Load(data)
	require.NoError(t, err)
	require.Equal(t, SourceHash(src), p.SourceHash())
	require.Equal(t, CompilerVersion, p.Meta().CompilerVersion)
	require.Zero(t, p.Meta().CompiledAt, "reproducible builds zero the timestamp")
}

func TestCompiledAtOption(t *testing.T) {
	src := `
		when_device_start("*")
			map("A", "VK_B")
		when_device_end()
	`
	data, err := CompileWithOptions(src, Options{CompiledAt: 1700000000})
	require.NoError(t, err)
	p, err := profile.Load(data)
	require.NoError(t, err)
	require.Equal(t, uint64(1700000000), p.Meta().CompiledAt)
}

func TestLayerTapTarget(t *testing.T) {
	data, err := Compile(`
		when_device_start("*")
			when("LK_00") {
				map("H", "VK_Left")
			}
			map("Space", "LT(1, VK_Space)")
		when_device_end()
	`)
	require.NoError(t, err)
	p, err := profile.Load(data)
	require.NoError(t, err)

	var r profile.Rule
	p.RuleAt(0, 0, 1, &r)
	require.Equal(t, profile.ActionLayerTap, r.Kind)
	require.Equal(t, uint16(1), r.A)
	require.Equal(t, uint16(keycode.Space), r.B)
	require.Equal(t, uint16(DefaultThresholdMs), r.C)
}
