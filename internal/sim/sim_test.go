package sim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"keyrx/internal/compiler"
	"keyrx/internal/keycode"
	"keyrx/internal/profile"
	"keyrx/internal/runtime"
)

func mustProfile(t *testing.T, src string) *profile.Profile {
	t.Helper()
	data, err := compiler.Compile(src)
	require.NoError(t, err)
	p, err := profile.Load(data)
	require.NoError(t, err)
	return p
}

func TestBuiltinScenarios(t *testing.T) {
	for _, name := range BuiltinNames() {
		t.Run(name, func(t *testing.T) {
			s, err := Builtin(name)
			require.NoError(t, err)
			res, err := Play(s, runtime.DefaultConfig())
			require.NoError(t, err)
			require.Equal(t, s.Expect, res.Transcript())
		})
	}
}

func TestBuiltinUnknown(t *testing.T) {
	_, err := Builtin("no-such-scenario")
	require.Error(t, err)
}

func TestParseScript(t *testing.T) {
	steps, err := ParseScript("device:kb, press:A, wait:50, release:A, flush")
	require.NoError(t, err)
	require.Len(t, steps, 5)
	require.Equal(t, stepDevice, steps[0].kind)
	require.Equal(t, "kb", steps[0].device)
	require.Equal(t, keycode.A, steps[1].key)
	require.Equal(t, uint64(50), steps[2].waitMs)
	require.Equal(t, stepFlush, steps[4].kind)
}

func TestParseScriptErrors(t *testing.T) {
	for _, src := range []string{
		"press:NotAKey",
		"wait:abc",
		"press",
		"device:",
		"teleport:A",
	} {
		_, err := ParseScript(src)
		require.Error(t, err, "script %q", src)
	}
}

// Same script, same profile, same bytes out. Runs the generated soak script
// twice and compares transcripts verbatim.
func TestRunDeterministic(t *testing.T) {
	prof := mustProfile(t, `
		when_device_start("*")
			tap_hold("Space", "VK_Space", "MD_00", 200)
			map("CapsLock", "VK_Escape")
			when("MD_00") {
				map("J", "VK_Down")
				map("K", "VK_Up")
			}
		when_device_end()
	`)
	pool := []keycode.KeyCode{keycode.Space, keycode.CapsLock, keycode.J, keycode.K, keycode.A}
	steps := Generate(42, 400, pool)

	first, err := Run(prof, steps, runtime.DefaultConfig())
	require.NoError(t, err)
	second, err := Run(prof, steps, runtime.DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, first.Transcript(), second.Transcript())
	require.NotEmpty(t, first.Events)
}

func TestGenerateSeeded(t *testing.T) {
	pool := []keycode.KeyCode{keycode.A, keycode.B}
	a := Generate(7, 50, pool)
	b := Generate(7, 50, pool)
	require.Equal(t, a, b)
	c := Generate(8, 50, pool)
	require.NotEqual(t, a, c)
}

// Modifier state is shared across devices: a modifier held on one keyboard
// conditions a mapping fired from another.
func TestCrossDeviceScript(t *testing.T) {
	prof := mustProfile(t, `
		device_start("Pedal")
			map("Space", "MD_00")
		device_end()
		when_device_start("*")
			when("MD_00") {
				map("J", "VK_Left")
			}
		when_device_end()
	`)
	res, err := RunScript(prof, `
		device:Pedal
		press:Space
		device:Main
		press:J
		release:J
		device:Pedal
		release:Space
	`, runtime.DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, "Main press Left\nMain release Left\n", res.Transcript())
}

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(`{
		"name": "x",
		"config": "when_device_start(\"*\")\n\tmap(\"A\", \"VK_B\")\nwhen_device_end()",
		"script": "press:A,release:A",
		"expect": "sim press B\nsim release B\n"
	}`))
	require.NoError(t, err)
	_, err = Play(s, runtime.DefaultConfig())
	require.NoError(t, err)
}

func TestParseScenarioRejectsBadDocuments(t *testing.T) {
	for name, doc := range map[string]string{
		"missing field": `{"name": "x", "script": "press:A", "expect": ""}`,
		"extra field":   `{"name": "x", "config": "c", "script": "s", "expect": "", "seed": 1}`,
		"empty name":    `{"name": "", "config": "c", "script": "s", "expect": ""}`,
		"not json":      `press:A`,
	} {
		_, err := ParseScenario([]byte(doc))
		require.Error(t, err, name)
	}
}

func TestTranscriptRendersFlagsAndDelay(t *testing.T) {
	prof := mustProfile(t, `
		when_device_start("*")
			map("F1", "VK_2+Shift")
			macro("F5", "VK_H:10,VK_I")
		when_device_end()
	`)
	res, err := RunScript(prof, "press:F1,release:F1,press:F5,release:F5", runtime.DefaultConfig())
	require.NoError(t, err)
	out := res.Transcript()
	require.Contains(t, out, "flags=")
	require.Contains(t, out, "delay=10ms")
}
