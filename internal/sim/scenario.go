package sim

import (
	"fmt"
	"sort"

	"keyrx/internal/compiler"
	"keyrx/internal/profile"
	"keyrx/internal/runtime"
)

// Scenario is a named, self-contained simulation: a configuration source, a
// script, and the transcript the run must produce.
type Scenario struct {
	Name   string `json:"name"`
	Config string `json:"config"`
	Script string `json:"script"`
	Expect string `json:"expect"`
}

// Built-in scenarios covering the tap-hold decision edges. These double as
// conformance checks for alternative engine ports: same script, same
// transcript, or the port is wrong.
var builtins = []Scenario{
	{
		Name: "tap-under-threshold",
		Config: `when_device_start("*")
	tap_hold("Space", "VK_Space", "MD_00", 200)
when_device_end()`,
		Script: "press:Space,wait:50,release:Space",
		Expect: "sim press Space\nsim release Space\n",
	},
	{
		Name: "hold-over-threshold",
		Config: `when_device_start("*")
	tap_hold("Space", "VK_Space", "MD_00", 200)
	when("MD_00") {
		map("J", "VK_Left")
	}
when_device_end()`,
		Script: "press:Space,wait:250,press:J,release:J,release:Space",
		Expect: "sim press Left\nsim release Left\n",
	},
	{
		Name: "interrupt-resolves-to-hold",
		Config: `when_device_start("*")
	tap_hold("Space", "VK_Space", "MD_00", 200)
	when("MD_00") {
		map("J", "VK_Left")
	}
when_device_end()`,
		Script: "press:Space,wait:20,press:J,release:J,release:Space",
		Expect: "sim press Left\nsim release Left\n",
	},
	{
		Name: "shutdown-release",
		Config: `when_device_start("*")
	map("CapsLock", "VK_Escape")
when_device_end()`,
		Script: "press:CapsLock,flush",
		Expect: "sim press Escape\nsim release Escape\n",
	},
}

// Builtin returns the named built-in scenario.
func Builtin(name string) (Scenario, error) {
	for _, s := range builtins {
		if s.Name == name {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("no built-in scenario %q", name)
}

// Play compiles a scenario's configuration, replays its script, and checks
// the transcript against the expectation. The result is returned either way
// so callers can print the actual transcript on mismatch.
func Play(s Scenario, cfg runtime.Config) (*Result, error) {
	data, err := compiler.Compile(s.Config)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	prof, err := profile.Load(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	res, err := RunScript(prof, s.Script, cfg)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	if s.Expect != "" && res.Transcript() != s.Expect {
		return res, fmt.Errorf("scenario %s: transcript mismatch\nwant:\n%sgot:\n%s", s.Name, s.Expect, res.Transcript())
	}
	return res, nil
}

// BuiltinNames lists the built-in scenarios, sorted.
func BuiltinNames() []string {
	names := make([]string, len(builtins))
	for i, s := range builtins {
		names[i] = s.Name
	}
	sort.Strings(names)
	return names
}
