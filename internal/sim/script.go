package sim

import (
	"fmt"
	"strconv"
	"strings"

	"keyrx/internal/keycode"
)

// stepKind discriminates script steps.
type stepKind int

const (
	stepPress stepKind = iota
	stepRelease
	stepWait
	stepDevice
	stepFlush
)

// Step is one parsed script instruction.
type Step struct {
	kind   stepKind
	key    keycode.KeyCode
	waitMs uint64
	device string
}

// ParseScript parses the textual event DSL:
//
//	press:A,wait:50,release:A
//
// Steps are comma- or newline-separated. `device:Name` switches the device
// subsequent events are attributed to (devices are attached on first use);
// `flush` synthesizes the shutdown release pass.
func ParseScript(src string) ([]Step, error) {
	var steps []Step
	fields := strings.FieldsFunc(src, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		op, arg, hasArg := strings.Cut(f, ":")
		op = strings.TrimSpace(op)
		arg = strings.TrimSpace(arg)
		switch op {
		case "press", "release":
			if !hasArg {
				return nil, fmt.Errorf("script step %d: %s needs a key", i+1, op)
			}
			key, ok := keycode.Resolve(arg)
			if !ok {
				return nil, fmt.Errorf("script step %d: unknown key %q", i+1, arg)
			}
			k := stepPress
			if op == "release" {
				k = stepRelease
			}
			steps = append(steps, Step{kind: k, key: key})
		case "wait":
			ms, err := strconv.ParseUint(arg, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("script step %d: bad wait duration %q", i+1, arg)
			}
			steps = append(steps, Step{kind: stepWait, waitMs: ms})
		case "device":
			if arg == "" {
				return nil, fmt.Errorf("script step %d: device needs a name", i+1)
			}
			steps = append(steps, Step{kind: stepDevice, device: arg})
		case "flush":
			steps = append(steps, Step{kind: stepFlush})
		default:
			return nil, fmt.Errorf("script step %d: unknown op %q", i+1, op)
		}
	}
	return steps, nil
}
