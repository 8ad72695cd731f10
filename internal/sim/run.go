package sim

import (
	"fmt"
	"math/rand"
	"strings"

	"keyrx/internal/keycode"
	"keyrx/internal/profile"
	"keyrx/internal/runtime"
)

// Result is the outcome of one simulation run.
type Result struct {
	Events []runtime.OutputEvent
	// FinalUs is the virtual clock at the end of the run.
	FinalUs uint64
	// Devices maps the script device names to their derived ids, in
	// first-use order.
	Devices []NamedDevice
}

// NamedDevice pairs a script device name with its derived id.
type NamedDevice struct {
	Name string
	ID   runtime.DeviceID
}

// Run replays a parsed script against a fresh engine bound to prof. Time is
// fully virtual: wait steps advance the clock and tick the engine, so two
// runs of the same script on the same profile produce identical output.
func Run(prof *profile.Profile, steps []Step, cfg runtime.Config) (*Result, error) {
	eng := runtime.New(prof, cfg)
	var clk Clock
	res := &Result{}

	ids := map[string]runtime.DeviceID{}
	cur := deviceFor("sim", ids, eng, res)

	for i, st := range steps {
		switch st.kind {
		case stepDevice:
			cur = deviceFor(st.device, ids, eng, res)
		case stepWait:
			clk.AdvanceMs(st.waitMs)
			eng.Tick(clk.NowUs())
		case stepPress:
			res.Events = eng.Process(cur, runtime.KeyEvent{Key: st.key, Press: true}, clk.NowUs(), res.Events)
		case stepRelease:
			res.Events = eng.Process(cur, runtime.KeyEvent{Key: st.key, Press: false}, clk.NowUs(), res.Events)
		case stepFlush:
			res.Events = eng.Flush(res.Events)
		default:
			return nil, fmt.Errorf("script step %d: unhandled kind %d", i+1, st.kind)
		}
	}
	res.FinalUs = clk.NowUs()
	return res, nil
}

// RunScript parses and replays a textual script in one call.
func RunScript(prof *profile.Profile, script string, cfg runtime.Config) (*Result, error) {
	steps, err := ParseScript(script)
	if err != nil {
		return nil, err
	}
	return Run(prof, steps, cfg)
}

func deviceFor(name string, ids map[string]runtime.DeviceID, eng *runtime.Engine, res *Result) runtime.DeviceID {
	if id, ok := ids[name]; ok {
		return id
	}
	id := runtime.DeriveDeviceID(name)
	ids[name] = id
	eng.Attach(id, name)
	res.Devices = append(res.Devices, NamedDevice{Name: name, ID: id})
	return id
}

// Transcript renders a run's output as one line per event, device ids
// replaced by their script names. The rendering is byte-stable; tests compare
// transcripts of repeated runs for equality.
func (r *Result) Transcript() string {
	names := map[runtime.DeviceID]string{}
	for _, d := range r.Devices {
		names[d.ID] = d.Name
	}
	var b strings.Builder
	for _, ev := range r.Events {
		dev, ok := names[ev.Device]
		if !ok {
			dev = ev.Device.String()
		}
		edge := "release"
		if ev.Press {
			edge = "press"
		}
		fmt.Fprintf(&b, "%s %s %s", dev, edge, ev.Key)
		if ev.Flags != 0 {
			fmt.Fprintf(&b, " flags=%#02x", ev.Flags)
		}
		if ev.DelayMs != 0 {
			fmt.Fprintf(&b, " delay=%dms", ev.DelayMs)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Generate builds a random but reproducible script: same seed, same script.
// Keys are drawn from pool, gestures from a small set of press/release
// shapes with jittered waits. Used for soak-style determinism checks.
func Generate(seed int64, n int, pool []keycode.KeyCode) []Step {
	rng := rand.New(rand.NewSource(seed))
	var steps []Step
	held := map[keycode.KeyCode]bool{}
	for len(steps) < n {
		key := pool[rng.Intn(len(pool))]
		if held[key] {
			steps = append(steps, Step{kind: stepRelease, key: key})
			held[key] = false
			continue
		}
		steps = append(steps, Step{kind: stepPress, key: key})
		held[key] = true
		if wait := rng.Intn(4); wait > 0 {
			steps = append(steps, Step{kind: stepWait, waitMs: uint64(wait) * 30})
		}
		if rng.Intn(3) > 0 {
			steps = append(steps, Step{kind: stepRelease, key: key})
			held[key] = false
		}
	}
	// Close out anything still held so runs end clean. Iterate by code, not
	// over the map, so the release order is deterministic.
	for key := keycode.KeyCode(0); int(key) < keycode.Count(); key++ {
		if held[key] {
			steps = append(steps, Step{kind: stepRelease, key: key})
		}
	}
	steps = append(steps, Step{kind: stepFlush})
	return steps
}
