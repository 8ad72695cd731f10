package runtime

import (
	"keyrx/internal/keycode"
	"keyrx/internal/profile"
)

// Key DFA phases. Idle → Pending (tap/hold undecided) → Held, or Idle →
// Held directly for actions with no decision window.
type phase uint8

const (
	phaseIdle phase = iota
	phasePending
	phaseHeld
)

// keyState is one per-key-per-device DFA instance. The arena of these is
// allocated at device attach; nothing on the event path allocates.
type keyState struct {
	phase     phase
	rule      profile.Rule
	pressUs   uint64
	prevLayer uint16
}

// deviceState is the engine's per-device slot: resolved pattern index and
// the device-scoped layer. Modifier/lock bits live in ExtendedState and are
// never per-device.
type deviceState struct {
	id      DeviceID
	name    string
	pattern int // -1: no pattern matches; every key passes through
	layer   uint16
	oneShot int32 // pending one-shot layer, -1 when unarmed
	keys    []keyState
}

// Config holds engine tunables.
type Config struct {
	// DefaultThresholdMs is the tap-hold decision window for rules that do
	// not carry their own.
	DefaultThresholdMs uint16
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() Config {
	return Config{DefaultThresholdMs: 200}
}

// Engine is the remapping runtime. It is not safe for concurrent use: one
// goroutine owns it and serializes all Process/Tick/Flush calls; the
// daemon's processing loop is that goroutine.
type Engine struct {
	prof    *profile.Profile
	cfg     Config
	state   ExtendedState
	devices map[DeviceID]*deviceState
	order   []DeviceID
}

// New creates an engine bound to a validated profile.
func New(p *profile.Profile, cfg Config) *Engine {
	if cfg.DefaultThresholdMs == 0 {
		cfg.DefaultThresholdMs = DefaultConfig().DefaultThresholdMs
	}
	return &Engine{
		prof:    p,
		cfg:     cfg,
		devices: make(map[DeviceID]*deviceState),
	}
}

// Attach registers a device under its reported name and resolves its
// pattern. Attaching an already-known id re-resolves the name.
func (e *Engine) Attach(id DeviceID, name string) {
	if ds, ok := e.devices[id]; ok {
		ds.name = name
		ds.pattern = e.prof.MatchDevice(name)
		return
	}
	ds := &deviceState{
		id:      id,
		name:    name,
		pattern: e.prof.MatchDevice(name),
		oneShot: -1,
		keys:    make([]keyState, keycode.Count()),
	}
	e.devices[id] = ds
	e.order = append(e.order, id)
}

// Detach releases a device's held keys and forgets it. The returned slice
// extends out.
func (e *Engine) Detach(id DeviceID, out []OutputEvent) []OutputEvent {
	ds, ok := e.devices[id]
	if !ok {
		return out
	}
	out = e.flushDevice(ds, out)
	delete(e.devices, id)
	for i, d := range e.order {
		if d == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return out
}

// Process advances the engine by one raw event and appends the resulting
// output events to out. Timestamps are caller-supplied monotonic
// microseconds; the engine never reads a clock.
func (e *Engine) Process(id DeviceID, ev KeyEvent, nowUs uint64, out []OutputEvent) []OutputEvent {
	ds, ok := e.devices[id]
	if !ok {
		// Unknown device: pure pass-through, but track the key so the
		// release passes through too.
		e.Attach(id, "")
		ds = e.devices[id]
	}
	if !ev.Key.Valid() {
		return out
	}
	if ev.Press {
		return e.press(ds, ev.Key, nowUs, out)
	}
	return e.release(ds, ev.Key, nowUs, out)
}

func (e *Engine) press(ds *deviceState, key keycode.KeyCode, nowUs uint64, out []OutputEvent) []OutputEvent {
	ks := &ds.keys[key]
	if ks.phase != phaseIdle {
		// Auto-repeat while pending or held; adapters re-synthesize
		// repeats from the emitted state, so nothing to do.
		return out
	}

	// A press interrupts every pending tap-hold anywhere: interrupt
	// resolves to hold, at interrupt time, so chorded layer access never
	// waits out the tap window.
	e.resolvePendingAsHold()

	lookupLayer := ds.layer
	oneShotUsed := false
	if ds.oneShot >= 0 {
		lookupLayer = uint16(ds.oneShot)
		oneShotUsed = true
	}

	rule, found := e.lookup(ds, lookupLayer, key)
	if oneShotUsed {
		ds.oneShot = -1
	}
	if !found {
		rule = profile.Rule{Source: key, Kind: profile.ActionPassThrough, A: uint16(key)}
	}
	ks.rule = rule
	ks.pressUs = nowUs

	switch rule.Kind {
	case profile.ActionPassThrough, profile.ActionRemap:
		ks.phase = phaseHeld
		out = append(out, OutputEvent{Device: ds.id, Key: keycode.KeyCode(rule.A), Press: true})

	case profile.ActionModifiedOutput:
		ks.phase = phaseHeld
		out = append(out, OutputEvent{Device: ds.id, Key: keycode.KeyCode(rule.A), Press: true, Flags: rule.Flags})

	case profile.ActionModifier:
		ks.phase = phaseHeld
		e.state.SetMod(uint8(rule.A))

	case profile.ActionLock:
		ks.phase = phaseHeld
		e.state.ToggleLock(uint8(rule.A))

	case profile.ActionTapHold, profile.ActionLayerTap:
		ks.phase = phasePending

	case profile.ActionLayerMomentary:
		ks.phase = phaseHeld
		ks.prevLayer = ds.layer
		e.setLayer(ds, rule.A)

	case profile.ActionLayerTo:
		ks.phase = phaseHeld
		e.setLayer(ds, rule.A)

	case profile.ActionLayerToggle:
		ks.phase = phaseHeld
		if ds.layer == rule.A {
			ds.layer = 0
		} else {
			e.setLayer(ds, rule.A)
		}

	case profile.ActionLayerOneShot:
		ks.phase = phaseHeld
		if int(rule.A) < e.prof.Layers(ds.pattern) {
			ds.oneShot = int32(rule.A)
		}

	case profile.ActionMacro:
		ks.phase = phaseHeld
		out = e.playMacro(ds, rule, out)
	}
	return out
}

func (e *Engine) release(ds *deviceState, key keycode.KeyCode, nowUs uint64, out []OutputEvent) []OutputEvent {
	ks := &ds.keys[key]
	switch ks.phase {
	case phaseIdle:
		// Release with no matching press state (daemon restarted under a
		// held key, or duplicate release): ignored by design.
		return out

	case phasePending:
		if e.thresholdExceeded(ks, nowUs) {
			// Hold resolved only now, at release: activate and
			// immediately deactivate. Nothing is emitted, matching a
			// modifier pressed and released with no key in between.
		} else {
			out = e.emitTap(ds, ks, out)
		}
		ks.phase = phaseIdle
		return out

	case phaseHeld:
		out = e.releaseHeld(ds, ks, out)
		ks.phase = phaseIdle
		return out
	}
	return out
}

func (e *Engine) releaseHeld(ds *deviceState, ks *keyState, out []OutputEvent) []OutputEvent {
	switch ks.rule.Kind {
	case profile.ActionPassThrough, profile.ActionRemap:
		out = append(out, OutputEvent{Device: ds.id, Key: keycode.KeyCode(ks.rule.A), Press: false})
	case profile.ActionModifiedOutput:
		out = append(out, OutputEvent{Device: ds.id, Key: keycode.KeyCode(ks.rule.A), Press: false, Flags: ks.rule.Flags})
	case profile.ActionModifier:
		e.state.ClearMod(uint8(ks.rule.A))
	case profile.ActionTapHold:
		e.state.ClearMod(uint8(ks.rule.B))
	case profile.ActionLayerMomentary, profile.ActionLayerTap:
		ds.layer = ks.prevLayer
	}
	// Locks, TO/TG/OSL and macros are press-edge actions; their release
	// is a no-op.
	return out
}

// emitTap plays the tap side of a pending key: a full press+release of the
// tap key.
func (e *Engine) emitTap(ds *deviceState, ks *keyState, out []OutputEvent) []OutputEvent {
	var tap keycode.KeyCode
	switch ks.rule.Kind {
	case profile.ActionTapHold:
		tap = keycode.KeyCode(ks.rule.A)
	case profile.ActionLayerTap:
		tap = keycode.KeyCode(ks.rule.B)
	default:
		return out
	}
	out = append(out, OutputEvent{Device: ds.id, Key: tap, Press: true})
	out = append(out, OutputEvent{Device: ds.id, Key: tap, Press: false})
	return out
}

// resolvePendingAsHold commits every pending key, on every device, to its
// hold action. Interrupts and threshold expiry both land here.
func (e *Engine) resolvePendingAsHold() {
	for _, id := range e.order {
		ds := e.devices[id]
		for k := range ds.keys {
			ks := &ds.keys[k]
			if ks.phase == phasePending {
				e.holdResolve(ds, ks)
			}
		}
	}
}

func (e *Engine) holdResolve(ds *deviceState, ks *keyState) {
	switch ks.rule.Kind {
	case profile.ActionTapHold:
		e.state.SetMod(uint8(ks.rule.B))
	case profile.ActionLayerTap:
		ks.prevLayer = ds.layer
		e.setLayer(ds, ks.rule.A)
	}
	ks.phase = phaseHeld
}

// Tick resolves pending keys whose decision window has elapsed. The daemon
// calls it from a timer so a silently held key activates its hold action at
// the threshold, not at the next event.
func (e *Engine) Tick(nowUs uint64) {
	for _, id := range e.order {
		ds := e.devices[id]
		for k := range ds.keys {
			ks := &ds.keys[k]
			if ks.phase == phasePending && e.thresholdExceeded(ks, nowUs) {
				e.holdResolve(ds, ks)
			}
		}
	}
}

func (e *Engine) thresholdExceeded(ks *keyState, nowUs uint64) bool {
	if nowUs < ks.pressUs {
		return false
	}
	th := uint64(ks.rule.C)
	if th == 0 {
		th = uint64(e.cfg.DefaultThresholdMs)
	}
	return nowUs-ks.pressUs >= th*1000
}

// Flush synthesizes release actions for every non-idle key across all
// devices: exactly one release per held key with visible output, state bits
// cleared for the rest. Pending keys are cancelled without emitting their
// tap, so shutdown never types anything.
func (e *Engine) Flush(out []OutputEvent) []OutputEvent {
	for _, id := range e.order {
		out = e.flushDevice(e.devices[id], out)
	}
	return out
}

func (e *Engine) flushDevice(ds *deviceState, out []OutputEvent) []OutputEvent {
	for k := range ds.keys {
		ks := &ds.keys[k]
		switch ks.phase {
		case phaseHeld:
			out = e.releaseHeld(ds, ks, out)
		case phasePending:
			// Nothing was emitted for this key; cancelling it leaves
			// no stuck output.
		case phaseIdle:
			continue
		}
		ks.phase = phaseIdle
	}
	ds.oneShot = -1
	ds.layer = 0
	return out
}

func (e *Engine) playMacro(ds *deviceState, rule profile.Rule, out []OutputEvent) []OutputEvent {
	total := e.prof.MacroSteps()
	delay := uint16(0)
	for i := 0; i < int(rule.B); i++ {
		idx := int(rule.A) + i
		if idx >= total {
			break
		}
		step := e.prof.MacroStepAt(idx)
		out = append(out, OutputEvent{Device: ds.id, Key: step.Key, Press: true, DelayMs: delay})
		out = append(out, OutputEvent{Device: ds.id, Key: step.Key, Press: false})
		delay = step.DelayMs
	}
	return out
}

func (e *Engine) lookup(ds *deviceState, layer uint16, key keycode.KeyCode) (profile.Rule, bool) {
	if ds.pattern < 0 || int(layer) >= e.prof.Layers(ds.pattern) {
		return profile.Rule{}, false
	}
	n := e.prof.RuleCount(ds.pattern, int(layer))
	var r profile.Rule
	for i := 0; i < n; i++ {
		e.prof.RuleAt(ds.pattern, int(layer), i, &r)
		if r.Source == key && e.state.Satisfies(&r.Cond) {
			return r, true
		}
	}
	return profile.Rule{}, false
}

func (e *Engine) setLayer(ds *deviceState, layer uint16) {
	if ds.pattern >= 0 && int(layer) < e.prof.Layers(ds.pattern) {
		ds.layer = layer
	}
}

// SetProfile swaps the compiled profile. All held keys are flushed first so
// no key stays stuck across the swap; locks survive, momentary state does
// not. The returned slice extends out.
func (e *Engine) SetProfile(p *profile.Profile, out []OutputEvent) []OutputEvent {
	out = e.Flush(out)
	e.prof = p
	for _, id := range e.order {
		ds := e.devices[id]
		ds.pattern = p.MatchDevice(ds.name)
		ds.layer = 0
		ds.oneShot = -1
	}
	return out
}

// Profile returns the currently active profile.
func (e *Engine) Profile() *profile.Profile { return e.prof }

// Snapshot is a control-plane view of the shared state.
type Snapshot struct {
	Modifiers []uint8           `json:"modifiers"`
	Locks     []uint8           `json:"locks"`
	Layers    map[string]uint16 `json:"layers"`
}

// Snapshot captures the current extended state for the control plane. It
// allocates; callers are off the hot path by definition.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Modifiers: e.state.ActiveModifiers(),
		Locks:     e.state.ActiveLocks(),
		Layers:    make(map[string]uint16, len(e.order)),
	}
	for _, id := range e.order {
		ds := e.devices[id]
		s.Layers[id.String()] = ds.layer
	}
	return s
}
