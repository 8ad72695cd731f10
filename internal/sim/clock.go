// Package sim drives the runtime engine with a virtual clock and scripted
// or generated event sequences, for deterministic verification without
// hardware. Identical (profile, script, seed) inputs always produce
// byte-identical transcripts.
package sim

// Clock is the harness's virtual time source. Time only moves when a script
// says so; the engine's timestamp parameter is fed exclusively from here.
type Clock struct {
	nowUs uint64
}

// NowUs returns the current virtual time in microseconds.
func (c *Clock) NowUs() uint64 { return c.nowUs }

// AdvanceMs moves virtual time forward.
func (c *Clock) AdvanceMs(ms uint64) { c.nowUs += ms * 1000 }
