package platform

import "time"

var monoBase = time.Now()

// MonotonicUs is the event timebase: microseconds since process start,
// from Go's monotonic clock. Devices stamp events with it rather than the
// kernel's realtime timestamps so engine time and the daemon's tick share
// one clock that never jumps.
func MonotonicUs() uint64 {
	return uint64(time.Since(monoBase).Microseconds())
}
