// Package store persists compiled profiles and daemon history in SQLite.
package store

import "time"

// CachedProfile is one compiled artifact, keyed by the BLAKE2b-256 hash of
// the mapping source that produced it.
type CachedProfile struct {
	SourceHash      [32]byte
	Compiled        []byte
	CompilerVersion string
	CompiledAt      time.Time
	SourceSize      int64
}

// Activation records a profile becoming active in the engine.
type Activation struct {
	ID          int64
	SourceHash  [32]byte
	ActivatedAt time.Time
	Reason      string
}

// Activation reasons.
const (
	ReasonStartup = "startup"
	ReasonReload  = "reload"
	ReasonManual  = "manual"
)

// DeviceRecord tracks an input device the daemon has managed.
type DeviceRecord struct {
	DeviceID  [16]byte
	Name      string
	FirstSeen time.Time
	LastSeen  time.Time
}
