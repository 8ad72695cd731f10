package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/blake2b"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "keyrx.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProfileRoundTrip(t *testing.T) {
	s := openTestStore(t)

	hash := blake2b.Sum256([]byte("source"))
	in := &CachedProfile{
		SourceHash:      hash,
		Compiled:        []byte{0x48, 0x52, 0x58, 0x50, 1, 2, 3},
		CompilerVersion: "0.4.0",
		CompiledAt:      time.Now().Truncate(time.Microsecond),
		SourceSize:      6,
	}
	if err := s.PutProfile(in); err != nil {
		t.Fatalf("put: %v", err)
	}

	out, err := s.GetProfile(hash)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(out.Compiled) != string(in.Compiled) {
		t.Error("compiled bytes differ")
	}
	if out.CompilerVersion != "0.4.0" {
		t.Errorf("compiler version = %q", out.CompilerVersion)
	}
	if !out.CompiledAt.Equal(in.CompiledAt) {
		t.Errorf("compiled at = %v, want %v", out.CompiledAt, in.CompiledAt)
	}
	if out.SourceSize != 6 {
		t.Errorf("source size = %d", out.SourceSize)
	}
}

func TestGetProfileMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetProfile(blake2b.Sum256([]byte("nope")))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPutProfileReplaces(t *testing.T) {
	s := openTestStore(t)
	hash := blake2b.Sum256([]byte("src"))

	for _, version := range []string{"0.3.0", "0.4.0"} {
		err := s.PutProfile(&CachedProfile{
			SourceHash:      hash,
			Compiled:        []byte(version),
			CompilerVersion: version,
			CompiledAt:      time.Now(),
		})
		if err != nil {
			t.Fatalf("put %s: %v", version, err)
		}
	}

	out, err := s.GetProfile(hash)
	if err != nil {
		t.Fatal(err)
	}
	if out.CompilerVersion != "0.4.0" {
		t.Errorf("version = %q, want newest", out.CompilerVersion)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Profiles != 1 {
		t.Errorf("profiles = %d, want 1", stats.Profiles)
	}
}

func TestHasProfile(t *testing.T) {
	s := openTestStore(t)
	hash := blake2b.Sum256([]byte("src"))

	ok, err := s.HasProfile(hash)
	if err != nil || ok {
		t.Errorf("has = %v, %v; want false, nil", ok, err)
	}

	if err := s.PutProfile(&CachedProfile{SourceHash: hash, Compiled: []byte{1}, CompilerVersion: "0.4.0", CompiledAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	ok, err = s.HasProfile(hash)
	if err != nil || !ok {
		t.Errorf("has = %v, %v; want true, nil", ok, err)
	}
}

func TestActivationHistory(t *testing.T) {
	s := openTestStore(t)
	hash := blake2b.Sum256([]byte("src"))
	if err := s.PutProfile(&CachedProfile{SourceHash: hash, Compiled: []byte{1}, CompilerVersion: "0.4.0", CompiledAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	base := time.Now().Truncate(time.Microsecond)
	for i, reason := range []string{ReasonStartup, ReasonReload, ReasonManual} {
		if err := s.RecordActivation(hash, reason, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	acts, err := s.Activations(10)
	if err != nil {
		t.Fatalf("activations: %v", err)
	}
	if len(acts) != 3 {
		t.Fatalf("len = %d, want 3", len(acts))
	}
	// Newest first.
	if acts[0].Reason != ReasonManual || acts[2].Reason != ReasonStartup {
		t.Errorf("order wrong: %v, %v", acts[0].Reason, acts[2].Reason)
	}
	if acts[0].SourceHash != hash {
		t.Error("source hash mismatch")
	}

	if err := s.PruneActivations(1); err != nil {
		t.Fatalf("prune: %v", err)
	}
	acts, err = s.Activations(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(acts) != 1 || acts[0].Reason != ReasonManual {
		t.Errorf("after prune: %v", acts)
	}
}

func TestDeleteProfileCascades(t *testing.T) {
	s := openTestStore(t)
	hash := blake2b.Sum256([]byte("src"))
	if err := s.PutProfile(&CachedProfile{SourceHash: hash, Compiled: []byte{1}, CompilerVersion: "0.4.0", CompiledAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordActivation(hash, ReasonStartup, time.Now()); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteProfile(hash); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetProfile(hash); !errors.Is(err, ErrNotFound) {
		t.Errorf("profile should be gone, got %v", err)
	}
	acts, err := s.Activations(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(acts) != 0 {
		t.Errorf("activations should be gone, got %d", len(acts))
	}
}

func TestDeviceRegistry(t *testing.T) {
	s := openTestStore(t)

	var idA, idB [16]byte
	idA[0], idB[0] = 0xAA, 0xBB
	t0 := time.Now().Truncate(time.Microsecond)

	if err := s.TouchDevice(idA, "USB Keyboard", t0); err != nil {
		t.Fatal(err)
	}
	if err := s.TouchDevice(idB, "Foot Pedal", t0.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	// Re-seen later under a new name: name and last_seen update, first_seen
	// stays.
	if err := s.TouchDevice(idA, "USB Keyboard v2", t0.Add(2*time.Second)); err != nil {
		t.Fatal(err)
	}

	devices, err := s.Devices()
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("len = %d, want 2", len(devices))
	}
	if devices[0].DeviceID != idA {
		t.Error("most recently seen device should sort first")
	}
	if devices[0].Name != "USB Keyboard v2" {
		t.Errorf("name = %q", devices[0].Name)
	}
	if !devices[0].FirstSeen.Equal(t0) {
		t.Errorf("first seen = %v, want %v", devices[0].FirstSeen, t0)
	}
}
