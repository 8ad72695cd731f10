package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/blake2b"
)

func TestHashFile(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "mapping.krx")
	content := []byte(`when_device_start("*")` + "\n" + `when_device_end()` + "\n")

	if err := os.WriteFile(testFile, content, 0o600); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	hash1, size1, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	if size1 != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), size1)
	}
	if hash1 != blake2b.Sum256(content) {
		t.Error("hash must match blake2b-256 of content")
	}

	if err := os.WriteFile(testFile, []byte("# changed\n"), 0o600); err != nil {
		t.Fatalf("modify test file: %v", err)
	}
	hash2, _, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("second HashFile failed: %v", err)
	}
	if hash1 == hash2 {
		t.Error("different content should produce different hash")
	}
}

func TestHashFileNotFound(t *testing.T) {
	if _, _, err := HashFile("/nonexistent/mapping.krx"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWatcherReportsStableChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mapping.krx")
	if err := os.WriteFile(path, []byte("version 1"), 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := New(path, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("version 2"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		if ev.Path != w.Path() {
			t.Errorf("path = %q, want %q", ev.Path, w.Path())
		}
		want := blake2b.Sum256([]byte("version 2"))
		if ev.Hash != want {
			t.Error("event hash does not match written content")
		}
		if ev.Size != int64(len("version 2")) {
			t.Errorf("size = %d", ev.Size)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event for a changed file")
	}
}

func TestWatcherIgnoresUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mapping.krx")
	content := []byte("same content")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := New(path, 30*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Rewrite identical bytes: a touch, not a change.
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		t.Errorf("unexpected event for unchanged content: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mapping.krx")
	if err := os.WriteFile(path, []byte("watched"), 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := New(path, 30*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("noise"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		t.Errorf("unexpected event for sibling file: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}
