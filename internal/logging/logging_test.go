package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"ERROR", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if tc.wantErr != (err != nil) {
			t.Errorf("ParseLevel(%q) err = %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(empty) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestFileLoggerWritesJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = path
	cfg.Format = FormatJSON
	cfg.Component = "test"

	l, err := New(cfg)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	l.Info("device attached", "device", "USB Keyboard")
	if err := l.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := strings.TrimSpace(string(data))
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("log line not JSON: %v\n%s", err, line)
	}
	if record["msg"] != "device attached" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["component"] != "test" {
		t.Errorf("component = %v", record["component"])
	}
	if record["device"] != "USB Keyboard" {
		t.Errorf("device = %v", record["device"])
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = path
	cfg.Level = LevelWarn

	l, err := New(cfg)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	l.Debug("dropped")
	l.Info("dropped too")
	l.Warn("kept")
	l.Sync()
	l.Close()

	data, _ := os.ReadFile(path)
	out := string(data)
	if strings.Contains(out, "dropped") {
		t.Errorf("below-level records in output:\n%s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn record missing:\n%s", out)
	}
}

func TestRotatorRotatesBySize(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.FilePath = filepath.Join(dir, "rot.log")
	cfg.MaxSize = 1 // 1 MB
	cfg.Compress = false
	cfg.MaxBackups = 2

	r, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("new rotator: %v", err)
	}
	defer r.Close()

	chunk := strings.Repeat("x", 64*1024)
	for i := 0; i < 20; i++ {
		if _, err := r.Write([]byte(chunk)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	matches, err := filepath.Glob(filepath.Join(dir, "rot-*.log*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) == 0 {
		t.Error("expected at least one rotated file")
	}
}

func TestCrashHandlerWritesReport(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = filepath.Join(dir, "test.log")
	l, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	h := NewCrashHandler(filepath.Join(dir, "crashes"), "0.4.0", l)

	func() {
		defer h.RecoverQuiet(map[string]string{"loop": "events"})
		panic("boom")
	}()

	reports, err := h.Reports()
	if err != nil {
		t.Fatalf("reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	r := reports[0]
	if r.Panic != "boom" {
		t.Errorf("panic = %q", r.Panic)
	}
	if r.Version != "0.4.0" {
		t.Errorf("version = %q", r.Version)
	}
	if r.Context["loop"] != "events" {
		t.Errorf("context = %v", r.Context)
	}
	if !strings.Contains(r.Stack, "panic") {
		t.Error("stack trace missing")
	}
	if time.Since(r.Timestamp) > time.Minute {
		t.Errorf("timestamp = %v", r.Timestamp)
	}
}

func TestCrashHandlerCleanup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "crashes")
	h := NewCrashHandler(dir, "0.4.0", nil)

	func() {
		defer h.RecoverQuiet(nil)
		panic("old")
	}()

	// Everything is newer than the cutoff; nothing is removed.
	if err := h.Cleanup(time.Hour); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	reports, _ := h.Reports()
	if len(reports) != 1 {
		t.Fatalf("expected report to survive, got %d", len(reports))
	}

	// Zero max age removes everything.
	if err := h.Cleanup(0); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	reports, _ = h.Reports()
	if len(reports) != 0 {
		t.Fatalf("expected reports removed, got %d", len(reports))
	}
}
