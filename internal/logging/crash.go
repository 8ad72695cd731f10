package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"time"
)

// CrashReport captures a panic for post-mortem analysis. The daemon grabs
// input devices exclusively, so an uncaptured crash can leave the user
// without a working keyboard; every panic must leave a trace on disk.
type CrashReport struct {
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	GoVersion string            `json:"go_version"`
	OS        string            `json:"os"`
	Arch      string            `json:"arch"`
	Panic     string            `json:"panic"`
	Stack     string            `json:"stack"`
	Context   map[string]string `json:"context,omitempty"`
}

// CrashHandler writes crash reports to a directory and re-raises panics.
type CrashHandler struct {
	dir     string
	version string
	logger  *Logger
}

// DefaultCrashDir returns the platform crash report directory.
func DefaultCrashDir() string {
	return filepath.Join(filepath.Dir(defaultLogPath()), "crashes")
}

// NewCrashHandler creates a handler writing reports under dir.
func NewCrashHandler(dir, version string, logger *Logger) *CrashHandler {
	if dir == "" {
		dir = DefaultCrashDir()
	}
	if logger == nil {
		logger = Default()
	}
	return &CrashHandler{dir: dir, version: version, logger: logger}
}

// Recover is meant for deferred use at the top of a goroutine. It writes a
// crash report and re-panics so the process still dies visibly.
func (h *CrashHandler) Recover(context map[string]string) {
	if v := recover(); v != nil {
		h.HandlePanic(v, context)
		panic(v)
	}
}

// RecoverQuiet writes a crash report and swallows the panic. Used by
// goroutines whose death must not take the daemon down.
func (h *CrashHandler) RecoverQuiet(context map[string]string) {
	if v := recover(); v != nil {
		h.HandlePanic(v, context)
	}
}

// HandlePanic records a panic value without recovering from it.
func (h *CrashHandler) HandlePanic(v any, context map[string]string) {
	report := CrashReport{
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Panic:     fmt.Sprint(v),
		Stack:     string(debug.Stack()),
		Context:   context,
	}
	h.logger.Error("panic captured", "panic", report.Panic)
	if err := h.writeReport(report); err != nil {
		h.logger.Error("write crash report", "error", err)
	}
}

func (h *CrashHandler) writeReport(report CrashReport) error {
	if err := os.MkdirAll(h.dir, 0o700); err != nil {
		return err
	}
	name := fmt.Sprintf("crash-%s.json", report.Timestamp.Format("20060102-150405.000000"))
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(h.dir, name), data, 0o600)
}

// Reports returns the stored crash reports, newest first.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	matches, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))

	var reports []CrashReport
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var r CrashReport
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Cleanup removes reports older than maxAge.
func (h *CrashHandler) Cleanup(maxAge time.Duration) error {
	matches, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(path)
		}
	}
	return nil
}
