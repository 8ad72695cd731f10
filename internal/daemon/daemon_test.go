package daemon

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"keyrx/internal/compiler"
	"keyrx/internal/config"
	"keyrx/internal/ipc"
	"keyrx/internal/logging"
	"keyrx/internal/metrics"
	"keyrx/internal/platform"
	"keyrx/internal/profile"
	"keyrx/internal/runtime"
	"keyrx/internal/store"
)

const testSource = `
when_device_start("*")
	map("CapsLock", "VK_Escape")
when_device_end()
`

func testDaemon(t *testing.T) *Daemon {
	t.Helper()
	dir := t.TempDir()

	db, err := store.Open(filepath.Join(dir, "keyrx.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	srcPath := filepath.Join(dir, "profile.krx")
	if err := os.WriteFile(srcPath, []byte(testSource), 0644); err != nil {
		t.Fatal(err)
	}

	compiled, err := compiler.Compile(testSource)
	if err != nil {
		t.Fatal(err)
	}
	prof, err := profile.Load(compiled)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Profile.SourcePath = srcPath
	cfg.Store.Path = filepath.Join(dir, "keyrx.db")

	return &Daemon{
		cfg:        cfg,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		engine:     runtime.New(prof, runtime.DefaultConfig()),
		db:         db,
		metrics:    metrics.Daemon(),
		crash:      logging.NewCrashHandler(filepath.Join(dir, "crashes"), "test", nil),
		events:     make(chan platform.RawEvent, 4),
		devices:    map[string]*attachedDevice{},
		sourcePath: srcPath,
		sourceHash: compiler.SourceHash(testSource),
		startedAt:  time.Now(),
	}
}

func TestWantDevice(t *testing.T) {
	d := testDaemon(t)

	if !d.wantDevice("Any Keyboard") {
		t.Error("no patterns should match everything")
	}

	d.cfg.Devices.IncludePatterns = []string{"USB*"}
	if !d.wantDevice("USB Keyboard") {
		t.Error("include pattern should match")
	}
	if d.wantDevice("Laptop Keyboard") {
		t.Error("non-matching name should be skipped")
	}

	d.cfg.Devices.ExcludePatterns = []string{"USB Hub*"}
	if d.wantDevice("USB Hub Keyboard") {
		t.Error("exclude wins over include")
	}
}

func TestEnqueueDropsOldest(t *testing.T) {
	d := testDaemon(t)
	d.events = make(chan platform.RawEvent, 2)

	for i := 0; i < 3; i++ {
		d.enqueue(platform.RawEvent{TimeUs: uint64(i)})
	}

	first := <-d.events
	if first.TimeUs != 1 {
		t.Errorf("oldest event should be dropped, head is %d", first.TimeUs)
	}
	second := <-d.events
	if second.TimeUs != 2 {
		t.Errorf("newest event should survive, got %d", second.TimeUs)
	}
}

func TestHandlerStatus(t *testing.T) {
	d := testDaemon(t)
	h := d.handler()

	req := ipc.NewMessage(ipc.MsgStatusRequest, 7, nil)
	resp, err := h.HandleMessage(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Header.Type != ipc.MsgStatusResponse {
		t.Fatalf("got type %#04x", resp.Header.Type)
	}

	var status ipc.StatusResponse
	if err := ipc.Decode(resp, &status); err != nil {
		t.Fatal(err)
	}
	if status.ProfileSource != d.sourcePath {
		t.Errorf("profile source %q", status.ProfileSource)
	}
	if status.CompilerVersion != compiler.CompilerVersion {
		t.Errorf("compiler version %q", status.CompilerVersion)
	}
}

func TestHandlerSimulate(t *testing.T) {
	d := testDaemon(t)
	h := d.handler()

	req, err := ipc.Encode(ipc.MsgSimulateRequest, 1, ipc.SimulateRequest{
		Script: "press:CapsLock,release:CapsLock",
	})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := h.HandleMessage(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	var sim ipc.SimulateResponse
	if err := ipc.Decode(resp, &sim); err != nil {
		t.Fatal(err)
	}
	if !sim.Success {
		t.Fatalf("simulate failed: %s", sim.Error)
	}
	want := "sim press Escape\nsim release Escape\n"
	if sim.Transcript != want {
		t.Errorf("transcript %q, want %q", sim.Transcript, want)
	}
}

func TestHandlerSimulateBadConfig(t *testing.T) {
	d := testDaemon(t)
	h := d.handler()

	req, err := ipc.Encode(ipc.MsgSimulateRequest, 1, ipc.SimulateRequest{
		Config: `map("NoSuchKey",`,
		Script: "press:A",
	})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := h.HandleMessage(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	var sim ipc.SimulateResponse
	if err := ipc.Decode(resp, &sim); err != nil {
		t.Fatal(err)
	}
	if sim.Success || sim.Error == "" {
		t.Error("broken config must report a compile error")
	}
}

func TestHandlerUnknownType(t *testing.T) {
	d := testDaemon(t)
	h := d.handler()

	resp, err := h.HandleMessage(context.Background(), ipc.NewMessage(0x7777, 1, nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Header.Type != ipc.MsgError {
		t.Fatalf("got type %#04x", resp.Header.Type)
	}
}

func TestReloadKeepsProfileOnCompileError(t *testing.T) {
	d := testDaemon(t)
	oldHash := d.sourceHash

	if err := os.WriteFile(d.sourcePath, []byte(`map("Broken`), 0644); err != nil {
		t.Fatal(err)
	}
	err := d.Reload(store.ReasonReload)
	if err == nil {
		t.Fatal("reload of broken source must fail")
	}
	if !strings.Contains(err.Error(), "compile") {
		t.Errorf("error %v should mention compile", err)
	}
	if d.sourceHash != oldHash {
		t.Error("active hash must not change on failed reload")
	}
}

// Reloads arrive concurrently from the watcher, the control socket, and
// SIGHUP. However they interleave, the engine's profile and the reported
// source hash must agree afterwards.
func TestConcurrentReloadConsistency(t *testing.T) {
	d := testDaemon(t)
	h := d.handler()

	altSource := `
when_device_start("*")
	map("CapsLock", "VK_Tab")
when_device_end()
`
	altPath := filepath.Join(t.TempDir(), "alt.krx")
	if err := os.WriteFile(altPath, []byte(altSource), 0644); err != nil {
		t.Fatal(err)
	}
	mainPath := d.sourcePath

	var wg sync.WaitGroup
	for _, p := range []string{mainPath, altPath, mainPath, altPath} {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				req, err := ipc.Encode(ipc.MsgReloadRequest, 1, ipc.ReloadRequest{Path: path})
				if err != nil {
					t.Error(err)
					return
				}
				if _, err := h.HandleMessage(context.Background(), req); err != nil {
					t.Error(err)
					return
				}
			}
		}(p)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			req := ipc.NewMessage(ipc.MsgStatusRequest, 2, nil)
			if _, err := h.HandleMessage(context.Background(), req); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	wg.Wait()

	_, reported := d.sourceInfo()
	d.mu.Lock()
	active := d.engine.Profile().SourceHash()
	d.mu.Unlock()
	if reported != active {
		t.Fatalf("reported hash %x but engine holds %x", reported[:8], active[:8])
	}
}

func TestPIDFile(t *testing.T) {
	dir := t.TempDir()
	p := NewPIDFile(dir)

	if err := p.Acquire(); err != nil {
		t.Fatal(err)
	}
	pid, err := p.Read()
	if err != nil {
		t.Fatal(err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid %d, want %d", pid, os.Getpid())
	}

	// Our own pid is alive, so a second acquire must refuse.
	if err := p.Acquire(); err == nil {
		t.Error("second acquire should fail while process is running")
	}

	if err := p.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Read(); err == nil {
		t.Error("pid file should be gone after release")
	}
}
