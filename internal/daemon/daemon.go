// Package daemon runs the remapping engine against live devices: it owns
// the event loop, device hotplug, hot reload of the profile source, and the
// control socket.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
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
	"keyrx/internal/watcher"
)

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

// rescanInterval is how often the device list is re-discovered for hotplug.
const rescanInterval = 2 * time.Second

type attachedDevice struct {
	dev    platform.Device
	info   platform.DeviceInfo
	cancel func()
}

// Daemon ties the engine to a platform backend.
type Daemon struct {
	cfg     *config.Config
	log     *slog.Logger
	backend platform.Backend

	mu     sync.Mutex
	engine *runtime.Engine

	injector   platform.Injector
	db         *store.Store
	watch      *watcher.Watcher
	ipcSrv     *ipc.Server
	metrics    *metrics.DaemonMetrics
	metricsSrv *http.Server

	crash  *logging.CrashHandler
	events chan platform.RawEvent

	devMu   sync.Mutex
	devices map[string]*attachedDevice

	// srcMu guards sourcePath and sourceHash, and serializes the
	// compile-then-swap sequence: reloads can arrive concurrently from the
	// watcher (event loop), the control socket, and SIGHUP.
	srcMu      sync.Mutex
	sourcePath string
	sourceHash [32]byte

	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	shutdown  chan struct{}
	stopOnce  sync.Once
}

// New builds a daemon from configuration. The profile source is compiled
// (or served from the cache) before any device is opened, so a broken
// config never takes over a keyboard.
func New(cfg *config.Config, log *slog.Logger) (*Daemon, error) {
	backend, err := platform.NewBackend()
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	d := &Daemon{
		cfg:        cfg,
		log:        log,
		backend:    backend,
		db:         db,
		metrics:    metrics.Daemon(),
		crash:      logging.NewCrashHandler("", Version, nil),
		events:     make(chan platform.RawEvent, cfg.Engine.QueueSize),
		devices:    make(map[string]*attachedDevice),
		sourcePath: cfg.Profile.SourcePath,
		shutdown:   make(chan struct{}),
	}

	prof, hash, err := d.compileSource(d.sourcePath, store.ReasonStartup)
	if err != nil {
		db.Close()
		return nil, err
	}
	d.sourceHash = hash

	engCfg := runtime.DefaultConfig()
	engCfg.DefaultThresholdMs = uint16(cfg.Engine.DefaultThresholdMs)
	d.engine = runtime.New(prof, engCfg)
	return d, nil
}

// Start brings up the injector, devices, watcher, control socket, and the
// event loop. It returns once everything is running.
func (d *Daemon) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.startedAt = time.Now()

	inj, err := d.backend.NewInjector()
	if err != nil {
		return fmt.Errorf("create output device: %w", err)
	}
	d.injector = inj

	if err := d.rescanDevices(); err != nil {
		d.log.Warn("initial device scan failed", "error", err)
	}

	if d.cfg.Profile.AutoReload {
		w, err := watcher.New(d.sourcePath, time.Duration(d.cfg.Profile.DebounceMs)*time.Millisecond)
		if err != nil {
			return fmt.Errorf("watch profile source: %w", err)
		}
		if err := w.Start(); err != nil {
			return fmt.Errorf("watch profile source: %w", err)
		}
		d.watch = w
	}

	if d.cfg.IPC.Enabled {
		srv := ipc.NewServer(ipc.ServerConfig{
			SocketPath: d.cfg.IPC.SocketPath,
			Logger:     d.log.With("component", "ipc"),
		}, d.handler())
		if err := srv.Start(); err != nil {
			return fmt.Errorf("control socket: %w", err)
		}
		d.ipcSrv = srv
	}

	if d.cfg.Metrics.Enabled {
		d.startMetricsServer()
	}

	d.wg.Add(2)
	go d.eventLoop()
	go d.rescanLoop()

	srcPath, srcHash := d.sourceInfo()
	d.log.Info("daemon started",
		"version", Version,
		"profile", srcPath,
		"source_hash", fmt.Sprintf("%x", srcHash[:8]))
	return nil
}

// Wait blocks until Stop is called or the context given to Start ends.
func (d *Daemon) Wait() {
	select {
	case <-d.shutdown:
	case <-d.ctx.Done():
	}
}

// Stop tears the daemon down in reverse order of Start. Held remapped keys
// are released through the injector before it closes so no key is left
// stuck down.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		close(d.shutdown)
		d.cancel()

		if d.ipcSrv != nil {
			d.ipcSrv.Stop()
		}
		if d.watch != nil {
			d.watch.Stop()
		}
		if d.metricsSrv != nil {
			shCtx, shCancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = d.metricsSrv.Shutdown(shCtx)
			shCancel()
		}

		d.devMu.Lock()
		for _, ad := range d.devices {
			ad.cancel()
			ad.dev.Close()
		}
		d.devices = map[string]*attachedDevice{}
		d.devMu.Unlock()

		d.wg.Wait()

		d.mu.Lock()
		out := d.engine.Flush(nil)
		d.mu.Unlock()
		d.emitAll(out)

		if d.injector != nil {
			d.injector.Close()
		}
		d.db.Close()
		d.log.Info("daemon stopped")
	})
}

// eventLoop is the only goroutine that feeds the engine input, so engine
// time never goes backwards.
func (d *Daemon) eventLoop() {
	defer d.wg.Done()
	defer d.crash.RecoverQuiet(map[string]string{"goroutine": "event-loop"})

	tick := time.NewTicker(time.Duration(d.cfg.Engine.TickIntervalMs) * time.Millisecond)
	defer tick.Stop()

	var watchEvents <-chan watcher.Event
	var watchErrors <-chan error
	if d.watch != nil {
		watchEvents = d.watch.Events()
		watchErrors = d.watch.Errors()
	}

	for {
		select {
		case <-d.ctx.Done():
			return

		case ev := <-d.events:
			start := time.Now()
			d.mu.Lock()
			out := d.engine.Process(ev.Device, ev.Event, ev.TimeUs, nil)
			d.mu.Unlock()
			d.emitAll(out)
			d.metrics.RecordProcess(time.Since(start), len(out))

		case <-tick.C:
			d.mu.Lock()
			d.engine.Tick(platform.MonotonicUs())
			d.mu.Unlock()
			d.metrics.UpdateUptime()

		case wev := <-watchEvents:
			d.log.Info("profile source changed", "hash", fmt.Sprintf("%x", wev.Hash[:8]))
			if err := d.Reload(store.ReasonReload); err != nil {
				d.log.Error("reload failed, keeping active profile", "error", err)
			}

		case err := <-watchErrors:
			d.log.Warn("profile watcher error", "error", err)
		}
	}
}

// Reload recompiles the profile source and swaps it into the engine.
// On compile failure the running profile stays active. Concurrent reloads
// are serialized so the engine's profile and the reported source hash can
// never disagree.
func (d *Daemon) Reload(reason string) error {
	d.srcMu.Lock()
	defer d.srcMu.Unlock()

	start := time.Now()
	prof, hash, err := d.compileSource(d.sourcePath, reason)
	if err != nil {
		d.metrics.RecordReload(time.Since(start), false)
		return err
	}
	if hash == d.sourceHash {
		return nil
	}

	d.mu.Lock()
	out := d.engine.SetProfile(prof, nil)
	d.mu.Unlock()
	d.emitAll(out)

	d.sourceHash = hash
	d.metrics.RecordReload(time.Since(start), true)
	d.log.Info("profile reloaded", "source_hash", fmt.Sprintf("%x", hash[:8]))
	return nil
}

// sourceInfo snapshots the active source path and hash for status reports.
func (d *Daemon) sourceInfo() (string, [32]byte) {
	d.srcMu.Lock()
	defer d.srcMu.Unlock()
	return d.sourcePath, d.sourceHash
}

// compileSource compiles the source file, consulting the cache first, and
// records the activation.
func (d *Daemon) compileSource(path, reason string) (*profile.Profile, [32]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, [32]byte{}, fmt.Errorf("read profile source: %w", err)
	}
	hash := compiler.SourceHash(string(src))

	var compiled []byte
	if cached, err := d.db.GetProfile(hash); err == nil && cached.CompilerVersion == compiler.CompilerVersion {
		compiled = cached.Compiled
	} else {
		compiled, err = compiler.Compile(string(src))
		if err != nil {
			return nil, [32]byte{}, fmt.Errorf("compile %s: %w", path, err)
		}
		if err := d.db.PutProfile(&store.CachedProfile{
			SourceHash:      hash,
			Compiled:        compiled,
			CompilerVersion: compiler.CompilerVersion,
			CompiledAt:      time.Now(),
			SourceSize:      int64(len(src)),
		}); err != nil {
			d.log.Warn("cache compiled profile", "error", err)
		}
	}

	prof, err := profile.Load(compiled)
	if err != nil {
		return nil, [32]byte{}, fmt.Errorf("load compiled profile: %w", err)
	}

	if err := d.db.RecordActivation(hash, reason, time.Now()); err != nil {
		d.log.Warn("record activation", "error", err)
	}
	if d.cfg.Store.MaxHistory > 0 {
		_ = d.db.PruneActivations(d.cfg.Store.MaxHistory)
	}

	if d.cfg.Profile.CompiledPath != "" {
		if err := writeFileAtomic(d.cfg.Profile.CompiledPath, compiled); err != nil {
			d.log.Warn("write compiled profile", "error", err)
		}
	}
	return prof, hash, nil
}

func (d *Daemon) emitAll(out []runtime.OutputEvent) {
	for _, ev := range out {
		if err := d.injector.Emit(ev); err != nil {
			d.metrics.Errors.Inc()
			d.log.Warn("inject output", "key", ev.Key.String(), "error", err)
		}
	}
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
