// Package config handles configuration loading, validation, and management
// for keyrxd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Engine configuration for the remapping runtime.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Profile configuration: where the mapping source lives and how it is
	// reloaded.
	Profile ProfileConfig `toml:"profile" json:"profile" yaml:"profile"`

	// Devices configuration for input device selection.
	Devices DevicesConfig `toml:"devices" json:"devices" yaml:"devices"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Store configuration for the compile cache and activation history.
	Store StoreConfig `toml:"store" json:"store" yaml:"store"`

	// Metrics configuration.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// EngineConfig holds runtime engine tunables.
type EngineConfig struct {
	// DefaultThresholdMs is the tap-hold decision window for mappings that
	// do not set their own, in milliseconds.
	DefaultThresholdMs int `toml:"default_threshold_ms" json:"default_threshold_ms" yaml:"default_threshold_ms"`

	// TickIntervalMs is how often pending tap-holds are checked against
	// their threshold when no events arrive.
	TickIntervalMs int `toml:"tick_interval_ms" json:"tick_interval_ms" yaml:"tick_interval_ms"`

	// QueueSize is the bounded event channel capacity between device
	// readers and the processing loop. When full, the oldest event is
	// dropped and a warning logged.
	QueueSize int `toml:"queue_size" json:"queue_size" yaml:"queue_size"`
}

// ProfileConfig holds mapping source and reload configuration.
type ProfileConfig struct {
	// SourcePath is the mapping configuration file compiled at startup.
	SourcePath string `toml:"source_path" json:"source_path" yaml:"source_path"`

	// CompiledPath, when set, is where the compiled profile is written
	// after a successful compile. Empty keeps the profile in memory only.
	CompiledPath string `toml:"compiled_path" json:"compiled_path" yaml:"compiled_path"`

	// AutoReload recompiles and hot-swaps the profile when SourcePath
	// changes on disk. A failed compile keeps the previous profile active.
	AutoReload bool `toml:"auto_reload" json:"auto_reload" yaml:"auto_reload"`

	// DebounceMs is how long SourcePath must be stable before a reload.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`
}

// DevicesConfig holds input device selection configuration.
type DevicesConfig struct {
	// IncludePatterns are glob patterns for device names to manage. Empty
	// manages every keyboard.
	IncludePatterns []string `toml:"include_patterns" json:"include_patterns" yaml:"include_patterns"`

	// ExcludePatterns are glob patterns for device names to leave alone.
	// Exclusion wins over inclusion.
	ExcludePatterns []string `toml:"exclude_patterns" json:"exclude_patterns" yaml:"exclude_patterns"`

	// Grab takes exclusive control of managed devices so unmapped events
	// do not reach applications twice.
	Grab bool `toml:"grab" json:"grab" yaml:"grab"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", or "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log output format: "json" or "text".
	Format string `toml:"format" json:"format" yaml:"format"`

	// FilePath is the log file location. Empty logs to stderr only.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is how many rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// Console mirrors log output to stderr when a file is configured.
	Console bool `toml:"console" json:"console" yaml:"console"`
}

// IPCConfig holds control socket configuration.
type IPCConfig struct {
	// Enabled turns the control socket on.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// SocketPath is the unix socket path. Defaults to the platform runtime
	// directory.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`
}

// StoreConfig holds compile cache and history configuration.
type StoreConfig struct {
	// Path is the sqlite database file. Empty disables the store.
	Path string `toml:"path" json:"path" yaml:"path"`

	// MaxHistory caps the profile activation history rows kept.
	MaxHistory int `toml:"max_history" json:"max_history" yaml:"max_history"`
}

// MetricsConfig holds metrics exposition configuration.
type MetricsConfig struct {
	// Enabled turns the metrics endpoint on.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// ListenAddr is the address the text exposition endpoint binds to.
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
}

// Default returns a configuration with platform defaults applied.
func Default() *Config {
	paths := DefaultPaths()
	return &Config{
		Version: Version,
		Engine: EngineConfig{
			DefaultThresholdMs: 200,
			TickIntervalMs:     10,
			QueueSize:          256,
		},
		Profile: ProfileConfig{
			SourcePath: filepath.Join(paths.ConfigDir, "mapping.krx"),
			AutoReload: true,
			DebounceMs: 150,
		},
		Devices: DevicesConfig{
			Grab: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			FilePath:   filepath.Join(paths.LogDir, "keyrxd.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		IPC: IPCConfig{
			Enabled:    true,
			SocketPath: paths.SocketPath,
		},
		Store: StoreConfig{
			Path:       filepath.Join(paths.DataDir, "keyrx.db"),
			MaxHistory: 100,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9867",
		},
	}
}

// Load reads a configuration from path, applies environment overrides, and
// validates the result. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates all directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Store.Path),
		filepath.Dir(c.Logging.FilePath),
		filepath.Dir(c.IPC.SocketPath),
	}
	if c.Profile.CompiledPath != "" {
		dirs = append(dirs, filepath.Dir(c.Profile.CompiledPath))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides. Variables are
// prefixed with KEYRX_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("KEYRX_PROFILE_PATH"); v != "" {
		c.Profile.SourcePath = v
	}
	if v := os.Getenv("KEYRX_COMPILED_PATH"); v != "" {
		c.Profile.CompiledPath = v
	}
	if v := os.Getenv("KEYRX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KEYRX_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("KEYRX_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
	if v := os.Getenv("KEYRX_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := Config{
		Version: c.Version,
		Engine:  c.Engine,
		Profile: c.Profile,
		Devices: c.Devices,
		Logging: c.Logging,
		IPC:     c.IPC,
		Store:   c.Store,
		Metrics: c.Metrics,
	}
	clone.Devices.IncludePatterns = append([]string(nil), c.Devices.IncludePatterns...)
	clone.Devices.ExcludePatterns = append([]string(nil), c.Devices.ExcludePatterns...)
	return &clone
}

// Save writes the configuration to path as TOML.
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
