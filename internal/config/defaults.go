// Package config handles configuration loading and validation for keyrxd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/keyrx/
//   - Linux:   ~/.local/share/keyrx/
//   - Windows: %APPDATA%\keyrx\
//
// Falls back to ~/.keyrx if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home(), "Library", "Application Support", "keyrx")
	case "linux":
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "keyrx")
		}
		return filepath.Join(home(), ".local", "share", "keyrx")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "keyrx")
		}
		return fallbackDataDir()
	default:
		return fallbackDataDir()
	}
}

// PlatformConfigDir returns the platform-specific config directory.
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "keyrx")
		}
		return filepath.Join(home(), ".config", "keyrx")
	default:
		// macOS and Windows keep config next to data.
		return PlatformDataDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home(), "Library", "Logs", "keyrx")
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "keyrx", "logs")
		}
		return filepath.Join(fallbackDataDir(), "logs")
	default:
		return filepath.Join(PlatformDataDir(), "logs")
	}
}

// PlatformRuntimeDir returns the directory for sockets and pid files.
func PlatformRuntimeDir() string {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
			return filepath.Join(xdg, "keyrx")
		}
		return filepath.Join(os.TempDir(), fmt.Sprintf("keyrx-%d", os.Getuid()))
	}
	return PlatformDataDir()
}

func home() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}

func fallbackDataDir() string {
	return filepath.Join(home(), ".keyrx")
}

// Paths bundles the resolved platform directories.
type Paths struct {
	DataDir    string
	ConfigDir  string
	LogDir     string
	RuntimeDir string
	SocketPath string
}

// DefaultPaths resolves all platform directories, honoring the
// KEYRX_DATA_DIR override.
func DefaultPaths() *Paths {
	dataDir := PlatformDataDir()
	if envDir := os.Getenv("KEYRX_DATA_DIR"); envDir != "" {
		dataDir = envDir
	}
	runtimeDir := PlatformRuntimeDir()
	return &Paths{
		DataDir:    dataDir,
		ConfigDir:  PlatformConfigDir(),
		LogDir:     PlatformLogDir(),
		RuntimeDir: runtimeDir,
		SocketPath: filepath.Join(runtimeDir, "keyrxd.sock"),
	}
}

// FindConfigFile looks for a config file in the standard locations and
// returns the first that exists, or empty.
func FindConfigFile() string {
	candidates := []string{
		filepath.Join(PlatformConfigDir(), "keyrxd.toml"),
		filepath.Join(PlatformConfigDir(), "keyrxd.yaml"),
		filepath.Join(PlatformConfigDir(), "keyrxd.json"),
	}
	if runtime.GOOS == "linux" {
		candidates = append(candidates, "/etc/keyrx/keyrxd.toml")
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// SupportedConfigFormats lists the config file extensions the loader
// understands.
func SupportedConfigFormats() []string {
	return []string{".toml", ".yaml", ".yml", ".json"}
}
