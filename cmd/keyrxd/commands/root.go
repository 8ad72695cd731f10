package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"keyrx/internal/config"
	"keyrx/internal/daemon"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "keyrxd",
	Short:   "keyboard remapping daemon",
	Version: daemon.Version,
	Long: `keyrxd remaps keyboards below the application layer: it compiles a
mapping configuration to a binary profile, grabs the matching input
devices, runs every key event through a deterministic state machine,
and injects the results through a virtual output device.

Run 'keyrxd run' to start the daemon, or use the offline commands
(compile, verify, simulate) which need no device access.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "daemon config file (default: search standard locations)")
}

// loadConfig resolves the daemon configuration from --config or the
// platform's standard locations.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
