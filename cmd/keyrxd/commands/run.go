package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"keyrx/internal/config"
	"keyrx/internal/daemon"
	"keyrx/internal/logging"
	"keyrx/internal/store"
)

var runForeground bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "start the remapping daemon",
	Long: `Start the daemon: compile the configured profile, grab matching
keyboards, and remap until stopped. SIGHUP reloads the profile;
SIGTERM and SIGINT shut down cleanly, releasing any held keys.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return err
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Close()
		logging.SetDefault(logger)

		paths := config.DefaultPaths()
		pidFile := daemon.NewPIDFile(paths.RuntimeDir)
		if err := pidFile.Acquire(); err != nil {
			return err
		}
		defer pidFile.Release()

		d, err := daemon.New(cfg, logger.Logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := d.Start(ctx); err != nil {
			d.Stop()
			return err
		}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		go func() {
			for sig := range sigs {
				switch sig {
				case syscall.SIGHUP:
					logger.Info("reload requested")
					if err := d.Reload(store.ReasonManual); err != nil {
						logger.Error("reload failed", "error", err)
					}
				default:
					logger.Info("shutting down", "signal", sig.String())
					d.Stop()
					return
				}
			}
		}()

		d.Wait()
		d.Stop()
		return nil
	},
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("logging.format: %w", err)
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.MaxSize = int64(cfg.Logging.MaxSizeMB)
	lc.MaxBackups = cfg.Logging.MaxBackups
	switch {
	case runForeground || cfg.Logging.FilePath == "":
		lc.Output = "stderr"
	case cfg.Logging.Console:
		lc.Output = "both"
		lc.FilePath = cfg.Logging.FilePath
	default:
		lc.Output = "file"
		lc.FilePath = cfg.Logging.FilePath
	}
	return logging.New(lc)
}

func init() {
	runCmd.Flags().BoolVarP(&runForeground, "foreground", "f", false, "log to stderr regardless of configuration")
	rootCmd.AddCommand(runCmd)
}
