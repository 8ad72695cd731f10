// keyrxctl talks to a running keyrxd over its control socket.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"keyrx/internal/config"
	"keyrx/internal/ipc"
)

var (
	socketPath string
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:           "keyrxctl",
	Short:         "control a running keyrxd",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func client() *ipc.Client {
	path := socketPath
	if path == "" {
		path = config.DefaultPaths().SocketPath
	}
	return ipc.NewClient(path)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "check that the daemon is responding",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client()
		defer c.Close()
		start := time.Now()
		if err := c.Ping(); err != nil {
			return err
		}
		fmt.Printf("pong (%s)\n", time.Since(start).Round(time.Microsecond))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "show daemon status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client()
		defer c.Close()
		st, err := c.Status()
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(st)
		}
		fmt.Printf("keyrxd %s, up %s\n", st.Version, (time.Duration(st.UptimeSeconds) * time.Second).String())
		fmt.Printf("profile:  %s (%.16s)\n", st.ProfileSource, st.SourceHash)
		fmt.Printf("compiler: %s\n", st.CompilerVersion)
		fmt.Printf("devices:  %d attached\n", st.Devices)
		fmt.Printf("events:   %d processed, %d dropped\n", st.EventsProcessed, st.EventsDropped)
		return nil
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "show the engine's modifier, lock, and layer state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client()
		defer c.Close()
		st, err := c.State()
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(st)
		}
		fmt.Printf("modifiers: %s\n", formatIDs("MD", st.Modifiers))
		fmt.Printf("locks:     %s\n", formatIDs("LK", st.Locks))
		if len(st.Layers) == 0 {
			fmt.Println("layers:    (no devices)")
		} else {
			for dev, layer := range st.Layers {
				fmt.Printf("layer %d on %s\n", layer, dev)
			}
		}
		return nil
	},
}

func formatIDs(prefix string, ids []uint8) string {
	if len(ids) == 0 {
		return "(none)"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s_%02X", prefix, id)
	}
	return strings.Join(parts, " ")
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "list known keyboards",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client()
		defer c.Close()
		resp, err := c.Devices()
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(resp)
		}
		for _, dev := range resp.Devices {
			mark := " "
			if dev.Attached {
				mark = "*"
			}
			fmt.Printf("%s %.16s  %s  last seen %s\n", mark, dev.ID, dev.Name, dev.LastSeen.Format(time.RFC3339))
		}
		return nil
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload [SOURCE]",
	Short: "recompile and activate the profile",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client()
		defer c.Close()
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		resp, err := c.Reload(path)
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("reload failed: %s", resp.Error)
		}
		fmt.Printf("reloaded (%.16s)\n", resp.SourceHash)
		return nil
	},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate SCRIPT...",
	Short: "run an event script on the daemon",
	Long: `Run a script of synthetic key events through the daemon's engine
configuration and print the transcript. With --profile, the given
source file is compiled and used instead of the active profile.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := ""
		if simProfile != "" {
			data, err := os.ReadFile(simProfile)
			if err != nil {
				return err
			}
			src = string(data)
		}

		c := client()
		defer c.Close()
		resp, err := c.Simulate(src, strings.Join(args, ","))
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("simulate failed: %s", resp.Error)
		}
		fmt.Print(resp.Transcript)
		return nil
	},
}

var simProfile string

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "shut the daemon down",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client()
		defer c.Close()
		if err := c.Shutdown(); err != nil {
			return err
		}
		fmt.Println("shutdown requested")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "", "daemon control socket path")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "format output as JSON")
	simulateCmd.Flags().StringVarP(&simProfile, "profile", "p", "", "mapping configuration source file")
	rootCmd.AddCommand(pingCmd, statusCmd, stateCmd, devicesCmd, reloadCmd, simulateCmd, stopCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
