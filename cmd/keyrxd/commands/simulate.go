package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"keyrx/internal/compiler"
	"keyrx/internal/profile"
	"keyrx/internal/runtime"
	"keyrx/internal/sim"
)

var (
	simSource   string
	simScenario string
	simList     bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate [SCRIPT...]",
	Short: "run an event script against a configuration",
	Long: `Run a script of synthetic key events through the engine and print the
transcript of emitted output. No devices are touched.

Script steps are comma or newline separated:
    press:CapsLock, wait:250, release:CapsLock, flush
    device:Pedal, press:Space

With --scenario, a stored scenario file (or built-in name) is played
and its transcript checked against the expected output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if simList {
			for _, name := range sim.BuiltinNames() {
				fmt.Println(name)
			}
			return nil
		}

		if simScenario != "" {
			return playScenario(simScenario)
		}

		if simSource == "" {
			return fmt.Errorf("--profile is required unless --scenario is given")
		}
		if len(args) == 0 {
			return fmt.Errorf("no script steps given")
		}

		src, err := os.ReadFile(simSource)
		if err != nil {
			return err
		}
		compiled, err := compiler.Compile(string(src))
		if err != nil {
			return err
		}
		prof, err := profile.Load(compiled)
		if err != nil {
			return err
		}

		res, err := sim.RunScript(prof, strings.Join(args, ","), runtime.DefaultConfig())
		if err != nil {
			return err
		}
		fmt.Print(res.Transcript())
		return nil
	},
}

func playScenario(name string) error {
	scenario, err := sim.Builtin(name)
	if err != nil {
		// Not a built-in: treat it as a scenario file.
		scenario, err = sim.LoadScenario(name)
		if err != nil {
			return err
		}
	}

	res, err := sim.Play(scenario, runtime.DefaultConfig())
	if err != nil {
		return err
	}
	fmt.Printf("scenario %s ok\n%s", scenario.Name, res.Transcript())
	return nil
}

func init() {
	simulateCmd.Flags().StringVarP(&simSource, "profile", "p", "", "mapping configuration source file")
	simulateCmd.Flags().StringVarP(&simScenario, "scenario", "s", "", "scenario file or built-in scenario name")
	simulateCmd.Flags().BoolVar(&simList, "list", false, "list built-in scenarios")
	rootCmd.AddCommand(simulateCmd)
}
