package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"keyrx/internal/compiler"
	"keyrx/internal/profile"
)

var (
	compileOutput string
	compileStamp  bool
)

var compileCmd = &cobra.Command{
	Use:   "compile SOURCE",
	Short: "compile a mapping configuration to a binary profile",
	Long: `Compile a mapping configuration to the binary profile format the
daemon loads. Without --stamp, identical source produces identical
bytes. The default output path replaces the source extension
with .krxc.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		opts := compiler.Options{}
		if compileStamp {
			opts.CompiledAt = uint64(time.Now().Unix())
		}
		compiled, err := compiler.CompileWithOptions(string(src), opts)
		if err != nil {
			return err
		}

		out := compileOutput
		if out == "" {
			out = strings.TrimSuffix(args[0], ".krx") + ".krxc"
		}
		if err := os.WriteFile(out, compiled, 0644); err != nil {
			return err
		}

		hash := compiler.SourceHash(string(src))
		fmt.Printf("%s: %d bytes, source %x\n", out, len(compiled), hash[:8])
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify FILE",
	Short: "check a profile and print its layout",
	Long: `Verify a compiled profile (or compile a source file in memory) and
print its device patterns, layers, and rule counts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		prof, err := profile.Load(data)
		if err != nil {
			// Maybe a source file: compile it and verify the result.
			compiled, cerr := compiler.Compile(string(data))
			if cerr != nil {
				return fmt.Errorf("not a valid profile (%v) nor source (%v)", err, cerr)
			}
			prof, err = profile.Load(compiled)
			if err != nil {
				return err
			}
		}

		meta := prof.Meta()
		hash := prof.SourceHash()
		fmt.Printf("profile: %d bytes, compiler %s, source %x\n", prof.Size(), meta.CompilerVersion, hash[:8])
		for i := 0; i < prof.Patterns(); i++ {
			fmt.Printf("  device %q\n", prof.PatternName(i))
			for l := 0; l < prof.Layers(i); l++ {
				if n := prof.RuleCount(i, l); n > 0 {
					fmt.Printf("    layer %d: %d rules\n", l, n)
				}
			}
		}
		if n := prof.MacroSteps(); n > 0 {
			fmt.Printf("  macro steps: %d\n", n)
		}
		return nil
	},
}

func init() {
	compileCmd.Flags().StringVarP(&compileOutput, "output", "o", "", "output path")
	compileCmd.Flags().BoolVar(&compileStamp, "stamp", false, "embed the compile timestamp")
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(verifyCmd)
}
