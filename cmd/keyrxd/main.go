// keyrxd is the keyboard remapping daemon. It compiles a mapping
// configuration, grabs the matching keyboards, and re-emits remapped
// events through a virtual output device.
package main

import (
	"os"

	"keyrx/cmd/keyrxd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
