// torctl installs, updates and runs a local Tor daemon.
package main

import (
	"os"

	"github.com/steveyegge/torctl/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
