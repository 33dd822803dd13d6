// Command xopt runs closed-loop optimizations described by a YAML or JSON
// run document.
package main

import (
	"os"

	"github.com/roach88/xopt/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
