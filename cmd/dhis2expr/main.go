// Command dhis2expr parses, checks, evaluates and describes DHIS2
// expressions from the command line.
package main

import (
	"os"

	"github.com/sandrolain/dhis2expr/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
