// Command ratelimits maintains versioned rate-limit rule configurations.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ratelimits/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
