// Command edgeid maintains a device's identity map from identity events.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/edgeid/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
