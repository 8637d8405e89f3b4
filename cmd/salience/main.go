// Command salience compiles rule packages and evaluates their salience
// expressions.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/salience/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
