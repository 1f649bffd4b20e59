// Command bioinfoflow is the CLI entry point: it builds the root Cobra
// command and translates the returned error into a process exit code.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bioinfoflow/bioinfoflow/interfaces/cli"
)

func main() {
	root := cli.NewRootCommand()
	err := root.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "bioinfoflow:", err)
	}
	os.Exit(cli.ExitCode(err))
}
