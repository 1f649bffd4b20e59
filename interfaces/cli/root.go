// Package cli implements the bioinfoflow command-line tool
// (github.com/spf13/cobra, §6): run, list, status, init and serve,
// layered over engine.Engine and internal/config the way the pack's own
// Cobra front ends (tombee-conductor's internal/cli) sit over their own
// core packages.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bioinfoflow/bioinfoflow/internal/config"
)

// ExitError carries the process exit code a command wants main to use,
// distinct from a plain error (which always exits 1).
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

func newExitError(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// ExitCode extracts the process exit code for err: 0 for nil, the code
// carried by an *ExitError, or 1 for any other error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*ExitError); ok {
		return ee.Code
	}
	return 1
}

var configPath string

// NewRootCommand builds the bioinfoflow root command and its subcommands.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "bioinfoflow",
		Short:         "Container-native workflow engine for reproducible data pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to bioinfoflow.yaml (default: ./bioinfoflow.yaml)")

	root.AddCommand(newRunCommand())
	root.AddCommand(newListCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newInitCommand())
	root.AddCommand(newServeCommand())
	return root
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
