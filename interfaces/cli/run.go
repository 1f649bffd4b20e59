package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bioinfoflow/bioinfoflow/domain/run"
	"github.com/bioinfoflow/bioinfoflow/domain/workflow"
	"github.com/bioinfoflow/bioinfoflow/engine"
)

func newRunCommand() *cobra.Command {
	var (
		inputFlags       []string
		parallel         int
		defaultTimeLimit int64
		disableLimits    bool
		dryRun           bool
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run a workflow document to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			inputs, err := parseInputFlags(inputFlags)
			if err != nil {
				return newExitError(2, err)
			}

			if dryRun {
				wf, err := workflow.LoadFile(args[0])
				if err != nil {
					return newExitError(2, err)
				}
				fmt.Printf("workflow %s/%s is valid: %d step(s)\n", wf.Name(), wf.Version(), len(wf.StepOrder()))
				return nil
			}

			if outputDirFlag != "" {
				cfg.BaseDir = outputDirFlag
			}
			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			r, err := eng.Run(cmd.Context(), args[0], inputs, engine.RunOptions{
				Parallel:      parallel,
				TimeLimit:     defaultTimeLimit,
				DisableLimits: disableLimits,
			})
			if err != nil {
				return newExitError(2, err)
			}

			printRunSummary(r)

			switch r.Status() {
			case run.StatusCompleted:
				return nil
			case run.StatusSkipped:
				return newExitError(130, fmt.Errorf("run %s was cancelled", r.RunID()))
			default:
				return newExitError(1, fmt.Errorf("run %s ended in %s", r.RunID(), r.Status()))
			}
		},
	}

	cmd.Flags().StringArrayVar(&inputFlags, "input", nil, "override a declared input, k=v (repeatable)")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "maximum concurrent steps (0 = engine default)")
	cmd.Flags().Int64Var(&defaultTimeLimit, "default-time-limit", 0, "default per-step time limit in seconds (0 = engine default)")
	cmd.Flags().BoolVar(&disableLimits, "disable-time-limits", false, "run every step with no time limit")
	cmd.Flags().StringVar(&outputDirFlag, "output-dir", "", "override the base run directory for this invocation")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the workflow document without running it")
	cmd.Flags().BoolVar(&noDB, "no-db", false, "use an in-memory repository instead of MySQL")
	return cmd
}

var outputDirFlag string

func parseInputFlags(flags []string) (map[string]string, error) {
	out := make(map[string]string, len(flags))
	for _, f := range flags {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --input %q: expected k=v", f)
		}
		out[k] = v
	}
	return out, nil
}

func printRunSummary(r *run.Run) {
	fmt.Printf("run %s: %s\n", r.RunID(), r.Status())
	for name, se := range r.StepExecutions() {
		fmt.Printf("  %-20s %s\n", name, se.Status())
	}
}
