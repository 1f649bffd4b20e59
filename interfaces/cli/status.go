package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <run_id>",
		Short: "Show a run's state and per-step outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			r, err := eng.Status(cmd.Context(), args[0])
			if err != nil {
				return newExitError(2, err)
			}

			fmt.Printf("run:      %s\n", r.RunID())
			fmt.Printf("workflow: %s/%s\n", r.WorkflowName(), r.WorkflowVersion())
			fmt.Printf("status:   %s\n", r.Status())
			fmt.Println("steps:")
			for name, se := range r.StepExecutions() {
				fmt.Printf("  %-20s %-24s attempt %d exit=%d\n", name, se.Status(), se.Attempt(), se.ExitCode())
				if se.ErrorText() != "" {
					fmt.Printf("      %s\n", se.ErrorText())
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noDB, "no-db", false, "use an in-memory repository instead of MySQL")
	return cmd
}
