package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bioinfoflow/bioinfoflow/domain/run"
)

func newListCommand() *cobra.Command {
	var (
		workflowName string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List past and in-flight runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			runs, err := eng.List(cmd.Context(), run.ListFilter{WorkflowName: workflowName, Limit: limit})
			if err != nil {
				return err
			}

			if len(runs) == 0 {
				fmt.Println("no runs found")
				return nil
			}
			fmt.Printf("%-28s %-20s %-10s %s\n", "RUN ID", "WORKFLOW", "VERSION", "STATUS")
			for _, r := range runs {
				fmt.Printf("%-28s %-20s %-10s %s\n", r.RunID(), r.WorkflowName(), r.WorkflowVersion(), r.Status())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowName, "workflow", "", "filter by workflow name")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of runs to list (0 = unlimited)")
	cmd.Flags().BoolVar(&noDB, "no-db", false, "use an in-memory repository instead of MySQL")
	return cmd
}
