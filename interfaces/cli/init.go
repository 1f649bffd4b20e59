package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const templateWorkflow = `name: %s
version: "1"
description: describe your pipeline here

config:
  reference: /data/reference.fa

inputs:
  reads: "*.fastq.gz"

steps:
  align:
    container: biocontainers/bwa:latest
    command: "bwa mem ${config.reference} ${inputs.reads} > ${run_dir}/outputs/align.sam"
    resources:
      cpu: 4
      memory: 4g
      time_limit: 1h

  sort:
    container: biocontainers/samtools:latest
    command: "samtools sort ${steps.align.outputs.align} -o ${run_dir}/outputs/sorted.bam"
    after: [align]
    resources:
      time_limit: 30m
`

func newInitCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "init <name>",
		Short: "Write a template workflow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := output
			if path == "" {
				path = args[0] + ".yaml"
			}
			contents := fmt.Sprintf(templateWorkflow, args[0])
			if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
				return fmt.Errorf("write template: %w", err)
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "output file path (default: <name>.yaml)")
	return cmd
}
