package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/bioinfoflow/bioinfoflow/interfaces/web"
)

func newServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.WebPort = port
			}

			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			addr := fmt.Sprintf(":%d", cfg.WebPort)
			fmt.Printf("bioinfoflow serving on %s\n", addr)
			return http.ListenAndServe(addr, web.NewServer(eng))
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (0 = use configured web_port)")
	cmd.Flags().BoolVar(&noDB, "no-db", false, "use an in-memory repository instead of MySQL")
	return cmd
}
