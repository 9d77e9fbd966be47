package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudcycle/cloudcycle/pkg/api"
	"github.com/cloudcycle/cloudcycle/pkg/stores"
	"github.com/cloudcycle/cloudcycle/pkg/telemetry"
)

func newServeCommand() *cobra.Command {
	var (
		addr       string
		ledgerPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run history and health over HTTP",
		Long: `Serve the run ledger over HTTP:

  GET /healthz            liveness
  GET /readyz             readiness, pings the ledger
  GET /metrics            Prometheus metrics
  GET /v1/runs            recorded runs, newest first
  GET /v1/runs/{id}       one run with resources, results and events
  GET /v1/runs/{id}/events`,
		Example: `  cloudcycle serve --addr :8080 --ledger cloudcycle.db`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg := telemetry.DefaultConfig()
			logger, err := telemetry.NewLogger(cfg.Logging)
			if err != nil {
				return err
			}
			metrics, err := telemetry.NewMetrics(cfg.Metrics)
			if err != nil {
				return err
			}

			ledger, err := stores.Open(ctx, ledgerPath)
			if err != nil {
				return fmt.Errorf("failed to open ledger: %w", err)
			}
			defer ledger.Close()

			return api.NewServer(addr, ledger, metrics, logger).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&ledgerPath, "ledger", defaultLedgerPath, "SQLite run ledger path")

	return cmd
}
