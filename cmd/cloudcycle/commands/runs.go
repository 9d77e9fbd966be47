package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudcycle/cloudcycle/pkg/api"
	"github.com/cloudcycle/cloudcycle/pkg/stores"
)

const defaultLedgerPath = "cloudcycle.db"

func newRunsCommand() *cobra.Command {
	var ledgerPath string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect run history in the ledger",
	}
	cmd.PersistentFlags().StringVar(&ledgerPath, "ledger", defaultLedgerPath, "SQLite run ledger path")

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ledger, err := stores.Open(ctx, ledgerPath)
			if err != nil {
				return fmt.Errorf("failed to open ledger: %w", err)
			}
			defer ledger.Close()

			runs, err := ledger.ListRuns(ctx, limit, offset)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")
	list.Flags().IntVar(&offset, "offset", 0, "runs to skip")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run with its resources, results and events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ledger, err := stores.Open(ctx, ledgerPath)
			if err != nil {
				return fmt.Errorf("failed to open ledger: %w", err)
			}
			defer ledger.Close()

			detail, err := api.LoadRunDetail(ctx, ledger, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), detail)
			}
			return printRunDetail(cmd.OutOrStdout(), detail)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}
