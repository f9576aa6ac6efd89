package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/cashbank/internal/app"
	"github.com/odyssey-erp/cashbank/internal/platform/db"
	"github.com/odyssey-erp/cashbank/internal/seed"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "seed <fixtures.yml>",
		Short: "Create cash banks, receipt types and document types from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			fixtures, err := seed.Parse(file)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d document types, %d cash banks parsed\n", len(fixtures.DocumentTypes), len(fixtures.CashBanks))
				return nil
			}

			ctx := cmd.Context()
			pool, err := db.New(ctx, opts.cfg.PGDSN, 2)
			if err != nil {
				return err
			}
			defer pool.Close()

			service, err := app.NewCashBankService(opts.cfg, pool, nil, nil)
			if err != nil {
				return err
			}
			report, err := seed.Load(ctx, service, fixtures)
			if err != nil {
				return err
			}
			for _, skipped := range report.Skipped {
				slog.Debug("seed skipped", slog.String("fixture", skipped))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d document types, %d cash banks, %d receipt types (%d skipped)\n",
				report.DocumentTypes, report.CashBanks, report.ReceiptTypes, len(report.Skipped))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse the file without writing")
	return cmd
}
