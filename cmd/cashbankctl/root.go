package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/cashbank/internal/app"
)

type rootOptions struct {
	debug bool
	cfg   *app.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "cashbankctl",
		Short:         "Operate the cash/bank service",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `cashbankctl runs maintenance tasks against the cash/bank database and queue.

Example:
  cashbankctl migrate up
  cashbankctl seed deploy/seed/cashbank.yml
  cashbankctl enqueue post-confirmed --cash-bank all --until 2024-03-31
  cashbankctl rates flush EUR GBP`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if opts.debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newSeedCmd(opts))
	cmd.AddCommand(newEnqueueCmd(opts))
	cmd.AddCommand(newRatesCmd(opts))
	return cmd
}
