package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/cashbank/internal/currency"
	"github.com/odyssey-erp/cashbank/internal/platform/cache"
)

func newRatesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Manage the currency rate cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "flush <currency>...",
		Short: "Drop cached rates after importing new ones",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := cache.New(ctx, opts.cfg.RedisAddr)
			if err != nil {
				return err
			}
			defer client.Close()

			// flushing only touches the cache, so no rate repository is needed.
			rates := currency.NewService(nil, client, opts.cfg.RateCacheTTL, opts.cfg.CompanyCurrency)
			for _, code := range args {
				if err := rates.Invalidate(ctx, code); err != nil {
					return fmt.Errorf("flush %s: %w", code, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "flushed %s\n", code)
			}
			return nil
		},
	})
	return cmd
}
