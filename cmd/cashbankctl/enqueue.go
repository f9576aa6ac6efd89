package main

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/cashbank/jobs"
)

func newEnqueueCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Submit background jobs",
	}

	var cashBank, until string
	post := &cobra.Command{
		Use:   "post-confirmed",
		Short: "Post confirmed receipts up to a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			if until != "" {
				if _, err := time.Parse(time.DateOnly, until); err != nil {
					return fmt.Errorf("invalid --until %q: want YYYY-MM-DD", until)
				}
			}
			client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: opts.cfg.RedisAddr})
			if err != nil {
				return err
			}
			defer client.Close()

			info, err := client.EnqueuePostConfirmed(cmd.Context(), cashBank, until)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	post.Flags().StringVar(&cashBank, "cash-bank", "all", "cash bank id, or all")
	post.Flags().StringVar(&until, "until", "", "last receipt date to post (default today)")
	cmd.AddCommand(post)

	var retention time.Duration
	cleanup := &cobra.Command{
		Use:   "idempotency-cleanup",
		Short: "Prune stale idempotency keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			if retention <= 0 {
				retention = opts.cfg.IdempotencyRetention
			}
			client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: opts.cfg.RedisAddr})
			if err != nil {
				return err
			}
			defer client.Close()

			info, err := client.EnqueueIdempotencyCleanup(cmd.Context(), retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s\n", info.Type, info.ID)
			return nil
		},
	}
	cleanup.Flags().DurationVar(&retention, "retention", 0, "age of keys to prune (default IDEMPOTENCY_RETENTION)")
	cmd.AddCommand(cleanup)
	return cmd
}
