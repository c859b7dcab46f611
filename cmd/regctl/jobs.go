package main

import (
	"github.com/spf13/cobra"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/notify"
)

func newExpirePaymentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-payments",
		Short: "Expire overdue pending payments once",
		Long: `Expire every pending payment past its deadline and cancel its
registration. The server runs the same job on PAYMENT_EXPIRY_CHECK_INTERVAL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := core.ContextWithChannel(cmd.Context(), "cli")
			svc, db, _, err := openService(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := svc.ExpirePendingPayments(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int{"expired": n})
		},
	}
}

func newDispatchOutboxCmd() *cobra.Command {
	var logOnly bool

	cmd := &cobra.Command{
		Use:   "dispatch-outbox",
		Short: "Deliver due outbox events once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := core.ContextWithChannel(cmd.Context(), "cli")
			_, db, cfg, err := openService(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			var notifier core.Notifier = core.LogNotifier{}
			if cfg.Outbox.WebhookURL != "" && !logOnly {
				notifier = notify.NewWebhook(cfg.Outbox.WebhookURL, cfg.Outbox.WebhookSecret, cfg.Outbox.WebhookTimeout)
			}
			d := core.NewDispatcher(db, notifier, core.DispatcherConfig{
				BatchSize:   cfg.Outbox.BatchSize,
				MaxAttempts: cfg.Outbox.MaxAttempts,
				Parallelism: cfg.Outbox.Parallelism,
				BaseBackoff: cfg.Outbox.BaseBackoff,
				ClaimLease:  cfg.Outbox.ClaimLease,
			})

			stats, err := d.DispatchOnce(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().BoolVar(&logOnly, "log-only", false, "log events instead of posting to OUTBOX_WEBHOOK_URL")
	return cmd
}
