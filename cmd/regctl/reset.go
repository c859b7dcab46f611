package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every registration (staging only)",
		Long: `Delete all registrations, payments, outbox events and bib sequences.
This is destructive and requires --yes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("refusing to reset without --yes")
			}
			_, db, _, err := openService(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Reset(cmd.Context()); err != nil {
				return err
			}
			slog.Info("registration data reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the reset")
	return cmd
}
