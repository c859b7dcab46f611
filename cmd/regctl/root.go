package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/config"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/database"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/logging"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:          "regctl",
		Short:        "Operate the Sukamaju Run registration engine",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if envFile != "" {
				if err := godotenv.Overload(envFile); err != nil {
					slog.Warn("could not load env file", "path", envFile, "error", err)
				}
			} else {
				_ = godotenv.Load()
			}
			logging.Setup("info", "text")
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment from this file (default: .env if present)")

	root.AddCommand(
		newMigrateCmd(),
		newExpirePaymentsCmd(),
		newDispatchOutboxCmd(),
		newQuoteCmd(),
		newResetCmd(),
	)
	return root
}

// openService loads configuration and builds an engine over PostgreSQL.
// The caller closes the returned store.
func openService(ctx context.Context) (*core.Service, *database.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	svc, err := core.NewService(db, cfg)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	return svc, db, cfg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
