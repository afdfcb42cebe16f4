package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/better-wallet/delegate-recovery/internal/storage"
)

var (
	migrateDSN       string
	migrateDirection string
	migrateSteps     int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDSN, "dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	migrateCmd.Flags().StringVar(&migrateDirection, "direction", storage.DirectionUp, "Migration direction: up or down")
	migrateCmd.Flags().IntVar(&migrateSteps, "steps", 0, "Number of migrations to run (0 = all)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if migrateDSN == "" {
		return errors.New("--dsn or POSTGRES_DSN is required")
	}

	store, err := storage.New(ctx, migrateDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	ran, err := storage.Migrate(ctx, store.DB(), migrateDirection, migrateSteps)
	for _, version := range ran {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", migrateDirection, version)
	}
	if err != nil {
		return err
	}
	if len(ran) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no pending migrations")
	}
	return nil
}
