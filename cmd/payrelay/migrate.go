package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shestoi/payrelay/internal/app"
	"github.com/shestoi/payrelay/internal/config"
	platformlogging "github.com/shestoi/payrelay/platform/logging"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Long: `Apply the embedded goose migrations to the storage selected by STORAGE_DRIVER.

The server applies them on start as well; this command is for deploy pipelines
that migrate before rolling out new instances.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, err := app.NewLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer platformlogging.Sync(logger)

			storage, err := app.OpenStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer storage.Close(cmd.Context())

			fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d\n", cfg.StorageDriver, storage.SchemaVersion)
			return nil
		},
	}
}
