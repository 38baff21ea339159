package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shestoi/payrelay/internal/app"
	"github.com/shestoi/payrelay/internal/config"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	cfg.Log(logger)

	application, err := app.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	return application.Run(cmd.Context())
}
