package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shestoi/payrelay/internal/app"
	"github.com/shestoi/payrelay/internal/config"
	eventkafka "github.com/shestoi/payrelay/internal/event/kafka"
	"github.com/shestoi/payrelay/internal/telegram"
	platformlogging "github.com/shestoi/payrelay/platform/logging"
)

func redriveCmd() *cobra.Command {
	var idleTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "redrive",
		Short: "Resend lost notifications from the Kafka DLQ to Telegram",
		Long: `Consume the notification DLQ and resend every stored message to its chat.

Offsets are committed only after a successful send. The command stops on the
first message that still cannot be delivered, so the next run starts from it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !cfg.Kafka.Enabled {
				return errors.New("redrive requires KAFKA_ENABLED=true")
			}
			if !cfg.TelegramEnabled {
				return errors.New("redrive requires TELEGRAM_ENABLED=true")
			}

			logger, err := app.NewLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer platformlogging.Sync(logger)

			consumer := eventkafka.NewRedriveConsumer(
				logger,
				cfg.Kafka,
				telegram.NewTelegramSender(logger, cfg.TelegramBotToken),
				cfg.TelegramRetryMaxAttempts,
				cfg.TelegramRetryBackoffBase,
				idleTimeout,
			)
			defer func() {
				if err := consumer.Close(); err != nil {
					logger.Error("failed to close redrive consumer", zap.Error(err))
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sent, err := consumer.Start(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "redelivered %d notification(s)\n", sent)
			return err
		},
	}

	cmd.Flags().DurationVar(&idleTimeout, "idle-timeout", 30*time.Second, "Stop after no new DLQ messages for this long (0 = run until interrupted)")
	return cmd
}
