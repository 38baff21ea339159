package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shestoi/payrelay/internal/app"
	"github.com/shestoi/payrelay/internal/config"
	"github.com/shestoi/payrelay/internal/repository"
)

type paymentView struct {
	PaymentID   string `json:"payment_id"`
	EventID     string `json:"event_id"`
	EventType   string `json:"event_type"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	CreateTime  string `json:"create_time"`
	ProcessedAt string `json:"processed_at"`
}

func lookupCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "lookup [payment_id]",
		Short: "Show a recorded payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// лог открытия хранилища в stdout не нужен
			storage, err := app.OpenStorage(cmd.Context(), cfg, zap.NewNop())
			if err != nil {
				return err
			}
			defer storage.Close(cmd.Context())

			rec, err := storage.Repo.FindByPaymentID(cmd.Context(), args[0])
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("payment %s not found", args[0])
			}
			if err != nil {
				return err
			}

			view := paymentView{
				PaymentID:   rec.PaymentID,
				EventID:     rec.EventID,
				EventType:   rec.EventType,
				Amount:      rec.Amount.String(),
				Currency:    rec.Currency,
				Status:      string(rec.Status),
				CreateTime:  rec.CreateTime.Format(time.RFC3339),
				ProcessedAt: rec.ProcessedAt.Format(time.RFC3339),
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			fmt.Fprintf(out, "payment_id:   %s\n", view.PaymentID)
			fmt.Fprintf(out, "amount:       %s %s\n", view.Amount, view.Currency)
			fmt.Fprintf(out, "status:       %s\n", view.Status)
			fmt.Fprintf(out, "event:        %s (%s)\n", view.EventType, view.EventID)
			fmt.Fprintf(out, "create_time:  %s\n", view.CreateTime)
			fmt.Fprintf(out, "processed_at: %s\n", view.ProcessedAt)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}
