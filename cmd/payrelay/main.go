package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shestoi/payrelay/internal/app"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "payrelay",
		Short:   "PayPal webhook receiver with Telegram payment notifications",
		Version: app.Version,
		// без подкоманды запускаем сервер
		RunE:          runServe,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(lookupCmd())
	rootCmd.AddCommand(redriveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
