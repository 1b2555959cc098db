package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/you-humble/pdftoxml/internal/app"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the conversion workers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(
			context.Background(),
			syscall.SIGTERM,
			syscall.SIGINT,
		)
		defer stop()

		a := app.New(ctx, cfgPath)
		return a.Run(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Migrate(cmd.Context(), cfgPath)
	},
}
