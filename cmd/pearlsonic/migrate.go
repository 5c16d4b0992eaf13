package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			// migration.Module applies the schema while the graph is built.
			return runOnce(cmd.Context(), fx.Options(infrastructure()))
		},
	}
}

// runOnce builds the app, starts it so lifecycle hooks run, then stops it.
func runOnce(ctx context.Context, opts fx.Option, invoke ...fx.Option) error {
	if ctx == nil {
		ctx = context.Background()
	}
	app := fx.New(append([]fx.Option{opts, fx.NopLogger}, invoke...)...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return app.Stop(stopCtx)
}
