package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sitbrief/internal/app"
	"sitbrief/internal/infrastructure/storage"
)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var withGateway bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and the publish scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signalContext(cmd.Context())
			defer stop()
			return ctx.withApp(runCtx, func(a *app.Application) error {
				if withGateway {
					return a.ServeAll(runCtx)
				}
				return a.ServeAdmin(runCtx)
			})
		},
	}
	cmd.Flags().BoolVar(&withGateway, "gateway", false, "Also serve the public gateway")
	return cmd
}

func newGatewayCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the public read-only API over the exported documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signalContext(cmd.Context())
			defer stop()
			return ctx.withApp(runCtx, func(a *app.Application) error {
				return a.ServeGateway(runCtx)
			})
		},
	}
}

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			repo, err := storage.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer repo.Close()
			if err := repo.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}
