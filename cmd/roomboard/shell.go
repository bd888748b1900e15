package main

import (
	"os/signal"
	"syscall"

	"github.com/MarcoPoloResearchLab/roomboard/internal/console"
	"github.com/MarcoPoloResearchLab/roomboard/internal/syncstore"
	"github.com/MarcoPoloResearchLab/roomboard/internal/view"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Browse and edit room assignments interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := openApplication(ctx, true)
			if err != nil {
				return err
			}
			defer app.Close()

			store, err := syncstore.NewStore(syncstore.Config{
				Collection: app.collection,
				Logger:     app.logger,
				Registerer: prometheus.NewRegistry(),
			})
			if err != nil {
				return err
			}

			shell := console.NewShell(console.Config{
				In:     cmd.InOrStdin(),
				Out:    cmd.OutOrStdout(),
				Logger: app.logger,
			})
			controller, err := view.NewController(view.Config{
				Store:    store,
				Notifier: shell,
				Logger:   app.logger,
			})
			if err != nil {
				return err
			}
			controller.Start(ctx)
			defer controller.Stop()

			return shell.Run(ctx, controller)
		},
	}
}
