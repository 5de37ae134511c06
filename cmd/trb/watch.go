package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/troubadour-audio/troubadour/internal/core"
)

func watchCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream player events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			guild := app.guild
			if all {
				guild = -1
			}
			events, errs := app.service.Watch(ctx, guild)
			for {
				select {
				case <-ctx.Done():
					return nil
				case err, ok := <-errs:
					if !ok {
						return nil
					}
					if err != nil {
						return core.WrapError(core.ExitRuntime, "watch", err)
					}
				case evt, ok := <-events:
					if !ok {
						return nil
					}
					if err := app.printer.Print(core.EventResult{Event: evt}); err != nil {
						return err
					}
				}
			}
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "watch every guild")

	return cmd
}
