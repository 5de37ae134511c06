package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/troubadour-audio/troubadour/internal/core"
)

func queueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.State(ctx, app.guild)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <index>",
		Short: "Remove a queue entry by index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			index, err := strconv.Atoi(args[0])
			if err != nil {
				return &core.CLIError{Code: core.ExitUsage, Msg: "index must be an integer"}
			}

			result, err := app.service.Remove(ctx, app.guild, index)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func resetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Stop playback and clear the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Reset(ctx, app.guild)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}
