package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/troubadour-audio/troubadour/internal/core"
)

func connectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <channel-id>",
		Short: "Join a voice channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			channelID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return &core.CLIError{Code: core.ExitUsage, Msg: "channel id must be an integer"}
			}

			result, err := app.service.Connect(ctx, app.guild, channelID)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func disconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Leave the voice channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Disconnect(ctx, app.guild)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}
