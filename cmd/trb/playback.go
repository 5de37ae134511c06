package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

func playCommand() *cobra.Command {
	var (
		repeat    int
		requester string
	)

	cmd := &cobra.Command{
		Use:   "play <query>...",
		Short: "Queue a track, playlist, or feed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			// Resolution can shell out, so give it extra room.
			ctx, cancel := withTimeout(context.Background(), 6*app.timeout)
			defer cancel()

			query := strings.Join(args, " ")
			result, err := app.service.Add(ctx, app.guild, query, repeat, requester)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	cmd.Flags().IntVarP(&repeat, "repeat", "r", 0, "queue the track this many extra times")
	cmd.Flags().StringVar(&requester, "requester", "", "requester name override")

	return cmd
}

func skipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Skip the current track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Skip(ctx, app.guild)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func nextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Start the next queued track if the player is idle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.PlayNext(ctx, app.guild)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func loopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "loop",
		Short: "Replay the current track until unlooped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Loop(ctx, app.guild)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func unloopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unloop",
		Short: "Stop looping and return the track to the queue front",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Unloop(ctx, app.guild)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}
