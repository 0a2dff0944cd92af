package commands

import (
	"context"
	"fmt"

	"hubrunner/cmd/hubctl/client"

	"github.com/urfave/cli/v3"
)

// AppCommand returns the app command with subcommands
func AppCommand() *cli.Command {
	return &cli.Command{
		Name:  "app",
		Usage: "Inspect remote applications",
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show a remote application's details and input fields",
				ArgsUsage: "<webapp-id>",
				Action:    showAppAction,
			},
		},
	}
}

func showAppAction(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("webapp ID is required")
	}

	httpClient, err := newClient(c)
	if err != nil {
		return err
	}

	detail, err := httpClient.WebappDetail(ctx, c.Args().Get(0))
	if err != nil {
		return fmt.Errorf("failed to get app: %w", err)
	}

	return printJSON(c, detail)
}

func AccountCommand() *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "Show remote account status",
		Action: func(ctx context.Context, c *cli.Command) error {
			httpClient, err := newClient(c)
			if err != nil {
				return err
			}

			status, err := httpClient.Account(ctx)
			if err != nil {
				return fmt.Errorf("failed to get account status: %w", err)
			}

			return printJSON(c, status)
		},
	}
}

func UploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload an input file to the remote service",
		ArgsUsage: "<path>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("file path is required")
			}

			httpClient, err := newClient(c)
			if err != nil {
				return err
			}

			result, err := httpClient.Upload(ctx, c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to upload: %w", err)
			}

			return printJSON(c, result)
		},
	}
}

// WatchCommand streams task events. With --until it exits once the given
// task reaches a terminal state.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Stream task events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "until",
				Usage: "Stop when this task finishes",
			},
		},
		Action: watchAction,
	}
}

func watchAction(ctx context.Context, c *cli.Command) error {
	httpClient, err := newClient(c)
	if err != nil {
		return err
	}

	until := c.String("until")
	return httpClient.Watch(ctx, func(ev client.Event) error {
		if err := printJSON(c, ev); err != nil {
			return err
		}
		if until == "" {
			return nil
		}
		if ev.Task != nil && ev.Task.ID == until && ev.Task.Status.IsTerminal() {
			return client.ErrStopWatching
		}
		for _, t := range ev.Tasks {
			if t.ID == until && t.Status.IsTerminal() {
				return client.ErrStopWatching
			}
		}
		return nil
	})
}
