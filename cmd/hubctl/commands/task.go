package commands

import (
	"context"
	"fmt"
	"strconv"

	"hubrunner/cmd/hubctl/client"

	"github.com/urfave/cli/v3"
)

// TaskCommand returns the task command with subcommands
func TaskCommand() *cli.Command {
	return &cli.Command{
		Name:  "task",
		Usage: "Manage tasks",
		Commands: []*cli.Command{
			submitTaskCommand(),
			batchTaskCommand(),
			listTaskCommand(),
			getTaskCommand(),
			cancelTaskCommand(),
			removeTaskCommand(),
			removeOutputCommand(),
			clearHistoryCommand(),
			statsCommand(),
		},
	}
}

func appFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "app-id",
			Usage:    "Local application identifier",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "app-name",
			Usage: "Display name",
		},
		&cli.StringFlag{
			Name:     "webapp-id",
			Usage:    "Remote application id",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:  "param",
			Usage: "Input field (repeatable, format: nodeId:fieldName=value)",
		},
	}
}

func submitTaskCommand() *cli.Command {
	return &cli.Command{
		Name:   "submit",
		Usage:  "Submit a task",
		Flags:  appFlags(),
		Action: submitTaskAction,
	}
}

func submitTaskAction(ctx context.Context, c *cli.Command) error {
	params, err := parseParams(c.StringSlice("param"))
	if err != nil {
		return err
	}

	httpClient, err := newClient(c)
	if err != nil {
		return err
	}

	resp, err := httpClient.SubmitTask(ctx, &client.SubmitTaskRequest{
		AppID:    c.String("app-id"),
		AppName:  c.String("app-name"),
		WebappID: c.String("webapp-id"),
		Params:   params,
	})
	if err != nil {
		return fmt.Errorf("failed to submit task: %w", err)
	}

	return printJSON(c, resp)
}

func batchTaskCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Submit one task per line of a parameter file",
		Flags: append(appFlags(), &cli.StringFlag{
			Name:     "file",
			Usage:    "Parameter file, one set of nodeId:fieldName=value per line",
			Required: true,
		}),
		Action: batchTaskAction,
	}
}

func batchTaskAction(ctx context.Context, c *cli.Command) error {
	base, err := parseParams(c.StringSlice("param"))
	if err != nil {
		return err
	}
	sets, err := readParamSets(c.String("file"), base)
	if err != nil {
		return fmt.Errorf("failed to read batch file: %w", err)
	}

	httpClient, err := newClient(c)
	if err != nil {
		return err
	}

	resp, err := httpClient.SubmitBatch(ctx, &client.SubmitBatchRequest{
		AppID:     c.String("app-id"),
		AppName:   c.String("app-name"),
		WebappID:  c.String("webapp-id"),
		ParamSets: sets,
	})
	if err != nil {
		return fmt.Errorf("failed to submit batch: %w", err)
	}

	if err := printJSON(c, resp); err != nil {
		return err
	}
	if resp.Truncated {
		return fmt.Errorf("batch stopped after %d of %d tasks: %s", len(resp.Tasks), resp.Requested, resp.Error)
	}
	return nil
}

func listTaskCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List tasks, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "status",
				Usage: "Filter by status (pending, queued, running, success, failed)",
			},
		},
		Action: listTaskAction,
	}
}

func listTaskAction(ctx context.Context, c *cli.Command) error {
	httpClient, err := newClient(c)
	if err != nil {
		return err
	}

	tasks, err := httpClient.ListTasks(ctx, c.String("status"))
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	return printJSON(c, tasks)
}

func getTaskCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get task details",
		ArgsUsage: "<task-id>",
		Action:    getTaskAction,
	}
}

func getTaskAction(ctx context.Context, c *cli.Command) error {
	taskID, err := taskIDArg(c)
	if err != nil {
		return err
	}

	httpClient, err := newClient(c)
	if err != nil {
		return err
	}

	t, err := httpClient.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to get task: %w", err)
	}

	return printJSON(c, t)
}

func cancelTaskCommand() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel a pending, queued or running task",
		ArgsUsage: "<task-id>",
		Action:    cancelTaskAction,
	}
}

func cancelTaskAction(ctx context.Context, c *cli.Command) error {
	taskID, err := taskIDArg(c)
	if err != nil {
		return err
	}

	httpClient, err := newClient(c)
	if err != nil {
		return err
	}

	t, err := httpClient.CancelTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}

	return printJSON(c, t)
}

func removeTaskCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Remove a task from history",
		ArgsUsage: "<task-id>",
		Action:    removeTaskAction,
	}
}

func removeTaskAction(ctx context.Context, c *cli.Command) error {
	taskID, err := taskIDArg(c)
	if err != nil {
		return err
	}

	httpClient, err := newClient(c)
	if err != nil {
		return err
	}

	if err := httpClient.DeleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("failed to remove task: %w", err)
	}

	return printJSON(c, map[string]string{"removed": taskID})
}

func removeOutputCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm-output",
		Usage:     "Remove one output of a finished task",
		ArgsUsage: "<task-id> <index>",
		Action:    removeOutputAction,
	}
}

func removeOutputAction(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("task ID and output index are required")
	}
	taskID := c.Args().Get(0)
	index, err := strconv.Atoi(c.Args().Get(1))
	if err != nil {
		return fmt.Errorf("invalid output index %q", c.Args().Get(1))
	}

	httpClient, err := newClient(c)
	if err != nil {
		return err
	}

	resp, err := httpClient.DeleteOutput(ctx, taskID, index)
	if err != nil {
		return fmt.Errorf("failed to remove output: %w", err)
	}

	return printJSON(c, resp)
}

func clearHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:   "clear",
		Usage:  "Remove every finished task",
		Action: clearHistoryAction,
	}
}

func clearHistoryAction(ctx context.Context, c *cli.Command) error {
	httpClient, err := newClient(c)
	if err != nil {
		return err
	}

	resp, err := httpClient.ClearHistory(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	return printJSON(c, resp)
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show task counts and slot usage",
		Action: statsAction,
	}
}

func statsAction(ctx context.Context, c *cli.Command) error {
	httpClient, err := newClient(c)
	if err != nil {
		return err
	}

	stats, err := httpClient.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	return printJSON(c, stats)
}

func taskIDArg(c *cli.Command) (string, error) {
	if c.Args().Len() != 1 {
		return "", fmt.Errorf("task ID is required")
	}
	return c.Args().Get(0), nil
}
