package commands

import (
	"fmt"

	"hubrunner/cmd/hubctl/client"
	"hubrunner/cmd/hubctl/config"
	"hubrunner/cmd/hubctl/output"
	"hubrunner/version"

	"github.com/urfave/cli/v3"
)

// NewApp creates the root CLI application
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "hubctl",
		Usage:   "hubrunner CLI - submit and track remote generation tasks",
		Version: version.Version,
		// Param values may contain commas.
		DisableSliceFlagSeparator: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server",
				Usage: "hubrunner server URL",
			},
			&cli.StringFlag{
				Name:  "api-key",
				Usage: "API key forwarded to the remote service",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Indent JSON output",
			},
		},
		Commands: []*cli.Command{
			TaskCommand(),
			AppCommand(),
			AccountCommand(),
			UploadCommand(),
			WatchCommand(),
		},
	}
}

// newClient resolves server and key with priority: flag > env > config file.
func newClient(c *cli.Command) (*client.HTTPClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	serverURL := cfg.GetServerURL()
	if c.IsSet("server") {
		serverURL = c.String("server")
	}
	apiKey := cfg.GetAPIKey()
	if c.IsSet("api-key") {
		apiKey = c.String("api-key")
	}

	return client.NewHTTPClient(serverURL, apiKey), nil
}

func printJSON(c *cli.Command, data any) error {
	formatter := output.NewJSONFormatter()
	if c.Bool("pretty") {
		formatter = output.NewPrettyFormatter()
	}

	jsonOutput, err := formatter.Format(data)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	fmt.Fprintln(c.Root().Writer, jsonOutput)
	return nil
}
