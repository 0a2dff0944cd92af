package main

import (
	"context"
	"fmt"
	"os"

	"hubrunner/cmd/hubctl/commands"
)

func main() {
	app := commands.NewApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
