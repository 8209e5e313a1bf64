package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "rootsyncer",
		Usage: "Mirror the trailing window of finalized state roots into an oracle",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the window synchronizer",
				Flags:  runFlags(),
				Action: run,
			},
			{
				Name:   "remove-checkpoint",
				Usage:  "Remove the persisted cursor for a chain so the next run bootstraps the window",
				Flags:  removeFlags(),
				Action: remove,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
