package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "logfilterd",
		Usage: "Serve Ethereum-style log filters over ingested blocks",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Ingest blocks and serve the filter JSON-RPC API",
				Flags:  runFlags(),
				Action: run,
			},
			{
				Name:   "remove",
				Usage:  "Delete the log store database",
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
