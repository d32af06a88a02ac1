package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/meetgraph/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "meetgraph",
		Usage:   "Meeting audio to searchable knowledge graph pipeline",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "meetgraph.toml",
			},
		},
		Commands: []*cli.Command{
			cmd.APICommand(),
			cmd.WorkerCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
