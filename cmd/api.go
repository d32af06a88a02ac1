package cmd

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/meetgraph/internal/api"
)

// APICommand returns the CLI command for starting the API server.
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the MeetGraph API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "workers",
				Usage: "Also run pipeline workers in this process",
				Value: true,
			},
		},
		Action: func(c *cli.Context) error {
			ctx := context.Background()

			app, err := buildApp(ctx, c.String("config"), c.Bool("workers"))
			if err != nil {
				return err
			}
			defer app.close()

			port := app.cfg.Server.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}

			if c.Bool("workers") {
				if err := app.queue.Start(ctx); err != nil {
					return err
				}
				defer app.queue.Stop(ctx)
			}

			server := api.NewServer(port, app.deps)
			return server.Start()
		},
	}
}
