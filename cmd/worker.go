package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

// WorkerCommand returns the CLI command for running a standalone pipeline
// worker process. Useful when the API and the pipeline scale separately.
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run pipeline workers without the API server",
		Action: func(c *cli.Context) error {
			ctx := context.Background()

			app, err := buildApp(ctx, c.String("config"), true)
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.queue.Start(ctx); err != nil {
				return err
			}
			app.log.Info().Msg("Pipeline workers started")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			<-quit

			app.log.Info().Msg("Shutting down workers")
			return app.queue.Stop(ctx)
		},
	}
}
