// Package main provides the conductor sweeper, the service that fails task
// executions past their deadline and deletes payloads past retention.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/openimaging/conductor/pkg/cmd"
	"github.com/openimaging/conductor/pkg/log"
	"github.com/openimaging/conductor/pkg/sweeper"
)

func main() {
	logger := log.WithModule("sweeper")

	command := &cli.Command{
		Name:                  "conductor-sweeper",
		Usage:                 "Start the Conductor timeout and retention sweeper",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus provider (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:     "storage-endpoint",
				Usage:    "Object storage endpoint (host:port)",
				Required: true,
				Sources:  cli.EnvVars("STORAGE_ENDPOINT"),
			},
			&cli.StringFlag{
				Name:    "storage-access-key",
				Usage:   "Object storage access key",
				Sources: cli.EnvVars("STORAGE_ACCESS_KEY"),
			},
			&cli.StringFlag{
				Name:    "storage-secret-key",
				Usage:   "Object storage secret key",
				Sources: cli.EnvVars("STORAGE_SECRET_KEY"),
			},
			&cli.BoolFlag{
				Name:    "storage-secure",
				Usage:   "Use TLS for object storage connections",
				Value:   true,
				Sources: cli.EnvVars("STORAGE_SECURE"),
			},
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "How often to run a sweep pass",
				Value:   sweeper.DefaultInterval,
				Sources: cli.EnvVars("SWEEP_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "staleness",
				Usage:   "How long an in-progress payload delete may sit before retry",
				Value:   sweeper.DefaultStaleness,
				Sources: cli.EnvVars("SWEEP_STALENESS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing Conductor sweeper")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "conductor-sweeper", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			objects := cmd.NewObjectStore(
				logger,
				command.String("storage-endpoint"),
				command.String("storage-access-key"),
				command.String("storage-secret-key"),
				command.Bool("storage-secure"),
			)

			s := sweeper.NewSweeper(logger, persistence, eventBus, objects, sweeper.Config{
				Interval:  command.Duration("interval"),
				Staleness: command.Duration("staleness"),
			})

			if err := s.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			s.Stop()

			logger.Info("Conductor sweeper stopped")

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
