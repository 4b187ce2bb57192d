// Package main provides the conductor engine, the service that turns
// gateway workflow requests into running task graphs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/openimaging/conductor/pkg/cmd"
	"github.com/openimaging/conductor/pkg/log"
	"github.com/openimaging/conductor/pkg/workflow"
)

func main() {
	command := &cli.Command{
		Name:                  "conductor-engine",
		Usage:                 "Start the Conductor workflow engine",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewValidateCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "engine-id",
				Aliases: []string{"id"},
				Usage:   "Custom engine ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ENGINE_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "storage-endpoint",
				Usage:    "Object store endpoint stamped onto dispatch events",
				Required: true,
				Sources:  cli.EnvVars("STORAGE_ENDPOINT"),
			},
			&cli.BoolFlag{
				Name:    "storage-secure",
				Usage:   "Whether dispatch events reference the object store over TLS",
				Value:   true,
				Sources: cli.EnvVars("STORAGE_SECURE"),
			},
			&cli.DurationFlag{
				Name:    "task-timeout",
				Usage:   "Default deadline for tasks without an explicit timeout",
				Value:   workflow.DefaultTaskTimeout,
				Sources: cli.EnvVars("TASK_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "payload-retention",
				Usage:   "How long payload objects are kept after ingestion (0 disables expiry)",
				Value:   workflow.DefaultPayloadRetention,
				Sources: cli.EnvVars("PAYLOAD_RETENTION"),
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

			engineID := command.String("engine-id")
			if engineID == "" {
				engineID = fmt.Sprintf("engine-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("conductor-engine").With("engine_id", engineID)
			logger.Info("Initializing Conductor engine", "engine_id", engineID)

			eventBus := cmd.NewEventBus(command.String("event-bus"), "conductor", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			manager := workflow.NewManager(logger, store, eventBus, workflow.Config{
				Storage: workflow.StorageInfo{
					Endpoint:          command.String("storage-endpoint"),
					SecuredConnection: command.Bool("storage-secure"),
				},
				TaskTimeout:      command.Duration("task-timeout"),
				PayloadRetention: command.Duration("payload-retention"),
			})

			engine := NewEngine(engineID, logger, eventBus, manager)

			return engine.Run(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
