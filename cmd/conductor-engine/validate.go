package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"github.com/xeipuuv/gojsonschema"

	"github.com/openimaging/conductor/pkg/cmd"
	"github.com/openimaging/conductor/pkg/log"
	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/services"
)

//go:embed workflow-schema.json
var workflowSchema string

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate workflow definition files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "path",
				Usage:    "Path to a directory of workflow definition JSON files",
				Value:    "./workflows",
				Required: false,
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

			logger := slog.With(
				"module", "conductor-engine",
				"action", "validate",
			)

			registry := cmd.NewRegistry(logger)
			service := services.NewWorkflow(logger, nil, registry)

			files, err := definitionFiles(command.String("path"))
			if err != nil {
				return err
			}

			logger.Info("Validating workflow definitions", "files", len(files))

			fmt.Println("Definition Validation Results:")
			fmt.Println("==============================")

			valid := 0
			invalid := 0

			schemaLoader := gojsonschema.NewStringLoader(workflowSchema)

			for _, file := range files {
				fmt.Printf("\nDefinition: %s\n", filepath.Base(file))

				data, err := os.ReadFile(file)
				if err != nil {
					fmt.Printf("    ❌ INVALID: %v\n", err)
					invalid++

					continue
				}

				result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
				if err != nil {
					fmt.Printf("    ❌ INVALID: %v\n", err)
					invalid++

					continue
				}

				if !result.Valid() {
					for _, resultError := range result.Errors() {
						fmt.Printf("    ❌ INVALID: %s\n", resultError.String())
					}

					invalid++

					continue
				}

				var def models.WorkflowDefinition
				if err := json.Unmarshal(data, &def); err != nil {
					fmt.Printf("    ❌ INVALID: %v\n", err)
					invalid++

					continue
				}

				errs, paths := service.Validate(&def)
				if len(errs) > 0 {
					for _, msg := range errs {
						fmt.Printf("    ❌ INVALID: %s\n", msg)
					}

					invalid++

					continue
				}

				fmt.Printf("    ✅ VALID\n")

				for _, path := range paths {
					fmt.Printf("      path: %s\n", path)
				}

				valid++
			}

			fmt.Printf("\nValidation Summary:\n")
			fmt.Printf("  Total definitions: %d\n", valid+invalid)
			fmt.Printf("  Valid definitions: %d\n", valid)
			fmt.Printf("  Invalid definitions: %d\n", invalid)

			if invalid > 0 {
				return fmt.Errorf("found %d invalid definitions", invalid)
			}

			fmt.Println("All workflow definitions are valid! ✅")

			return nil
		},
	}
}

func definitionFiles(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		files = append(files, filepath.Join(root, entry.Name()))
	}

	return files, nil
}
