// Package cmd provides common initialization functions for the conductor
// binaries.
package cmd

import (
	"log/slog"

	"github.com/openimaging/conductor/pkg/registry"
	"github.com/openimaging/conductor/pkg/runners/argo"
	"github.com/openimaging/conductor/pkg/runners/docker"
)

func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterRunner(argo.NewFactory())
	reg.RegisterRunner(docker.NewFactory())

	return reg
}
