// Package registry maps task plugin types to their factories. Types are
// registered explicitly at process start and looked up by key.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/openimaging/conductor/pkg/protocol"
)

type Registry struct {
	logger          *slog.Logger
	runnerFactories map[string]protocol.RunnerFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:          logger,
		runnerFactories: make(map[string]protocol.RunnerFactory),
	}
}

func (r *Registry) RegisterRunner(factory protocol.RunnerFactory) {
	r.runnerFactories[factory.ID()] = factory
	r.logger.Debug("Registered task runner type", "type", factory.ID())
}

func (r *Registry) IsRunnerRegistered(taskType string) bool {
	_, ok := r.runnerFactories[taskType]

	return ok
}

// ValidateTaskArguments delegates plugin-argument validation to the factory
// registered for the task type.
func (r *Registry) ValidateTaskArguments(taskType string, args map[string]string) error {
	factory, ok := r.runnerFactories[taskType]
	if !ok {
		return fmt.Errorf("task type %q not registered", taskType)
	}

	return factory.ValidateArguments(args)
}

// RunnerTypes returns the registered task type ids.
func (r *Registry) RunnerTypes() []string {
	types := make([]string, 0, len(r.runnerFactories))
	for taskType := range r.runnerFactories {
		types = append(types, taskType)
	}

	return types
}
