// Package protocol defines the contracts between the orchestrator and
// pluggable task-execution backends.
package protocol

// RunnerFactory describes one task plugin type the orchestrator can
// dispatch to. Factories are registered explicitly at process start and
// looked up by type id; there is no runtime plugin scanning.
type RunnerFactory interface {
	// ID returns the task type this factory serves, as used in
	// TaskNode.Type (for example "argo" or "docker").
	ID() string

	// ValidateArguments checks a task node's plugin arguments at
	// definition-validation time so malformed definitions are rejected
	// before any instance is created.
	ValidateArguments(args map[string]string) error
}
