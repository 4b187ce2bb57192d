// Package docker registers the container execution backend task type.
package docker

import (
	"errors"
	"strings"
)

const TaskType = "docker"

var ErrMissingImage = errors.New("docker task requires a container_image argument")

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) ID() string {
	return TaskType
}

func (f *Factory) ValidateArguments(args map[string]string) error {
	if strings.TrimSpace(args["container_image"]) == "" {
		return ErrMissingImage
	}

	return nil
}
