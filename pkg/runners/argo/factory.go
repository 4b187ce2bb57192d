// Package argo registers the Argo Workflows execution backend task type.
package argo

import (
	"errors"
	"strings"
)

const TaskType = "argo"

var ErrMissingTemplate = errors.New("argo task requires a workflow_template_name argument")

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) ID() string {
	return TaskType
}

func (f *Factory) ValidateArguments(args map[string]string) error {
	if strings.TrimSpace(args["workflow_template_name"]) == "" {
		return ErrMissingTemplate
	}

	return nil
}
