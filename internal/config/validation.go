package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks that the loaded configuration's resource limits are
// sane before the workspace aggregate is constructed from it.
func (c *Config) Validate() error {
	var errors ValidationErrors

	if c.Workspace.Root == "" {
		errors = append(errors, ValidationError{Field: "workspace.root", Message: "must be set"})
	}
	if c.Transport.BaseURL == "" {
		errors = append(errors, ValidationError{Field: "transport.base_url", Message: "must be set"})
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{Field: "server.port", Message: "must be between 1 and 65535"})
	}
	if c.Loop.MaxIterations <= 0 {
		errors = append(errors, ValidationError{Field: "loop.max_iterations", Message: "must be positive"})
	}
	if c.Loop.MaxExploration <= 0 {
		errors = append(errors, ValidationError{Field: "loop.max_exploration", Message: "must be positive"})
	}
	if c.Index.WorkerPoolMax <= 0 {
		errors = append(errors, ValidationError{Field: "index.worker_pool_max", Message: "must be positive"})
	}
	if c.Txn.MaxTransactions <= 0 {
		errors = append(errors, ValidationError{Field: "txn.max_transactions", Message: "must be positive"})
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}
