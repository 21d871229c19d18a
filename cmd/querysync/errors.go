package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arthur-debert/querysync/querysync/storage"
)

// CLIError is an error with the failed operation and suggestions for the
// user
type CLIError struct {
	Operation   string
	Cause       string
	Details     string
	Suggestions []string
	Underlying  error
}

func (e *CLIError) Error() string {
	var msg strings.Builder

	if e.Operation != "" {
		fmt.Fprintf(&msg, "Failed to %s", e.Operation)
	} else {
		msg.WriteString("Operation failed")
	}
	if e.Cause != "" {
		fmt.Fprintf(&msg, ": %s", e.Cause)
	}
	if e.Details != "" {
		fmt.Fprintf(&msg, " (%s)", e.Details)
	}
	if len(e.Suggestions) > 0 {
		msg.WriteString("\n\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			fmt.Fprintf(&msg, "\n  %d. %s", i+1, suggestion)
		}
	}
	return msg.String()
}

func (e *CLIError) Unwrap() error {
	return e.Underlying
}

// NewValidationError reports a malformed argument
func NewValidationError(operation, field, value string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("invalid %s: %q", field, value),
		Suggestions: suggestions,
	}
}

// NewNotFoundError reports an unknown route or dataset
func NewNotFoundError(operation, resource, name string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("%s %q not found", resource, name),
		Suggestions: suggestions,
	}
}

// NewConfigError reports a configuration problem
func NewConfigError(operation string, underlying error, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       "configuration error",
		Details:     underlying.Error(),
		Suggestions: suggestions,
		Underlying:  underlying,
	}
}

// NewStrictError reports parameters rejected in strict mode, one detail
// per problem
func NewStrictError(operation string, underlying error) *CLIError {
	return &CLIError{
		Operation: operation,
		Cause:     "parameters rejected in strict mode",
		Details:   strings.ReplaceAll(underlying.Error(), "; ", ", "),
		Suggestions: []string{
			"Run 'querysync routes' to see the parameters each route allows",
			"Drop --strict to let malformed values fall back to their defaults",
		},
		Underlying: underlying,
	}
}

// NewStoreError reports a failure of the persisted state
func NewStoreError(operation string, underlying error, suggestions ...string) *CLIError {
	cause := "state operation failed"
	details := ""

	if underlying != nil {
		details = underlying.Error()
		errStr := strings.ToLower(details)
		switch {
		case errors.Is(underlying, storage.ErrLocked):
			cause = "cache file is locked by another process"
		case strings.Contains(errStr, "permission denied"):
			cause = "insufficient permissions to access the cache file"
		case strings.Contains(errStr, "failed to parse"):
			cause = "cache file is corrupt"
		case strings.Contains(errStr, "no such file"):
			cause = "cache file not found"
		}
	}

	return &CLIError{
		Operation:   operation,
		Cause:       cause,
		Details:     details,
		Suggestions: suggestions,
		Underlying:  underlying,
	}
}

// WrapError adds CLI context to err. CLIErrors keep their own context.
func WrapError(operation string, err error, suggestions ...string) error {
	if err == nil {
		return nil
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		if cliErr.Operation == "" {
			cliErr.Operation = operation
		}
		return cliErr
	}
	return NewStoreError(operation, err, suggestions...)
}

// CommonSuggestions are reused across commands
var CommonSuggestions = struct {
	CheckRoutes  string
	CheckCache   string
	CheckConfig  string
	CheckDataset string
	RunHelp      string
	QuoteJSON    string
}{
	CheckRoutes:  "Run 'querysync routes' to list known routes",
	CheckCache:   "Verify --cache points to a writable file",
	CheckConfig:  "Check your querysync.yaml or QUERYSYNC_* environment variables",
	CheckDataset: "Datasets are 'products' and 'users'",
	RunHelp:      "Run command with --help for usage information",
	QuoteJSON:    `Quote JSON arguments for your shell, e.g. '{"page":2,"pageSize":20}'`,
}
