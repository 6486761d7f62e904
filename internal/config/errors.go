package config

import (
	"errors"
	"fmt"

	"github.com/dshills/stylesync/internal/config/loader"
)

// Errors returned by configuration operations.
var (
	// ErrInvalidDuration indicates a duration value that time.ParseDuration rejects.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrNoPath indicates Watch was called without a file to watch.
	ErrNoPath = errors.New("config: no file path to watch")
)

// ParseError represents an error while parsing a configuration file.
type ParseError = loader.ParseError

// ValidationError describes an invalid configuration field.
type ValidationError struct {
	// Field is the dotted key, e.g. "client.base_url".
	Field string
	// Message describes the problem.
	Message string
	// Value is the rejected value, if any.
	Value any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("config: %s %s (got %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("config: %s %s", e.Field, e.Message)
}
