package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrClosed indicates the App has been closed.
	ErrClosed = errors.New("app closed")
)

// ComponentError represents a failure of one wired component.
type ComponentError struct {
	Component string // Component name (e.g., "client", "collab")
	Action    string // Action being performed
	Err       error  // Underlying error
}

func (e *ComponentError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s: %s: %v", e.Component, e.Action, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Component, e.Err)
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}
