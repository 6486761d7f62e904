package settings

import "errors"

// Sentinel errors for the settings store.
var (
	// ErrInvalidPath is returned for an empty or malformed setting path.
	ErrInvalidPath = errors.New("invalid setting path")

	// ErrMalformedTree is returned when a document is not a JSON object.
	ErrMalformedTree = errors.New("settings tree must be a JSON object")

	// ErrSaveInProgress is returned when SaveToServer is called while a
	// previous save has not finished. No request is issued.
	ErrSaveInProgress = errors.New("save already in progress")

	// ErrNoRemote is returned by load and save when the store has no Remote.
	ErrNoRemote = errors.New("settings store has no remote")
)
