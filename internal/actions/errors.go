package actions

import "errors"

var (
	// ErrAIDisabled is returned by LoadSuggestions when the ai.enabled
	// setting is off.
	ErrAIDisabled = errors.New("AI features are disabled")

	// ErrUnknownCategory is returned for a suggestion category the server
	// does not provide.
	ErrUnknownCategory = errors.New("unknown AI category")

	// ErrNotApplied is returned when the server accepted an AI suggestion
	// but returned no settings.
	ErrNotApplied = errors.New("AI suggestion applied without settings")

	// ErrMalformedColors is returned when a palette response is not an
	// object of colors.
	ErrMalformedColors = errors.New("palette colors must be a JSON object")
)
