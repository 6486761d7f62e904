package actions

import (
	"encoding/json"

	"github.com/dshills/stylesync/internal/settings"
)

// ApplyRequest is the payload of template:apply and palette:apply.
type ApplyRequest struct {
	ID string
}

// ApplyPayload is carried by the applyStarted, applied and applyFailed
// topics of templates and palettes.
type ApplyPayload struct {
	ID       string
	Settings settings.Tree
	Colors   json.RawMessage
	Err      error
}

// SuggestionsPayload is carried by ai:suggestion:loading and
// ai:suggestion:received.
type SuggestionsPayload struct {
	Category    Category
	Suggestions []Suggestion
}

// SuggestionPayload is carried by ai:suggestion:applied and
// ai:suggestion:rejected.
type SuggestionPayload struct {
	Suggestion Suggestion
	Settings   settings.Tree
	Reason     string
}

// SuggestionErrorPayload is carried by ai:suggestion:error. Category is
// empty for apply failures, SuggestionID for load failures.
type SuggestionErrorPayload struct {
	Category     Category
	SuggestionID string
	Err          error
}

// AISettingsPayload is carried by ai:settings:changed.
type AISettingsPayload struct {
	Settings settings.AIPreferences
}
