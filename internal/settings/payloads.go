package settings

import "encoding/json"

// ChangedPayload is carried by settings:changed. Path is empty for bulk
// updates and whole-tree replacements.
type ChangedPayload struct {
	Path     string
	Value    any
	Settings Tree
	Source   string
}

// ResetPayload is carried by settings:reset, before the tree changes.
type ResetPayload struct {
	PreviousSettings Tree
}

// ResetCompletePayload is carried by settings:resetComplete.
type ResetCompletePayload struct {
	Settings Tree
}

// SavePayload is carried by settings:save.
type SavePayload struct {
	Settings Tree
}

// SavedPayload is carried by settings:saved.
type SavedPayload struct {
	Settings Tree
	Response json.RawMessage
}

// SaveFailedPayload is carried by settings:saveFailed.
type SaveFailedPayload struct {
	Settings Tree
	Err      error
}

// LoadedPayload is carried by settings:loaded. Fallback is true when the
// bootstrap tree was used because the remote failed.
type LoadedPayload struct {
	Settings Tree
	Fallback bool
}

// UIState holds the flags a settings UI binds to.
type UIState struct {
	ActiveTab     string
	IsDirty       bool
	IsPreviewMode bool
	IsSaving      bool
	IsLoading     bool
}
