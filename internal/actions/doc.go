// Package actions runs the apply-style operations of the settings UI:
// templates, color palettes and AI suggestions.
//
// Each operation goes through the client's serialized queue, updates the
// settings store as a single undoable step and reports its progress on
// the event bus (applyStarted, applied, applyFailed and the ai:suggestion
// topics).
package actions
