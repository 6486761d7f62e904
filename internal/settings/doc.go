// Package settings holds the local settings model.
//
// A Tree is an immutable JSON document addressed by dot-separated paths.
// Store owns the current Tree and adds an LFU read cache, bounded undo
// and redo history, dirty and loading flags, server load and save, and
// change events on the bus.
package settings
