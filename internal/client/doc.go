// Package client talks to the remote settings service.
//
// A Client runs every request through one pipeline: request interceptors,
// a bearer token, a per-attempt timeout, classification of failures into
// Kinds, exponential-backoff retries for transient kinds, and a single
// token refresh when the server rejects the token. Concurrent rejections
// share one refresh.
//
// Mutating operations (save, apply template, apply palette, apply AI
// suggestion) go through a Queue that runs them one at a time in FIFO
// order and hands callers of an operation already pending the same Call.
//
// The persistent channel lives in the channel subpackage; Client creates
// the session lazily and exposes it through ConnectChannel,
// SubscribeMessages, BroadcastStateChange and related methods.
package client
