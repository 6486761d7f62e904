package collab

import "time"

// StatusPayload is carried by collaboration:enabled and
// collaboration:disabled.
type StatusPayload struct {
	ClientID  string
	Timestamp time.Time
}

// RemoteChangePayload is carried by collaboration:remoteChange.
type RemoteChangePayload struct {
	Path      string
	Value     any
	Deleted   bool
	ClientID  string
	UserID    string
	Timestamp time.Time
}

// ConflictPayload is carried by collaboration:conflict when a pending
// local operation overrode a remote one.
type ConflictPayload struct {
	Path     string
	Local    Operation
	Remote   Operation
	Resolved Operation
}

// PresencePayload is carried by collaboration:presenceUpdate,
// collaboration:userJoined and collaboration:userLeft.
type PresencePayload struct {
	UserID   string
	Presence Collaborator
}
