package channel

import (
	"encoding/json"
	"time"
)

// Message types on the wire.
const (
	TypeAuth           = "auth"
	TypePing           = "ping"
	TypePong           = "pong"
	TypePresence       = "presence"
	TypePresenceUpdate = "presence-update"
	TypeStateChange    = "state-change"
)

// Operations carried by a StateChange.
const (
	OpSet    = "set"
	OpDelete = "delete"
)

// Message is the envelope of every frame.
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Token     string          `json:"token,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// StateChange is a settings mutation broadcast to other clients.
type StateChange struct {
	ID        string `json:"id"`
	ClientID  string `json:"clientId"`
	UserID    string `json:"userId,omitempty"`
	Path      string `json:"path"`
	Value     any    `json:"value,omitempty"`
	OldValue  any    `json:"oldValue,omitempty"`
	Operation string `json:"operation"`
	Timestamp int64  `json:"timestamp"`
}

// Presence describes where a collaborator is and what they are doing.
type Presence struct {
	UserID    string         `json:"userId,omitempty"`
	UserName  string         `json:"userName,omitempty"`
	ClientID  string         `json:"clientId,omitempty"`
	Activity  string         `json:"activity"`
	Location  string         `json:"location"`
	Metadata  map[string]any `json:"metadata"`
	Timestamp int64          `json:"timestamp"`
}

// DecodeStateChange decodes the data of a state-change message.
func DecodeStateChange(data json.RawMessage) (StateChange, error) {
	var sc StateChange
	err := json.Unmarshal(data, &sc)
	return sc, err
}

// Time returns the change timestamp.
func (sc StateChange) Time() time.Time {
	return time.UnixMilli(sc.Timestamp)
}

// Time returns the presence timestamp.
func (p Presence) Time() time.Time {
	return time.UnixMilli(p.Timestamp)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
