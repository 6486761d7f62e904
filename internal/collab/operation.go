package collab

import (
	"time"

	"github.com/dshills/stylesync/internal/client/channel"
)

// OpType is the kind of mutation an Operation performs.
type OpType string

const (
	// OpSet writes Value at Path.
	OpSet OpType = channel.OpSet

	// OpDelete removes Path.
	OpDelete OpType = channel.OpDelete
)

// Operation is a single settings mutation exchanged between clients.
type Operation struct {
	ID        string
	ClientID  string
	UserID    string
	Type      OpType
	Path      string
	Value     any
	OldValue  any
	Timestamp int64 // Unix milliseconds
}

// FromStateChange converts a wire change into an Operation. An unknown or
// empty operation is treated as a set.
func FromStateChange(sc channel.StateChange) Operation {
	op := Operation{
		ID:        sc.ID,
		ClientID:  sc.ClientID,
		UserID:    sc.UserID,
		Type:      OpSet,
		Path:      sc.Path,
		Value:     sc.Value,
		OldValue:  sc.OldValue,
		Timestamp: sc.Timestamp,
	}
	if sc.Operation == channel.OpDelete {
		op.Type = OpDelete
		op.Value = nil
	}
	return op
}

// StateChange converts the operation into its wire form.
func (o Operation) StateChange() channel.StateChange {
	return channel.StateChange{
		ID:        o.ID,
		ClientID:  o.ClientID,
		UserID:    o.UserID,
		Path:      o.Path,
		Value:     o.Value,
		OldValue:  o.OldValue,
		Operation: string(o.Type),
		Timestamp: o.Timestamp,
	}
}

// Time returns the operation timestamp.
func (o Operation) Time() time.Time {
	return time.UnixMilli(o.Timestamp)
}
