package collab

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTransform(t *testing.T) {
	set := func(path string, value any, ts int64) Operation {
		return Operation{Type: OpSet, Path: path, Value: value, Timestamp: ts}
	}
	del := func(path string, ts int64) Operation {
		return Operation{Type: OpDelete, Path: path, Timestamp: ts}
	}

	tests := []struct {
		name     string
		local    Operation
		incoming Operation
		want     Operation
		won      bool
	}{
		{"unrelated paths", set("a.x", 1, 5), set("b.x", 2, 1), set("b.x", 2, 1), false},
		{"sibling prefix is unrelated", del("a.x", 5), set("a.xy", 2, 1), set("a.xy", 2, 1), false},
		{"later remote set wins", set("a", 1, 1), set("a", 2, 5), set("a", 2, 5), false},
		{"later local set wins", set("a", 1, 5), set("a", 2, 1), set("a", 1, 1), true},
		{"tie goes to local", set("a", 1, 5), set("a", 2, 5), set("a", 1, 5), true},
		{"local set beats remote delete", set("a", 1, 1), del("a", 5), set("a", 1, 5), true},
		{"remote set beats local delete", del("a", 5), set("a", 2, 1), set("a", 2, 1), false},
		{"delete against delete", del("a", 1), del("a", 2), del("a", 2), false},
		{"parent delete nulls child", del("a", 1), set("a.b", 2, 5), set("a.b", nil, 5), true},
		{"parent set leaves child", set("a", map[string]any{}, 1), set("a.b", 2, 5), set("a.b", 2, 5), false},
		{"remote parent applies as is", set("a.b", 1, 5), del("a", 1), del("a", 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, won := Transform(tt.local, tt.incoming)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Transform (-want +got):\n%s", diff)
			}
			if won != tt.won {
				t.Errorf("won = %v, want %v", won, tt.won)
			}
		})
	}
}

func TestEngineAcknowledge(t *testing.T) {
	e := NewEngine(0)
	e.AddPending(Operation{ID: "1", Path: "a"})
	e.AddPending(Operation{ID: "2", Path: "b"})

	if !e.Acknowledge("1") {
		t.Fatal("expected known id to be acknowledged")
	}
	if e.Acknowledge("1") {
		t.Error("expected second acknowledgement to be ignored")
	}
	if e.PendingCount() != 1 {
		t.Errorf("expected 1 pending, got %d", e.PendingCount())
	}
	if h := e.History(); len(h) != 1 || h[0].ID != "1" {
		t.Errorf("unexpected history %+v", h)
	}

	e.ClearPending()
	if e.PendingCount() != 0 {
		t.Errorf("expected no pending after clear, got %d", e.PendingCount())
	}
}

func TestEngineBoundsPending(t *testing.T) {
	e := NewEngine(3)
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		e.AddPending(Operation{ID: id, Path: "p" + id})
	}

	var ids []string
	for _, op := range e.Pending() {
		ids = append(ids, op.ID)
	}
	if diff := cmp.Diff([]string{"3", "4", "5"}, ids); diff != "" {
		t.Errorf("pending (-want +got):\n%s", diff)
	}
}

func TestEngineTransformIncomingFoldsPending(t *testing.T) {
	e := NewEngine(0)
	e.AddPending(Operation{ID: "old", Type: OpSet, Path: "a", Value: "first", Timestamp: 1})
	e.AddPending(Operation{ID: "new", Type: OpSet, Path: "a", Value: "second", Timestamp: 9})

	got, winner := e.TransformIncoming(Operation{Type: OpSet, Path: "a", Value: "remote", Timestamp: 5})
	if got.Value != "second" {
		t.Errorf("expected the newest local value to win, got %v", got.Value)
	}
	if winner == nil || winner.ID != "new" {
		t.Errorf("expected winner new, got %+v", winner)
	}

	got, winner = e.TransformIncoming(Operation{Type: OpSet, Path: "b", Value: 1})
	if winner != nil || got.Value != 1 {
		t.Errorf("expected untouched change, got %+v %+v", got, winner)
	}
}
