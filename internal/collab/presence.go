package collab

import (
	"sort"
	"sync"
	"time"

	"github.com/dshills/stylesync/internal/client/channel"
)

// Collaborator is the last known presence of a user.
type Collaborator struct {
	UserID   string
	UserName string
	ClientID string
	Activity string
	Location string
	Metadata map[string]any
	LastSeen time.Time
}

// PresenceTracker keeps the latest presence per user and expires users
// that have not been seen within the TTL. Liveness is measured on the
// local clock at receipt. It is safe for concurrent use.
type PresenceTracker struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	users map[string]Collaborator
}

// NewPresenceTracker creates a tracker with the given TTL.
func NewPresenceTracker(ttl time.Duration, now func() time.Time) *PresenceTracker {
	if now == nil {
		now = time.Now
	}
	return &PresenceTracker{
		ttl:   ttl,
		now:   now,
		users: make(map[string]Collaborator),
	}
}

// Update records p. It reports whether the user was not tracked before.
// Presence without a user ID is ignored.
func (t *PresenceTracker) Update(p channel.Presence) (joined bool) {
	if p.UserID == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	_, known := t.users[p.UserID]
	t.users[p.UserID] = Collaborator{
		UserID:   p.UserID,
		UserName: p.UserName,
		ClientID: p.ClientID,
		Activity: p.Activity,
		Location: p.Location,
		Metadata: p.Metadata,
		LastSeen: t.now(),
	}
	return !known
}

// Active returns the users seen within the TTL, sorted by user ID.
func (t *PresenceTracker) Active() []Collaborator {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	active := make([]Collaborator, 0, len(t.users))
	for _, c := range t.users {
		if now.Sub(c.LastSeen) < t.ttl {
			active = append(active, c)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].UserID < active[j].UserID })
	return active
}

// Expire forgets users not seen within the TTL and returns them.
func (t *PresenceTracker) Expire() []Collaborator {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var gone []Collaborator
	for id, c := range t.users {
		if now.Sub(c.LastSeen) >= t.ttl {
			gone = append(gone, c)
			delete(t.users, id)
		}
	}
	sort.Slice(gone, func(i, j int) bool { return gone[i].UserID < gone[j].UserID })
	return gone
}

// Reset forgets every user.
func (t *PresenceTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users = make(map[string]Collaborator)
}
