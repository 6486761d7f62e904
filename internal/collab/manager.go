package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
	"github.com/tidwall/match"

	"github.com/dshills/stylesync/internal/client/channel"
	"github.com/dshills/stylesync/internal/event"
	"github.com/dshills/stylesync/internal/settings"
	"github.com/dshills/stylesync/internal/settings/notify"
)

// Channel is the part of the communication client the manager needs.
// *client.Client implements it.
type Channel interface {
	ConnectChannel(ctx context.Context) error
	DisconnectChannel()
	ChannelClientID() string
	SubscribeMessages(msgType string, fn channel.MessageHandler) (func(), error)
	SubscribePresence(fn channel.PresenceHandler) (func(), error)
	BroadcastStateChange(sc channel.StateChange) (channel.StateChange, error)
	UpdatePresence(p channel.Presence) error
}

// Manager keeps a settings store in sync with other clients editing the
// same settings.
type Manager struct {
	store  *settings.Store
	ch     Channel
	bus    *event.Bus
	config Config
	now    func() time.Time

	engine   *Engine
	presence *PresenceTracker

	// lifeMu serializes Enable and Disable.
	lifeMu  sync.Mutex
	enabled atomic.Bool
	unsubs  []func()
	stop    chan struct{}
	done    chan struct{}

	// mu guards shadow, the tree as of the last observed change. Whole-tree
	// replacements are diffed against it to find the paths to broadcast.
	mu     sync.Mutex
	shadow settings.Tree
}

// New creates a disabled manager for store over ch.
func New(store *settings.Store, ch Channel, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	if ch == nil {
		return nil, ErrNoChannel
	}

	m := &Manager{
		store:  store,
		ch:     ch,
		config: DefaultConfig(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bus == nil {
		m.bus = store.Bus()
	}
	if m.config.PresenceTTL <= 0 {
		m.config.PresenceTTL = DefaultConfig().PresenceTTL
	}
	m.engine = NewEngine(m.config.MaxPending)
	m.presence = NewPresenceTracker(m.config.PresenceTTL, m.now)
	return m, nil
}

// Enable connects the channel and starts exchanging changes and presence.
// Enabling an enabled manager does nothing.
func (m *Manager) Enable(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.enabled.Load() {
		return nil
	}
	if err := m.ch.ConnectChannel(ctx); err != nil {
		return fmt.Errorf("collab: connect channel: %w", err)
	}

	unsubState, err := m.ch.SubscribeMessages(channel.TypeStateChange, m.handleRemote)
	if err != nil {
		return fmt.Errorf("collab: subscribe state changes: %w", err)
	}
	unsubPresence, err := m.ch.SubscribePresence(m.handlePresence)
	if err != nil {
		unsubState()
		return fmt.Errorf("collab: subscribe presence: %w", err)
	}
	sub := m.store.Observe(m.handleLocal)
	m.unsubs = []func(){unsubState, unsubPresence, sub.Unsubscribe}

	m.mu.Lock()
	m.shadow = m.store.Tree()
	m.mu.Unlock()

	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.sweepLoop(m.stop, m.done)

	m.enabled.Store(true)
	glog.V(1).Infof("collab: enabled as %s", m.ch.ChannelClientID())
	m.bus.Emit(event.TopicCollabEnabled, StatusPayload{ClientID: m.ch.ChannelClientID(), Timestamp: m.now()})
	return nil
}

// Disable stops collaboration, drops pending operations and disconnects
// the channel. Disabling a disabled manager does nothing.
func (m *Manager) Disable() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if !m.enabled.Swap(false) {
		return
	}
	clientID := m.ch.ChannelClientID()
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil
	close(m.stop)
	<-m.done

	m.ch.DisconnectChannel()
	m.engine.ClearPending()
	m.presence.Reset()

	glog.V(1).Info("collab: disabled")
	m.bus.Emit(event.TopicCollabDisabled, StatusPayload{ClientID: clientID, Timestamp: m.now()})
}

// Enabled reports whether the manager is exchanging changes.
func (m *Manager) Enabled() bool {
	return m.enabled.Load()
}

// ActiveCollaborators returns the users seen within the presence TTL.
func (m *Manager) ActiveCollaborators() []Collaborator {
	return m.presence.Active()
}

// UpdatePresence publishes this client's presence.
func (m *Manager) UpdatePresence(p channel.Presence) error {
	if !m.enabled.Load() {
		return ErrNotEnabled
	}
	return m.ch.UpdatePresence(p)
}

// Pending returns the local operations not yet acknowledged.
func (m *Manager) Pending() []Operation {
	return m.engine.Pending()
}

// History returns recently acknowledged local operations.
func (m *Manager) History() []Operation {
	return m.engine.History()
}

func (m *Manager) excluded(path string) bool {
	for _, pattern := range m.config.ExcludePaths {
		if match.Match(path, pattern) {
			return true
		}
	}
	return false
}

// handleLocal runs synchronously inside every store mutation.
func (m *Manager) handleLocal(c notify.Change) {
	if !m.enabled.Load() {
		return
	}

	var ops []Operation
	m.mu.Lock()
	switch {
	case c.Source == notify.SourceRemote || c.Source == notify.SourceServer:
		// Already known to the server.
		m.trackLocked(c)
	case c.Type == notify.ChangeReplace:
		current := m.store.Tree()
		for _, pc := range settings.Diff(m.shadow, current) {
			ops = append(ops, m.newOp(pc.Path, pc.NewValue, pc.OldValue, pc.Deleted))
		}
		m.shadow = current
	default:
		m.trackLocked(c)
		ops = append(ops, m.newOp(c.Path, c.NewValue, c.OldValue, c.Type == notify.ChangeDelete))
	}
	m.mu.Unlock()

	for _, op := range ops {
		if m.excluded(op.Path) {
			continue
		}
		m.broadcast(op)
	}
}

// trackLocked folds c into the shadow tree.
func (m *Manager) trackLocked(c notify.Change) {
	var next settings.Tree
	var err error
	switch c.Type {
	case notify.ChangeSet:
		next, err = m.shadow.Set(c.Path, c.NewValue)
	case notify.ChangeDelete:
		next, err = m.shadow.Delete(c.Path)
	default:
		next = m.store.Tree()
	}
	if err != nil {
		next = m.store.Tree()
	}
	m.shadow = next
}

func (m *Manager) newOp(path string, value, oldValue any, deleted bool) Operation {
	op := Operation{
		ID:        ulid.Make().String(),
		ClientID:  m.ch.ChannelClientID(),
		Type:      OpSet,
		Path:      path,
		Value:     value,
		OldValue:  oldValue,
		Timestamp: m.now().UnixMilli(),
	}
	if deleted {
		op.Type = OpDelete
		op.Value = nil
	}
	return op
}

func (m *Manager) broadcast(op Operation) {
	// Pending before sending, so an immediate echo finds it.
	m.engine.AddPending(op)
	if _, err := m.ch.BroadcastStateChange(op.StateChange()); err != nil {
		m.engine.Remove(op.ID)
		glog.Warningf("collab: broadcast %s %s: %v", op.Type, op.Path, err)
		return
	}
	glog.V(2).Infof("collab: broadcast %s %s (%s)", op.Type, op.Path, op.ID)
}

// handleRemote runs on the channel's read goroutine.
func (m *Manager) handleRemote(data json.RawMessage) {
	if !m.enabled.Load() {
		return
	}
	sc, err := channel.DecodeStateChange(data)
	if err != nil {
		glog.Warningf("collab: dropping malformed state change: %v", err)
		return
	}
	if sc.Path == "" {
		return
	}

	incoming := FromStateChange(sc)
	if incoming.ClientID != "" && incoming.ClientID == m.ch.ChannelClientID() {
		if m.engine.Acknowledge(incoming.ID) {
			glog.V(2).Infof("collab: acknowledged %s", incoming.ID)
		}
		return
	}
	if m.excluded(incoming.Path) {
		return
	}

	resolved, winner := m.engine.TransformIncoming(incoming)
	deleted := resolved.Type == OpDelete
	if err := m.store.ApplyRemoteChange(resolved.Path, resolved.Value, deleted, notify.SourceRemote); err != nil {
		glog.Errorf("collab: apply remote change %s: %v", resolved.Path, err)
		return
	}

	if winner != nil {
		glog.V(1).Infof("collab: local change to %s kept over %s", winner.Path, incoming.ClientID)
		m.bus.Emit(event.TopicCollabConflict, ConflictPayload{
			Path:     incoming.Path,
			Local:    *winner,
			Remote:   incoming,
			Resolved: resolved,
		})
	}
	m.bus.Emit(event.TopicCollabRemoteChange, RemoteChangePayload{
		Path:      resolved.Path,
		Value:     resolved.Value,
		Deleted:   deleted,
		ClientID:  incoming.ClientID,
		UserID:    incoming.UserID,
		Timestamp: incoming.Time(),
	})
}

// handlePresence runs on the channel's read goroutine.
func (m *Manager) handlePresence(p channel.Presence) {
	if !m.enabled.Load() {
		return
	}
	if p.UserID == "" || (p.ClientID != "" && p.ClientID == m.ch.ChannelClientID()) {
		return
	}

	joined := m.presence.Update(p)
	payload := PresencePayload{
		UserID: p.UserID,
		Presence: Collaborator{
			UserID:   p.UserID,
			UserName: p.UserName,
			ClientID: p.ClientID,
			Activity: p.Activity,
			Location: p.Location,
			Metadata: p.Metadata,
			LastSeen: m.now(),
		},
	}
	if joined {
		glog.V(1).Infof("collab: %s joined", p.UserID)
		m.bus.Emit(event.TopicCollabUserJoined, payload)
	}
	m.bus.Emit(event.TopicCollabPresenceUpdate, payload)
}

func (m *Manager) sweepLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := m.config.PresenceTTL / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep forgets expired collaborators and announces their departure.
func (m *Manager) sweep() {
	for _, c := range m.presence.Expire() {
		glog.V(1).Infof("collab: %s left", c.UserID)
		m.bus.Emit(event.TopicCollabUserLeft, PresencePayload{UserID: c.UserID, Presence: c})
	}
}
