package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/golang/glog"
	"github.com/tidwall/gjson"

	"github.com/dshills/stylesync/internal/event"
	"github.com/dshills/stylesync/internal/event/topic"
	"github.com/dshills/stylesync/internal/settings/cache"
	"github.com/dshills/stylesync/internal/settings/history"
	"github.com/dshills/stylesync/internal/settings/notify"
)

// Store owns the canonical settings tree, its undo/redo history, a
// read-through cache and the UI flags. It is safe for concurrent use.
//
// Every mutation replaces the tree (copy-on-write) and invalidates the
// cache while holding the write lock, so no reader can observe a cached
// value older than the tree. Bus events and observers run after the lock
// is released.
type Store struct {
	mu   sync.RWMutex
	tree Tree
	ui   UIState

	history  *history.History[Tree]
	cache    *cache.Cache[gjson.Result]
	notifier *notify.Notifier

	bus    *event.Bus
	remote Remote
	config storeConfig
}

// NewStore creates a store emitting on bus and persisting through remote.
// A nil bus gets a private bus; a nil remote disables load and save.
func NewStore(bus *event.Bus, remote Remote, opts ...Option) *Store {
	config := defaultStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if bus == nil {
		bus = event.NewBus()
	}

	tree := DefaultTree()
	if !config.initial.IsZero() {
		if normalized, err := Normalize(config.initial); err == nil {
			tree = normalized
		} else {
			glog.Warningf("settings: ignoring initial tree: %v", err)
		}
	}

	return &Store{
		tree:     tree,
		ui:       UIState{ActiveTab: "admin_bar"},
		history:  history.New[Tree](config.historyLimit),
		cache:    cache.New[gjson.Result](config.cacheSize),
		notifier: notify.New(),
		bus:      bus,
		remote:   remote,
		config:   config,
	}
}

// Bus returns the bus the store emits on.
func (s *Store) Bus() *event.Bus {
	return s.bus
}

// Tree returns the current tree.
func (s *Store) Tree() Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree
}

// GetSetting returns the value at path, reading the cache first and
// populating it on a miss. Missing paths are not cached.
func (s *Store) GetSetting(path string) gjson.Result {
	// The read lock spans the cache fill so a concurrent write cannot
	// slip between reading the tree and caching the value.
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.cache.Get(path); ok {
		return v
	}
	v := s.tree.Get(path)
	if v.Exists() {
		s.cache.Set(path, v)
	}
	return v
}

// Lookup returns the decoded value at path.
func (s *Store) Lookup(path string) (any, bool) {
	v := s.GetSetting(path)
	return v.Value(), v.Exists()
}

// UpdateSetting writes value at path, records the previous tree in
// history, invalidates the cached path with its ancestors and descendants,
// marks the UI dirty and schedules a debounced settings:changed.
func (s *Store) UpdateSetting(path string, value any) error {
	s.mu.Lock()
	old := s.tree.Get(path)
	next, err := s.tree.Set(path, value)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.history.Push(s.tree)
	s.tree = next
	s.cache.InvalidatePath(path)
	s.ui.IsDirty = true
	s.mu.Unlock()

	glog.V(2).Infof("settings: set %s", path)
	s.notifier.NotifySet(path, resultValue(old), value, notify.SourceLocal)
	s.emitChanged(ChangedPayload{Path: path, Value: value, Settings: next, Source: notify.SourceLocal})
	return nil
}

// UpdateMultipleSettings replaces several top-level sections in one
// history step and clears the whole cache.
func (s *Store) UpdateMultipleSettings(updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}

	s.mu.Lock()
	next, err := s.tree.Merge(updates)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.history.Push(s.tree)
	s.tree = next
	s.cache.Clear()
	s.ui.IsDirty = true
	s.mu.Unlock()

	s.notifier.NotifyReplace(notify.SourceLocal)
	s.emitChanged(ChangedPayload{Value: updates, Settings: next, Source: notify.SourceLocal})
	return nil
}

// Undo restores the tree from before the last mutation. Returns false when
// there is nothing to undo.
func (s *Store) Undo() bool {
	return s.navigate(s.history.Undo, event.TopicSettingsUndo)
}

// Redo reapplies the last undone mutation. Returns false when there is
// nothing to redo.
func (s *Store) Redo() bool {
	return s.navigate(s.history.Redo, event.TopicSettingsRedo)
}

func (s *Store) navigate(step func(Tree) (Tree, error), t topic.Topic) bool {
	s.mu.Lock()
	next, err := step(s.tree)
	if err != nil {
		s.mu.Unlock()
		return false
	}
	s.tree = next
	s.cache.Clear()
	s.ui.IsDirty = true
	s.mu.Unlock()

	s.notifier.NotifyReplace(notify.SourceHistory)
	s.bus.Emit(t, ChangedPayload{Settings: next, Source: notify.SourceHistory})
	s.emitChanged(ChangedPayload{Settings: next, Source: notify.SourceHistory})
	return true
}

// CanUndo reports whether Undo would change the tree.
func (s *Store) CanUndo() bool {
	return s.history.CanUndo()
}

// CanRedo reports whether Redo would change the tree.
func (s *Store) CanRedo() bool {
	return s.history.CanRedo()
}

// HistoryLen returns the number of undoable steps.
func (s *Store) HistoryLen() int {
	return s.history.PastLen()
}

// ResetToDefaults replaces the tree with the defaults. settings:reset is
// emitted before the change, with the old tree still visible to handlers,
// and settings:resetComplete after it. The reset can be undone.
func (s *Store) ResetToDefaults() {
	previous := s.Tree()
	s.bus.Emit(event.TopicSettingsReset, ResetPayload{PreviousSettings: previous})

	defaults := DefaultTree()
	s.mu.Lock()
	s.history.Push(s.tree)
	s.tree = defaults
	s.cache.Clear()
	s.ui.IsDirty = true
	s.mu.Unlock()

	glog.V(1).Info("settings: reset to defaults")
	s.notifier.NotifyReplace(notify.SourceReset)
	s.bus.Emit(event.TopicSettingsResetComplete, ResetCompletePayload{Settings: defaults})
	s.emitChanged(ChangedPayload{Settings: defaults, Source: notify.SourceReset})
}

// LoadFromServer fetches the tree from the remote and replaces the local
// one. On failure the bootstrap tree is used when configured; otherwise
// the error is returned and the tree is left unchanged.
func (s *Store) LoadFromServer(ctx context.Context) error {
	if s.remote == nil {
		return ErrNoRemote
	}
	s.UpdateUI(func(ui *UIState) { ui.IsLoading = true })

	tree, err := s.fetch(ctx)
	fallback := false
	if err != nil {
		if s.config.bootstrap.IsZero() {
			s.UpdateUI(func(ui *UIState) { ui.IsLoading = false })
			return fmt.Errorf("load settings: %w", err)
		}
		glog.Warningf("settings: load failed, using bootstrap tree: %v", err)
		if tree, err = Normalize(s.config.bootstrap); err != nil {
			s.UpdateUI(func(ui *UIState) { ui.IsLoading = false })
			return fmt.Errorf("load bootstrap settings: %w", err)
		}
		fallback = true
	}

	s.mu.Lock()
	s.tree = tree
	s.cache.Clear()
	for _, p := range s.config.warmPaths {
		if v := tree.Get(p); v.Exists() {
			s.cache.Set(p, v)
		}
	}
	s.ui.IsDirty = false
	s.ui.IsLoading = false
	s.mu.Unlock()

	glog.V(1).Infof("settings: loaded (fallback=%v)", fallback)
	s.notifier.NotifyReplace(notify.SourceServer)
	s.bus.Emit(event.TopicSettingsLoaded, LoadedPayload{Settings: tree, Fallback: fallback})
	return nil
}

func (s *Store) fetch(ctx context.Context) (Tree, error) {
	raw, err := s.remote.GetSettings(ctx)
	if err != nil {
		return Tree{}, err
	}
	tree, err := ParseTree(raw)
	if err != nil {
		return Tree{}, err
	}
	return Normalize(tree)
}

// SaveToServer persists the current tree. A call made while another save
// is running returns ErrSaveInProgress at once without issuing a request.
// On success the dirty flag is cleared unless the tree changed during the
// save; on failure it is kept.
func (s *Store) SaveToServer(ctx context.Context) (json.RawMessage, error) {
	if s.remote == nil {
		return nil, ErrNoRemote
	}

	s.mu.Lock()
	if s.ui.IsSaving {
		s.mu.Unlock()
		glog.Warningf("settings: save requested while a save is in progress")
		return nil, ErrSaveInProgress
	}
	s.ui.IsSaving = true
	snapshot := s.tree
	s.mu.Unlock()

	s.bus.Emit(event.TopicSettingsSave, SavePayload{Settings: snapshot})

	resp, err := s.remote.SaveSettings(ctx, snapshot.Bytes())

	s.mu.Lock()
	s.ui.IsSaving = false
	if err == nil && bytes.Equal(s.tree.raw, snapshot.raw) {
		s.ui.IsDirty = false
	}
	s.mu.Unlock()

	if err != nil {
		glog.Errorf("settings: save failed: %v", err)
		s.bus.Emit(event.TopicSettingsSaveFailed, SaveFailedPayload{Settings: snapshot, Err: err})
		return nil, err
	}
	glog.V(1).Info("settings: saved")
	s.bus.Emit(event.TopicSettingsSaved, SavedPayload{Settings: snapshot, Response: resp})
	return resp, nil
}

// ApplyRemoteChange writes a change that originated elsewhere. It is not
// recorded in history and does not mark the UI dirty.
func (s *Store) ApplyRemoteChange(path string, value any, deleted bool, source string) error {
	s.mu.Lock()
	old := s.tree.Get(path)
	var next Tree
	var err error
	if deleted {
		next, err = s.tree.Delete(path)
	} else {
		next, err = s.tree.Set(path, value)
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.tree = next
	s.cache.InvalidatePath(path)
	s.mu.Unlock()

	if deleted {
		s.notifier.NotifyDelete(path, resultValue(old), source)
	} else {
		s.notifier.NotifySet(path, resultValue(old), value, source)
	}
	s.emitChanged(ChangedPayload{Path: path, Value: value, Settings: next, Source: source})
	return nil
}

// ReplaceTree swaps in a whole new tree, normalized against the defaults.
// Used by apply-style operations whose result comes back from the server.
func (s *Store) ReplaceTree(t Tree, source string, recordHistory bool) error {
	normalized, err := Normalize(t)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if recordHistory {
		s.history.Push(s.tree)
	}
	s.tree = normalized
	s.cache.Clear()
	s.mu.Unlock()

	s.notifier.NotifyReplace(source)
	s.emitChanged(ChangedPayload{Settings: normalized, Source: source})
	return nil
}

// Observe registers a synchronous observer for every change.
func (s *Store) Observe(observer notify.Observer) *notify.Subscription {
	return s.notifier.Subscribe(observer)
}

// ObservePath registers a synchronous observer for changes at or below path.
func (s *Store) ObservePath(path string, observer notify.Observer) *notify.Subscription {
	return s.notifier.SubscribePath(path, observer)
}

// UI returns a copy of the UI flags.
func (s *Store) UI() UIState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ui
}

// UpdateUI mutates the UI flags under the store lock.
func (s *Store) UpdateUI(fn func(*UIState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.ui)
}

// CacheStats returns a snapshot of the read cache.
func (s *Store) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// ClearCache drops every cached value.
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Clear()
}

func (s *Store) emitChanged(p ChangedPayload) {
	s.bus.EmitDebounced(event.TopicSettingsChanged, p, s.config.changeDebounce)
}

func resultValue(r gjson.Result) any {
	if !r.Exists() {
		return nil
	}
	return r.Value()
}
