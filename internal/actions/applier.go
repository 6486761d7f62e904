package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/tidwall/gjson"

	"github.com/dshills/stylesync/internal/event"
	"github.com/dshills/stylesync/internal/event/topic"
	"github.com/dshills/stylesync/internal/settings"
	"github.com/dshills/stylesync/internal/settings/notify"
)

// paletteTargets maps palette color roles to the settings they fill.
var paletteTargets = []struct {
	role string
	path string
}{
	{"primary", "admin_bar.bg_color"},
	{"text", "admin_bar.text_color"},
	{"secondary", "admin_menu.bg_color"},
	{"text", "admin_menu.text_color"},
	{"accent", "admin_menu.hover_bg_color"},
}

const maxAppliedHistory = 100

// Applier runs apply-style operations against a store. It is safe for
// concurrent use.
type Applier struct {
	api   API
	store *settings.Store
	bus   *event.Bus
	now   func() time.Time

	mu          sync.Mutex
	suggestions map[Category][]Suggestion
	loading     map[Category]bool
	errs        map[Category]error
	applied     []AppliedSuggestion

	wg sync.WaitGroup
}

// Option configures an Applier.
type Option func(*Applier)

// WithBus sets the bus events are emitted on. Defaults to the store's bus.
func WithBus(bus *event.Bus) Option {
	return func(a *Applier) {
		a.bus = bus
	}
}

// WithClock overrides the clock used for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Applier) {
		a.now = now
	}
}

// NewApplier creates an applier calling api and updating store.
func NewApplier(api API, store *settings.Store, opts ...Option) *Applier {
	a := &Applier{
		api:         api,
		store:       store,
		now:         time.Now,
		suggestions: make(map[Category][]Suggestion),
		loading:     make(map[Category]bool),
		errs:        make(map[Category]error),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.bus == nil {
		a.bus = store.Bus()
	}
	return a
}

// ApplyTemplate applies template id on the server and replaces the local
// tree with the settings it returns, as one undoable step.
func (a *Applier) ApplyTemplate(ctx context.Context, id string) (settings.Tree, error) {
	a.bus.Emit(event.TopicTemplateApplyStarted, ApplyPayload{ID: id})

	tree, err := a.applyTemplate(ctx, id)
	if err != nil {
		glog.Errorf("actions: apply template %q: %v", id, err)
		a.bus.Emit(event.TopicTemplateApplyFailed, ApplyPayload{ID: id, Err: err})
		return settings.Tree{}, err
	}
	glog.V(1).Infof("actions: applied template %q", id)
	a.bus.Emit(event.TopicTemplateApplied, ApplyPayload{ID: id, Settings: tree})
	return tree, nil
}

func (a *Applier) applyTemplate(ctx context.Context, id string) (settings.Tree, error) {
	raw, err := a.api.ApplyTemplate(ctx, id)
	if err != nil {
		return settings.Tree{}, err
	}
	tree, err := settings.ParseTree(raw)
	if err != nil {
		return settings.Tree{}, fmt.Errorf("template settings: %w", err)
	}
	if tree, err = tree.Set("templates.current", id); err != nil {
		return settings.Tree{}, err
	}
	if err := a.store.ReplaceTree(tree, notify.SourceApply, true); err != nil {
		return settings.Tree{}, err
	}
	return a.store.Tree(), nil
}

// ApplyPalette applies palette id on the server and writes the returned
// colors into the admin bar and menu settings, as one undoable step.
func (a *Applier) ApplyPalette(ctx context.Context, id string) (settings.Tree, error) {
	a.bus.Emit(event.TopicPaletteApplyStarted, ApplyPayload{ID: id})

	colors, tree, err := a.applyPalette(ctx, id)
	if err != nil {
		glog.Errorf("actions: apply palette %q: %v", id, err)
		a.bus.Emit(event.TopicPaletteApplyFailed, ApplyPayload{ID: id, Colors: colors, Err: err})
		return settings.Tree{}, err
	}
	glog.V(1).Infof("actions: applied palette %q", id)
	a.bus.Emit(event.TopicPaletteApplied, ApplyPayload{ID: id, Settings: tree, Colors: colors})
	return tree, nil
}

func (a *Applier) applyPalette(ctx context.Context, id string) (json.RawMessage, settings.Tree, error) {
	colors, err := a.api.ApplyPalette(ctx, id)
	if err != nil {
		return nil, settings.Tree{}, err
	}
	parsed := gjson.ParseBytes(colors)
	if !parsed.IsObject() {
		return colors, settings.Tree{}, ErrMalformedColors
	}

	tree := a.store.Tree()
	for _, target := range paletteTargets {
		color := parsed.Get(target.role)
		if !color.Exists() {
			continue
		}
		if tree, err = tree.Set(target.path, color.String()); err != nil {
			return colors, settings.Tree{}, err
		}
	}
	if tree, err = tree.Set("palettes.current", id); err != nil {
		return colors, settings.Tree{}, err
	}
	if err := a.store.ReplaceTree(tree, notify.SourceApply, true); err != nil {
		return colors, settings.Tree{}, err
	}
	return colors, a.store.Tree(), nil
}

// Listen runs ApplyTemplate and ApplyPalette for template:apply and
// palette:apply events carrying an ApplyRequest or an id string. The
// returned function unsubscribes and waits for running applies.
func (a *Applier) Listen(ctx context.Context) (stop func(), err error) {
	subscribe := func(t topic.Topic, apply func(context.Context, string) (settings.Tree, error)) (event.Subscription, error) {
		return a.bus.OnFunc(t, func(ev event.Event) error {
			id, ok := requestID(ev.Payload)
			if !ok {
				return fmt.Errorf("%s: unexpected payload %T", ev.Topic, ev.Payload)
			}
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				// Failures are reported on the *:applyFailed topics.
				_, _ = apply(ctx, id)
			}()
			return nil
		})
	}

	templates, err := subscribe(event.TopicTemplateApply, a.ApplyTemplate)
	if err != nil {
		return nil, err
	}
	palettes, err := subscribe(event.TopicPaletteApply, a.ApplyPalette)
	if err != nil {
		a.bus.Off(event.TopicTemplateApply, templates)
		return nil, err
	}
	return func() {
		a.bus.Off(event.TopicTemplateApply, templates)
		a.bus.Off(event.TopicPaletteApply, palettes)
		a.wg.Wait()
	}, nil
}

func requestID(payload any) (string, bool) {
	switch p := payload.(type) {
	case ApplyRequest:
		return p.ID, true
	case *ApplyRequest:
		return p.ID, p != nil
	case string:
		return p, true
	default:
		return "", false
	}
}

// preferences reads the AI preferences from the settings tree.
func (a *Applier) preferences() settings.AIPreferences {
	var prefs settings.AIPreferences
	if raw := a.store.GetSetting("ai"); raw.Exists() {
		if err := json.Unmarshal([]byte(raw.Raw), &prefs); err != nil {
			glog.Warningf("actions: unreadable AI preferences: %v", err)
		}
	}
	return prefs
}

// LoadSuggestions fetches suggestions for category and keeps those at or
// above the ai.confidenceThreshold setting.
func (a *Applier) LoadSuggestions(ctx context.Context, category Category, sc SuggestionContext) ([]Suggestion, error) {
	prefs := a.preferences()
	if !prefs.Enabled {
		glog.V(1).Info("actions: AI features are disabled")
		return nil, ErrAIDisabled
	}

	a.mu.Lock()
	a.loading[category] = true
	a.mu.Unlock()
	a.bus.Emit(event.TopicAISuggestionLoading, SuggestionsPayload{Category: category})

	raw, err := a.fetchSuggestions(ctx, category, sc)
	if err != nil {
		a.mu.Lock()
		a.loading[category] = false
		a.errs[category] = err
		a.mu.Unlock()
		glog.Errorf("actions: load %s suggestions: %v", category, err)
		a.bus.Emit(event.TopicAISuggestionError, SuggestionErrorPayload{Category: category, Err: err})
		return nil, err
	}

	suggestions := parseSuggestions(raw, category, prefs.ConfidenceThreshold)
	a.mu.Lock()
	a.loading[category] = false
	a.errs[category] = nil
	a.suggestions[category] = suggestions
	a.mu.Unlock()

	glog.V(2).Infof("actions: %d %s suggestions", len(suggestions), category)
	a.bus.Emit(event.TopicAISuggestionReceived, SuggestionsPayload{Category: category, Suggestions: suggestions})
	return append([]Suggestion(nil), suggestions...), nil
}

func (a *Applier) fetchSuggestions(ctx context.Context, category Category, sc SuggestionContext) (json.RawMessage, error) {
	switch category {
	case CategoryColors:
		return a.api.GetAIColorSuggestions(ctx, sc.Color, sc.Count)
	case CategoryTypography:
		return a.api.GetAITypographySuggestions(ctx, sc.Typography, sc.Count)
	case CategoryAccessibility:
		analysis, err := a.api.AnalyzeAccessibility(ctx, a.store.Tree().Bytes())
		if err != nil {
			return nil, err
		}
		return json.RawMessage(gjson.GetBytes(analysis, "suggestions").Raw), nil
	case CategorySettings:
		return a.api.GetPredictiveSettings(ctx, sc.Prediction)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
}

// ApplySuggestion applies s on the server and replaces the local tree with
// the settings it returns, as one undoable step.
func (a *Applier) ApplySuggestion(ctx context.Context, s Suggestion) (settings.Tree, error) {
	tree, err := a.applySuggestion(ctx, s)
	if err != nil {
		glog.Errorf("actions: apply suggestion %q: %v", s.ID, err)
		a.bus.Emit(event.TopicAISuggestionError, SuggestionErrorPayload{SuggestionID: s.ID, Err: err})
		return settings.Tree{}, err
	}

	a.mu.Lock()
	a.applied = append(a.applied, AppliedSuggestion{
		ID:         s.ID,
		Type:       s.Type,
		Confidence: s.Confidence,
		AppliedAt:  a.now(),
	})
	if over := len(a.applied) - maxAppliedHistory; over > 0 {
		a.applied = append([]AppliedSuggestion(nil), a.applied[over:]...)
	}
	a.mu.Unlock()

	glog.V(1).Infof("actions: applied suggestion %q", s.ID)
	a.bus.Emit(event.TopicAISuggestionApplied, SuggestionPayload{Suggestion: s, Settings: tree})
	return tree, nil
}

func (a *Applier) applySuggestion(ctx context.Context, s Suggestion) (settings.Tree, error) {
	resp, err := a.api.ApplyAISuggestion(ctx, s.ID, s.Type)
	if err != nil {
		return settings.Tree{}, err
	}
	raw := gjson.GetBytes(resp, "settings")
	if !raw.IsObject() {
		return settings.Tree{}, ErrNotApplied
	}
	tree, err := settings.ParseTree([]byte(raw.Raw))
	if err != nil {
		return settings.Tree{}, err
	}
	if err := a.store.ReplaceTree(tree, notify.SourceApply, true); err != nil {
		return settings.Tree{}, err
	}
	return a.store.Tree(), nil
}

// RejectSuggestion sends rejection feedback for id and drops it from the
// suggestions of category.
func (a *Applier) RejectSuggestion(ctx context.Context, id string, category Category, reason string) error {
	if _, err := a.api.RejectAISuggestion(ctx, id, reason); err != nil {
		glog.Errorf("actions: reject suggestion %q: %v", id, err)
		return err
	}

	rejected := Suggestion{ID: id, Category: category}
	a.mu.Lock()
	kept := a.suggestions[category][:0:0]
	for _, s := range a.suggestions[category] {
		if s.ID == id {
			rejected = s
			continue
		}
		kept = append(kept, s)
	}
	a.suggestions[category] = kept
	a.mu.Unlock()

	a.bus.Emit(event.TopicAISuggestionRejected, SuggestionPayload{Suggestion: rejected, Reason: reason})
	return nil
}

// UpdateAISettings stores prefs on the server and writes the stored copy
// into the ai section of the tree. The change is not recorded in history.
func (a *Applier) UpdateAISettings(ctx context.Context, prefs settings.AIPreferences) (settings.AIPreferences, error) {
	stored, err := a.api.UpdateAISettings(ctx, prefs)
	if err != nil {
		glog.Errorf("actions: update AI settings: %v", err)
		return prefs, err
	}
	if gjson.GetBytes(stored, "enabled").Exists() {
		var echoed settings.AIPreferences
		if err := json.Unmarshal(stored, &echoed); err == nil {
			prefs = echoed
		}
	}

	if err := a.store.ApplyRemoteChange("ai", prefs, false, notify.SourceServer); err != nil {
		return prefs, err
	}
	a.bus.Emit(event.TopicAISettingsChanged, AISettingsPayload{Settings: prefs})
	return prefs, nil
}

// Suggestions returns the loaded suggestions of category.
func (a *Applier) Suggestions(category Category) []Suggestion {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Suggestion(nil), a.suggestions[category]...)
}

// Loading reports whether suggestions of category are being fetched.
func (a *Applier) Loading(category Category) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loading[category]
}

// Err returns the last load error of category.
func (a *Applier) Err(category Category) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.errs[category]
}

// ClearSuggestions drops the suggestions and error of category.
func (a *Applier) ClearSuggestions(category Category) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.suggestions, category)
	delete(a.errs, category)
}

// History returns the suggestions applied in this session, oldest first.
func (a *Applier) History() []AppliedSuggestion {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AppliedSuggestion(nil), a.applied...)
}
