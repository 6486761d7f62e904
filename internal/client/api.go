package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Queue keys for deduplicated mutating operations.
const (
	keySaveSettings      = "saveSettings"
	keyApplyTemplate     = "applyTemplate:"
	keyApplyPalette      = "applyPalette:"
	keyApplyAISuggestion = "applyAISuggestion:"
)

// ColorContext describes what AI color suggestions should target.
type ColorContext struct {
	BrandColors   []string `json:"brandColors"`
	Industry      string   `json:"industry"`
	Mood          string   `json:"mood"`
	Accessibility string   `json:"accessibility"`
}

func (c ColorContext) withDefaults() ColorContext {
	if c.BrandColors == nil {
		c.BrandColors = []string{}
	}
	if c.Industry == "" {
		c.Industry = "general"
	}
	if c.Mood == "" {
		c.Mood = "professional"
	}
	if c.Accessibility == "" {
		c.Accessibility = "AA"
	}
	return c
}

// TypographyContext describes what AI typography suggestions should target.
type TypographyContext struct {
	CurrentFont *string `json:"currentFont"`
	Style       string  `json:"style"`
	Readability string  `json:"readability"`
	Purpose     string  `json:"purpose"`
}

func (c TypographyContext) withDefaults() TypographyContext {
	if c.Style == "" {
		c.Style = "modern"
	}
	if c.Readability == "" {
		c.Readability = "high"
	}
	if c.Purpose == "" {
		c.Purpose = "admin-interface"
	}
	return c
}

// PredictionContext describes the user and site for settings prediction.
type PredictionContext struct {
	UserRole         string         `json:"userRole"`
	SiteType         string         `json:"siteType"`
	PreviousSettings map[string]any `json:"previousSettings"`
	UsagePatterns    map[string]any `json:"usagePatterns"`
}

func (c PredictionContext) withDefaults() PredictionContext {
	if c.UserRole == "" {
		c.UserRole = "administrator"
	}
	if c.SiteType == "" {
		c.SiteType = "general"
	}
	if c.PreviousSettings == nil {
		c.PreviousSettings = map[string]any{}
	}
	if c.UsagePatterns == nil {
		c.UsagePatterns = map[string]any{}
	}
	return c
}

// HistoryQuery filters the AI suggestion history. Zero fields are omitted.
type HistoryQuery struct {
	Limit  int
	Type   string
	Status string
}

func (q HistoryQuery) values() url.Values {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Type != "" {
		v.Set("type", q.Type)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	return v
}

// GetSettings fetches the stored settings document. A {success, data}
// envelope is unwrapped.
func (c *Client) GetSettings(ctx context.Context) (json.RawMessage, error) {
	body, err := c.Request(ctx, "/settings", RequestOptions{})
	if err != nil {
		return nil, err
	}
	return c.expectObject(http.MethodGet, "/settings", unwrapData(body))
}

// SaveSettingsAsync queues a save of settings. A save of the same payload
// already queued or in flight is returned instead of queueing another; a
// different payload queues behind it so the newest tree is written last.
func (c *Client) SaveSettingsAsync(settings json.RawMessage) *Call {
	return c.queue.Enqueue(saveKey(settings), func(ctx context.Context) (json.RawMessage, error) {
		body, err := c.Request(ctx, "/settings", RequestOptions{Method: http.MethodPost, Body: settings})
		if err != nil {
			return nil, err
		}
		if err := c.requireSuccess(http.MethodPost, "/settings", body, "Save operation failed"); err != nil {
			return nil, err
		}
		return body, nil
	})
}

// saveKey is the queue key for a save of settings.
func saveKey(settings json.RawMessage) string {
	sum := sha256.Sum256(settings)
	return keySaveSettings + ":" + hex.EncodeToString(sum[:8])
}

// SaveSettings saves settings through the serial queue and waits for the result.
func (c *Client) SaveSettings(ctx context.Context, settings json.RawMessage) (json.RawMessage, error) {
	return c.SaveSettingsAsync(settings).Wait(ctx)
}

// ResetSettings resets the stored settings to server defaults.
func (c *Client) ResetSettings(ctx context.Context) (json.RawMessage, error) {
	body, err := c.Request(ctx, "/settings/reset", RequestOptions{Method: http.MethodPost})
	if err != nil {
		return nil, err
	}
	return c.expectObject(http.MethodPost, "/settings/reset", body)
}

// GetTemplates lists the available templates.
func (c *Client) GetTemplates(ctx context.Context) (json.RawMessage, error) {
	return c.getArray(ctx, "/templates", nil)
}

// ApplyTemplateAsync queues applying template id.
func (c *Client) ApplyTemplateAsync(id string) *Call {
	return c.applyAsync(keyApplyTemplate, "/templates/%s/apply", id, nil, "Failed to apply template", "settings")
}

// ApplyTemplate applies template id and returns the resulting settings.
func (c *Client) ApplyTemplate(ctx context.Context, id string) (json.RawMessage, error) {
	return c.ApplyTemplateAsync(id).Wait(ctx)
}

// GetPalettes lists the available color palettes.
func (c *Client) GetPalettes(ctx context.Context) (json.RawMessage, error) {
	return c.getArray(ctx, "/palettes", nil)
}

// ApplyPaletteAsync queues applying palette id.
func (c *Client) ApplyPaletteAsync(id string) *Call {
	return c.applyAsync(keyApplyPalette, "/palettes/%s/apply", id, nil, "Failed to apply palette", "colors")
}

// ApplyPalette applies palette id and returns the palette colors.
func (c *Client) ApplyPalette(ctx context.Context, id string) (json.RawMessage, error) {
	return c.ApplyPaletteAsync(id).Wait(ctx)
}

// GetAIColorSuggestions requests count color suggestions and returns the
// suggestions array.
func (c *Client) GetAIColorSuggestions(ctx context.Context, cc ColorContext, count int) (json.RawMessage, error) {
	if count <= 0 {
		count = 5
	}
	body := map[string]any{"context": cc.withDefaults(), "count": count}
	return c.postExpect(ctx, "/ai/colors/suggest", body, "suggestions", true)
}

// GetAITypographySuggestions requests count typography suggestions and
// returns the suggestions array.
func (c *Client) GetAITypographySuggestions(ctx context.Context, tc TypographyContext, count int) (json.RawMessage, error) {
	if count <= 0 {
		count = 3
	}
	body := map[string]any{"context": tc.withDefaults(), "count": count}
	return c.postExpect(ctx, "/ai/typography/suggest", body, "suggestions", true)
}

// AnalyzeAccessibility requests an accessibility analysis of settings and
// returns the analysis object.
func (c *Client) AnalyzeAccessibility(ctx context.Context, settings json.RawMessage) (json.RawMessage, error) {
	if len(settings) == 0 {
		return nil, fmt.Errorf("analyze accessibility: settings are required")
	}
	body := map[string]any{"settings": settings}
	return c.postExpect(ctx, "/ai/accessibility/analyze", body, "analysis", false)
}

// GetPredictiveSettings requests setting predictions for pc and returns
// the predictions array.
func (c *Client) GetPredictiveSettings(ctx context.Context, pc PredictionContext) (json.RawMessage, error) {
	body := map[string]any{"context": pc.withDefaults()}
	return c.postExpect(ctx, "/ai/settings/predict", body, "predictions", true)
}

// ApplyAISuggestionAsync queues applying AI suggestion id of the given type.
func (c *Client) ApplyAISuggestionAsync(id, suggestionType string) *Call {
	return c.applyAsync(keyApplyAISuggestion, "/ai/suggestions/%s/apply", id,
		map[string]any{"type": suggestionType}, "Failed to apply AI suggestion", "")
}

// ApplyAISuggestion applies AI suggestion id and waits for the result.
func (c *Client) ApplyAISuggestion(ctx context.Context, id, suggestionType string) (json.RawMessage, error) {
	return c.ApplyAISuggestionAsync(id, suggestionType).Wait(ctx)
}

// RejectAISuggestion records a rejection of AI suggestion id.
func (c *Client) RejectAISuggestion(ctx context.Context, id, reason string) (json.RawMessage, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("reject AI suggestion: %w", ErrInvalidID)
	}
	var r any
	if reason != "" {
		r = reason
	}
	endpoint := fmt.Sprintf("/ai/suggestions/%s/reject", url.PathEscape(id))
	body, err := c.Request(ctx, endpoint, RequestOptions{Method: http.MethodPost, Body: map[string]any{"reason": r}})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// GetAISuggestionHistory lists past AI suggestions matching q.
func (c *Client) GetAISuggestionHistory(ctx context.Context, q HistoryQuery) (json.RawMessage, error) {
	return c.getArray(ctx, "/ai/suggestions/history", q.values())
}

// GetAISettings fetches the AI preferences.
func (c *Client) GetAISettings(ctx context.Context) (json.RawMessage, error) {
	body, err := c.Request(ctx, "/ai/settings", RequestOptions{})
	if err != nil {
		return nil, err
	}
	return c.expectObject(http.MethodGet, "/ai/settings", unwrapData(body))
}

// UpdateAISettings stores the AI preferences and returns the stored copy.
func (c *Client) UpdateAISettings(ctx context.Context, settings any) (json.RawMessage, error) {
	if settings == nil {
		return nil, fmt.Errorf("update AI settings: settings are required")
	}
	body, err := c.Request(ctx, "/ai/settings", RequestOptions{Method: http.MethodPost, Body: settings})
	if err != nil {
		return nil, err
	}
	return pick(body, "settings"), nil
}

// applyAsync queues a POST to the formatted endpoint under prefix+id,
// requiring success and returning the field named by result (or the
// whole body when absent).
func (c *Client) applyAsync(prefix, format, id string, reqBody any, fallback, result string) *Call {
	if strings.TrimSpace(id) == "" {
		return settledCall(prefix, fmt.Errorf("%s: %w", strings.TrimSuffix(prefix, ":"), ErrInvalidID))
	}
	endpoint := fmt.Sprintf(format, url.PathEscape(id))
	return c.queue.Enqueue(prefix+id, func(ctx context.Context) (json.RawMessage, error) {
		body, err := c.Request(ctx, endpoint, RequestOptions{Method: http.MethodPost, Body: reqBody})
		if err != nil {
			return nil, err
		}
		if err := c.requireSuccess(http.MethodPost, endpoint, body, fallback); err != nil {
			return nil, err
		}
		if result == "" {
			return body, nil
		}
		return pick(body, result), nil
	})
}

func (c *Client) getArray(ctx context.Context, endpoint string, q url.Values) (json.RawMessage, error) {
	body, err := c.Request(ctx, endpoint, RequestOptions{Query: q})
	if err != nil {
		return nil, err
	}
	data := unwrapData(body)
	if !gjson.ParseBytes(data).IsArray() {
		return nil, c.shapeError(http.MethodGet, endpoint, "expected an array")
	}
	return data, nil
}

// postExpect POSTs body and requires success plus the named field,
// which must be an array when wantArray is set. The field is returned.
func (c *Client) postExpect(ctx context.Context, endpoint string, reqBody any, field string, wantArray bool) (json.RawMessage, error) {
	body, err := c.Request(ctx, endpoint, RequestOptions{Method: http.MethodPost, Body: reqBody})
	if err != nil {
		return nil, err
	}
	res := gjson.GetBytes(body, field)
	ok := gjson.GetBytes(body, "success").Bool() && res.Exists()
	if ok && wantArray {
		ok = res.IsArray()
	}
	if !ok {
		return nil, c.shapeError(http.MethodPost, endpoint, "missing "+field)
	}
	return json.RawMessage(res.Raw), nil
}

// requireSuccess rejects a body whose success flag is not true, using the
// server message or fallback.
func (c *Client) requireSuccess(method, endpoint string, body json.RawMessage, fallback string) error {
	if gjson.GetBytes(body, "success").Bool() {
		return nil
	}
	msg := gjson.GetBytes(body, "message").String()
	if msg == "" {
		msg = fallback
	}
	cerr := &Error{Kind: KindOther, Method: method, Endpoint: endpoint, Message: msg}
	c.publishError(cerr)
	return cerr
}

func (c *Client) shapeError(method, endpoint, detail string) error {
	cerr := &Error{
		Kind:     KindSerialization,
		Method:   method,
		Endpoint: endpoint,
		Err:      fmt.Errorf("%w: %s", ErrUnexpectedResponse, detail),
	}
	c.publishError(cerr)
	return cerr
}

func (c *Client) expectObject(method, endpoint string, body json.RawMessage) (json.RawMessage, error) {
	if !gjson.ParseBytes(body).IsObject() {
		return nil, c.shapeError(method, endpoint, "expected an object")
	}
	return body, nil
}

// unwrapData returns the data field of a {success, data} envelope, or
// body unchanged.
func unwrapData(body json.RawMessage) json.RawMessage {
	if !gjson.GetBytes(body, "success").Exists() {
		return body
	}
	data := gjson.GetBytes(body, "data")
	if !data.Exists() {
		return body
	}
	return json.RawMessage(data.Raw)
}

// pick returns the named field of body when present, otherwise body.
func pick(body json.RawMessage, field string) json.RawMessage {
	res := gjson.GetBytes(body, field)
	if !res.Exists() {
		return body
	}
	return json.RawMessage(res.Raw)
}
