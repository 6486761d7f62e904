package actions

import (
	"context"
	"encoding/json"

	"github.com/dshills/stylesync/internal/client"
)

// API is the part of the communication client the applier calls.
// *client.Client implements it.
type API interface {
	ApplyTemplate(ctx context.Context, id string) (json.RawMessage, error)
	ApplyPalette(ctx context.Context, id string) (json.RawMessage, error)
	GetAIColorSuggestions(ctx context.Context, cc client.ColorContext, count int) (json.RawMessage, error)
	GetAITypographySuggestions(ctx context.Context, tc client.TypographyContext, count int) (json.RawMessage, error)
	AnalyzeAccessibility(ctx context.Context, settings json.RawMessage) (json.RawMessage, error)
	GetPredictiveSettings(ctx context.Context, pc client.PredictionContext) (json.RawMessage, error)
	ApplyAISuggestion(ctx context.Context, id, suggestionType string) (json.RawMessage, error)
	RejectAISuggestion(ctx context.Context, id, reason string) (json.RawMessage, error)
	UpdateAISettings(ctx context.Context, settings any) (json.RawMessage, error)
}

var _ API = (*client.Client)(nil)
