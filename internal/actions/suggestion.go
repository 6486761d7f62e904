package actions

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dshills/stylesync/internal/client"
)

// Category groups AI suggestions by the endpoint that produces them.
type Category string

const (
	CategoryColors        Category = "colors"
	CategoryTypography    Category = "typography"
	CategoryAccessibility Category = "accessibility"
	CategorySettings      Category = "settings"
)

// Categories lists every known category.
var Categories = []Category{CategoryColors, CategoryTypography, CategoryAccessibility, CategorySettings}

// Suggestion is a single AI proposal. Raw holds the server's full object.
type Suggestion struct {
	ID         string
	Type       string
	Category   Category
	Confidence float64
	Raw        json.RawMessage
}

// AppliedSuggestion records a suggestion applied in this session.
type AppliedSuggestion struct {
	ID         string
	Type       string
	Confidence float64
	AppliedAt  time.Time
}

// SuggestionContext carries the request context for each category. Count
// of zero uses the server default for the category.
type SuggestionContext struct {
	Color      client.ColorContext
	Typography client.TypographyContext
	Prediction client.PredictionContext
	Count      int
}

// parseSuggestions decodes an array of suggestion objects, keeping those
// at or above threshold.
func parseSuggestions(raw json.RawMessage, category Category, threshold float64) []Suggestion {
	var out []Suggestion
	gjson.ParseBytes(raw).ForEach(func(_, item gjson.Result) bool {
		s := Suggestion{
			ID:         item.Get("id").String(),
			Type:       item.Get("type").String(),
			Category:   category,
			Confidence: item.Get("confidence").Float(),
			Raw:        json.RawMessage(item.Raw),
		}
		if s.Type == "" {
			s.Type = string(category)
		}
		if s.Confidence >= threshold {
			out = append(out, s)
		}
		return true
	})
	return out
}
