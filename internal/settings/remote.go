package settings

import (
	"context"
	"encoding/json"
)

//go:generate mockgen -destination=mock_settings/remote_mock.go -package=mock_settings github.com/dshills/stylesync/internal/settings Remote

// Remote loads and persists the settings tree. The communication client
// implements it; SaveSettings runs on the client's serialized queue and
// only joins an earlier save of the identical payload.
type Remote interface {
	GetSettings(ctx context.Context) (json.RawMessage, error)
	SaveSettings(ctx context.Context, settings json.RawMessage) (json.RawMessage, error)
}
