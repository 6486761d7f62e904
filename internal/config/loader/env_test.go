package loader

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testSchema() map[string]any {
	return map[string]any{
		"client": map[string]any{
			"base_url":    "",
			"token":       "",
			"max_retries": int64(3),
			"retry_delay": "1s",
		},
		"channel": map[string]any{
			"heartbeat_interval": "30s",
		},
		"bus": map[string]any{
			"queue_batch_size": int64(10),
		},
		"collab": map[string]any{
			"exclude_paths": []any{"advanced.custom_*"},
			"enabled":       false,
			"ratio":         0.5,
		},
	}
}

func newTestEnvLoader(env ...string) *EnvLoader {
	l := NewEnvLoader("STYLESYNC_", testSchema())
	l.environ = func() []string { return env }
	return l
}

func TestEnvLoaderTypedValues(t *testing.T) {
	l := newTestEnvLoader(
		"STYLESYNC_CLIENT_BASE_URL=https://example.test",
		"STYLESYNC_CLIENT_MAX_RETRIES=5",
		"STYLESYNC_CHANNEL_HEARTBEAT_INTERVAL=15s",
		"STYLESYNC_COLLAB_EXCLUDE_PATHS=a.*, b.c ,",
		"STYLESYNC_COLLAB_ENABLED=yes",
		"STYLESYNC_COLLAB_RATIO=0.25",
		"STYLESYNC_UNKNOWN_KEY=1",
		"STYLESYNC_CLIENT_NOPE=1",
		"HOME=/root",
	)

	got, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := map[string]any{
		"client": map[string]any{
			"base_url":    "https://example.test",
			"max_retries": int64(5),
		},
		"channel": map[string]any{
			"heartbeat_interval": "15s",
		},
		"collab": map[string]any{
			"exclude_paths": []any{"a.*", "b.c"},
			"enabled":       true,
			"ratio":         0.25,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load (-want +got):\n%s", diff)
	}
}

func TestEnvLoaderAliasesWin(t *testing.T) {
	l := newTestEnvLoader(
		"STYLESYNC_TOKEN=short",
		"STYLESYNC_CLIENT_TOKEN=long",
	)
	l.AddMapping("STYLESYNC_TOKEN", "client.token")

	got, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tok := got["client"].(map[string]any)["token"]; tok != "short" {
		t.Errorf("expected alias to win, got %v", tok)
	}
}

func TestEnvLoaderInvalidValue(t *testing.T) {
	tests := []struct {
		name string
		env  string
	}{
		{"int", "STYLESYNC_BUS_QUEUE_BATCH_SIZE=many"},
		{"bool", "STYLESYNC_COLLAB_ENABLED=maybe"},
		{"float", "STYLESYNC_COLLAB_RATIO=half"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestEnvLoader(tt.env).Load()
			if err == nil {
				t.Fatal("expected error")
			}
			name, _, _ := strings.Cut(tt.env, "=")
			if !strings.Contains(err.Error(), name) {
				t.Errorf("expected error to name %s, got %v", name, err)
			}
		})
	}
}

func TestEnvToPathLongestSection(t *testing.T) {
	l := NewEnvLoader("X_", map[string]any{
		"store":       map[string]any{},
		"store_extra": map[string]any{},
		"flat":        "value",
	})

	tests := []struct {
		env  string
		want string
		ok   bool
	}{
		{"X_STORE_CACHE_SIZE", "store.cache_size", true},
		{"X_STORE_EXTRA_KEY", "store_extra.key", true},
		{"X_FLAT_KEY", "", false},
		{"X_OTHER", "", false},
	}
	for _, tt := range tests {
		got, ok := l.envToPath(tt.env)
		if got != tt.want || ok != tt.ok {
			t.Errorf("envToPath(%q) = %q, %v; want %q, %v", tt.env, got, ok, tt.want, tt.ok)
		}
	}
}
