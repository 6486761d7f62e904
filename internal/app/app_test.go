package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/stylesync/internal/config"
	"github.com/dshills/stylesync/internal/event"
)

type fakeServer struct {
	mu      sync.Mutex
	stored  string
	auth    []string
	failGet bool
	// postGate, when set, holds every save until it is closed.
	postGate chan struct{}
}

func (s *fakeServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = append(s.auth, r.Header.Get("Authorization"))

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/api/settings" && r.Method == http.MethodGet:
		if s.failGet {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"message":"gone"}`)
			return
		}
		io.WriteString(w, `{"success":true,"data":`+s.stored+`}`)
	case r.URL.Path == "/api/settings" && r.Method == http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		if gate := s.postGate; gate != nil {
			s.mu.Unlock()
			<-gate
			s.mu.Lock()
		}
		s.stored = string(body)
		io.WriteString(w, `{"success":true}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{}`)
	}
}

func (s *fakeServer) lastAuth() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.auth) == 0 {
		return ""
	}
	return s.auth[len(s.auth)-1]
}

func newTestApp(t *testing.T, fs *fakeServer, mutate func(*config.Config)) *App {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(fs.handler))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Client.BaseURL = srv.URL + "/api"
	cfg.Client.Token = "secret"
	cfg.Client.MaxRetries = 0
	if mutate != nil {
		mutate(&cfg)
	}

	a, err := New(cfg, WithRegisterer(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(config.Default())
	var verr *config.ValidationError
	if !errors.As(err, &verr) || verr.Field != "client.base_url" {
		t.Errorf("expected base_url validation error, got %v", err)
	}
}

func TestNewWiresComponents(t *testing.T) {
	a := newTestApp(t, &fakeServer{stored: `{}`}, nil)

	if a.Bus() == nil || a.Client() == nil || a.Store() == nil || a.Collab() == nil || a.Actions() == nil {
		t.Fatal("expected every component to be constructed")
	}
	if a.Store().Bus() != a.Bus() || a.Client().Bus() != a.Bus() {
		t.Error("expected store and client to share the app bus")
	}
	if a.Client().Config().MaxRetries != 0 {
		t.Errorf("expected client config from app config, got %+v", a.Client().Config())
	}
}

func TestLoadUpdateSave(t *testing.T) {
	fs := &fakeServer{stored: `{"admin_bar":{"bg_color":"#111111"}}`}
	a := newTestApp(t, fs, nil)
	ctx := context.Background()

	loaded := make(chan struct{}, 1)
	a.Bus().OnFunc(event.TopicSettingsLoaded, func(event.Event) error {
		loaded <- struct{}{}
		return nil
	})

	if err := a.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	select {
	case <-loaded:
	default:
		t.Error("expected settings:loaded to be emitted")
	}
	if got := a.Store().GetSetting("admin_bar.bg_color").String(); got != "#111111" {
		t.Errorf("expected loaded color, got %q", got)
	}

	if err := a.Store().UpdateSetting("admin_bar.bg_color", "#222222"); err != nil {
		t.Fatalf("UpdateSetting: %v", err)
	}
	if err := a.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fs.mu.Lock()
	stored := fs.stored
	fs.mu.Unlock()
	var doc map[string]any
	if err := json.Unmarshal([]byte(stored), &doc); err != nil {
		t.Fatalf("server received invalid JSON: %v", err)
	}
	if c := doc["admin_bar"].(map[string]any)["bg_color"]; c != "#222222" {
		t.Errorf("expected saved color #222222, got %v", c)
	}
	if fs.lastAuth() != "Bearer secret" {
		t.Errorf("unexpected auth header %q", fs.lastAuth())
	}
}

func TestSaveAfterTimeoutWritesNewestTree(t *testing.T) {
	fs := &fakeServer{stored: `{}`, postGate: make(chan struct{})}
	a := newTestApp(t, fs, nil)
	store := a.Store()

	if err := store.UpdateSetting("admin_bar.bg_color", "#222222"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := a.Save(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the first save to time out, got %v", err)
	}

	if err := store.UpdateSetting("admin_bar.bg_color", "#333333"); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- a.Save(context.Background()) }()
	close(fs.postGate)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second save did not finish")
	}

	fs.mu.Lock()
	stored := fs.stored
	fs.mu.Unlock()
	var doc map[string]any
	if err := json.Unmarshal([]byte(stored), &doc); err != nil {
		t.Fatalf("server received invalid JSON: %v", err)
	}
	if c := doc["admin_bar"].(map[string]any)["bg_color"]; c != "#333333" {
		t.Errorf("expected the newest color on the server, got %v", c)
	}
	if store.UI().IsDirty {
		t.Error("expected the tree to be clean after saving it")
	}
}

func TestLoadFallsBackToBootstrapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootstrap.json")
	if err := os.WriteFile(path, []byte(`{"admin_bar":{"bg_color":"#abcdef"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	a := newTestApp(t, &fakeServer{failGet: true}, func(cfg *config.Config) {
		cfg.Store.BootstrapFile = path
	})

	if err := a.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := a.Store().GetSetting("admin_bar.bg_color").String(); got != "#abcdef" {
		t.Errorf("expected bootstrap color, got %q", got)
	}
}

func TestNewRejectsBadBootstrapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootstrap.json")
	if err := os.WriteFile(path, []byte(`not json`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Client.BaseURL = "http://example.test"
	cfg.Client.Token = "t"
	cfg.Store.BootstrapFile = path

	_, err := New(cfg)
	var cerr *ComponentError
	if !errors.As(err, &cerr) || cerr.Component != "store" {
		t.Errorf("expected store ComponentError, got %v", err)
	}
}

func TestReconfigureRotatesToken(t *testing.T) {
	fs := &fakeServer{stored: `{}`}
	a := newTestApp(t, fs, nil)

	next := a.Config()
	next.Client.Token = "rotated"
	next.Client.MaxRetries = 9
	a.Reconfigure(next)

	if a.Client().Token() != "rotated" {
		t.Errorf("expected rotated token, got %q", a.Client().Token())
	}
	if a.Config().Client.MaxRetries != 0 {
		t.Error("expected non-runtime fields to be left alone")
	}
	if err := a.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if fs.lastAuth() != "Bearer rotated" {
		t.Errorf("expected rotated token on the wire, got %q", fs.lastAuth())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	a := newTestApp(t, &fakeServer{stored: `{}`}, nil)

	a.Close()
	a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Load(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := a.Save(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
