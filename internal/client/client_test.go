package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/stylesync/internal/event"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *sleepRecorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rec := &sleepRecorder{}
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL + "/api/v1"
	cfg.Token = "initial"

	c, err := New(cfg, append([]Option{WithSleep(rec.sleep)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c, rec
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{Token: "t"}); !errors.Is(err, ErrMissingBaseURL) {
		t.Errorf("expected ErrMissingBaseURL, got %v", err)
	}
	if _, err := New(Config{BaseURL: "http://example.test"}); !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}

	c, err := New(Config{BaseURL: "http://example.test/", Token: "t"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if c.Config().Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", c.Config().Timeout)
	}
	if c.Config().RetryDelay != time.Second {
		t.Errorf("expected default retry delay 1s, got %v", c.Config().RetryDelay)
	}
}

func TestNewRetryCount(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 0},
		{-2, 0},
		{5, 5},
	}
	for _, tt := range tests {
		c, err := New(Config{BaseURL: "http://example.test", Token: "t", MaxRetries: tt.in})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if got := c.Config().MaxRetries; got != tt.want {
			t.Errorf("MaxRetries %d became %d, want %d", tt.in, got, tt.want)
		}
		c.Close()
	}
}

func TestRequestHeadersAndInterceptors(t *testing.T) {
	type seen struct {
		header http.Header
		path   string
		body   map[string]any
	}
	requests := make(chan seen, 1)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		s := seen{header: r.Header.Clone(), path: r.URL.Path}
		json.NewDecoder(r.Body).Decode(&s.body)
		requests <- s
		writeJSON(w, 200, `{"value":1}`)
	})

	var order []string
	c.AddRequestInterceptor(func(req *http.Request) error {
		order = append(order, "first")
		req.Header.Set("X-Trace", "abc")
		return nil
	})
	remove := c.AddRequestInterceptor(func(req *http.Request) error {
		order = append(order, "removed")
		return nil
	})
	c.AddRequestInterceptor(func(req *http.Request) error {
		order = append(order, "last")
		return nil
	})
	remove()

	c.AddResponseInterceptor(func(b json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"value":2}`), nil
	})

	resp, err := c.Request(context.Background(), "/settings", RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]any{"a": 1},
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	req := <-requests
	got, path, body := req.header, req.path, req.body
	if path != "/api/v1/settings" {
		t.Errorf("expected path /api/v1/settings, got %q", path)
	}
	if got.Get("Authorization") != "Bearer initial" {
		t.Errorf("expected bearer token, got %q", got.Get("Authorization"))
	}
	if got.Get("Content-Type") != "application/json" {
		t.Errorf("expected JSON content type, got %q", got.Get("Content-Type"))
	}
	if got.Get("X-Trace") != "abc" {
		t.Errorf("expected interceptor header, got %q", got.Get("X-Trace"))
	}
	if diff := cmp.Diff([]string{"first", "last"}, order); diff != "" {
		t.Errorf("interceptor order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"a": float64(1)}, body); diff != "" {
		t.Errorf("request body (-want +got):\n%s", diff)
	}
	if string(resp) != `{"value":2}` {
		t.Errorf("expected intercepted body, got %s", resp)
	}
}

func TestRequestInterceptorErrorAborts(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, 200, `{}`)
	})
	boom := errors.New("boom")
	c.AddRequestInterceptor(func(*http.Request) error { return boom })

	_, err := c.Request(context.Background(), "/settings", RequestOptions{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected interceptor error, got %v", err)
	}
	if KindOf(err) != KindClient {
		t.Errorf("expected KindClient, got %v", KindOf(err))
	}
	if calls.Load() != 0 {
		t.Errorf("expected no request sent, got %d", calls.Load())
	}
}

func TestRequestRetriesWithBackoff(t *testing.T) {
	var calls atomic.Int32
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			writeJSON(w, 503, `{"message":"unavailable"}`)
			return
		}
		writeJSON(w, 200, `{"ok":true}`)
	})

	resp, err := c.Request(context.Background(), "/settings", RequestOptions{})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(resp) != `{"ok":true}` {
		t.Errorf("unexpected body %s", resp)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
	if diff := cmp.Diff([]time.Duration{time.Second, 2 * time.Second}, rec.Delays()); diff != "" {
		t.Errorf("retry delays (-want +got):\n%s", diff)
	}
}

func TestRequestErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantKind  Kind
		wantCalls int32
		wantMsg   string
	}{
		{"server error retried", 500, `{}`, KindServer, 4, "Server error. Please try again later."},
		{"rate limit retried", 429, `{}`, KindRateLimit, 4, "Too many requests. Please wait a moment and try again."},
		{"bad request", 400, `{"message":"bad color"}`, KindClient, 1, "bad color"},
		{"not found", 404, `{}`, KindClient, 1, "HTTP 404"},
		{"forbidden", 403, `{"code":"rest_forbidden"}`, KindAuth, 1, "Authentication failed. Please refresh the page and try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeJSON(w, tt.status, tt.body)
			})

			_, err := c.Request(context.Background(), "/settings", RequestOptions{})
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if cerr.Kind != tt.wantKind {
				t.Errorf("expected kind %v, got %v", tt.wantKind, cerr.Kind)
			}
			if cerr.Status != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, cerr.Status)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, calls.Load())
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, err.Error())
			}
		})
	}
}

func TestRequestAttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	rec := &sleepRecorder{}
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Token = "t"
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxRetries = 1
	c, err := New(cfg, WithSleep(rec.sleep))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	_, err = c.Request(context.Background(), "/slow", RequestOptions{})
	if KindOf(err) != KindTimeout {
		t.Fatalf("expected KindTimeout, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
	if !IsRetryable(err) {
		t.Error("expected timeout to be retryable")
	}
}

func TestRequestCancelledNotPublished(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()
	var published atomic.Int32
	bus.OnFunc(event.TopicErrorOccurred, func(event.Event) error {
		published.Add(1)
		return nil
	})

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{}`)
	}, WithBus(bus))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Request(ctx, "/settings", RequestOptions{})
	if KindOf(err) != KindCancelled {
		t.Fatalf("expected KindCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
	if published.Load() != 0 {
		t.Errorf("expected no error:occurred for cancellation, got %d", published.Load())
	}
}

func TestRequestMalformedBody(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, 200, `{"broken":`)
	})

	_, err := c.Request(context.Background(), "/settings", RequestOptions{})
	if KindOf(err) != KindSerialization {
		t.Fatalf("expected KindSerialization, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected serialization failure not to be retried, got %d calls", calls.Load())
	}
}

func TestTerminalErrorPublishedOnBus(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var payloads []ErrorPayload
	bus.OnFunc(event.TopicErrorOccurred, func(ev event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		payloads = append(payloads, ev.Payload.(ErrorPayload))
		return nil
	})

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 400, `{"message":"nope"}`)
	}, WithBus(bus))

	if _, err := c.Request(context.Background(), "/templates", RequestOptions{}); err == nil {
		t.Fatal("expected error")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 1 {
		t.Fatalf("expected 1 published error, got %d", len(payloads))
	}
	p := payloads[0]
	if p.Source != "client" || p.Endpoint != "/templates" || p.Method != http.MethodGet {
		t.Errorf("unexpected payload %+v", p)
	}
	if p.Err.Kind != KindClient || p.Err.Message != "nope" {
		t.Errorf("unexpected error %+v", p.Err)
	}
}

func TestConcurrentAuthRejectionRefreshesOnce(t *testing.T) {
	const n = 5
	var stale, fresh atomic.Int32
	allStale := make(chan struct{})

	var refreshes atomic.Int32
	refresher := func(ctx context.Context) (string, error) {
		refreshes.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "fresh", nil
	}

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer fresh" {
			fresh.Add(1)
			writeJSON(w, 200, `{"ok":true}`)
			return
		}
		if stale.Add(1) == n {
			close(allStale)
		}
		select {
		case <-allStale:
		case <-time.After(2 * time.Second):
		}
		writeJSON(w, 403, `{"code":"rest_cookie_invalid_nonce","message":"Cookie check failed"}`)
	}, WithTokenRefresher(refresher))

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Request(context.Background(), "/settings", RequestOptions{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("request %d: %v", i, err)
		}
	}
	if refreshes.Load() != 1 {
		t.Errorf("expected exactly 1 refresh, got %d", refreshes.Load())
	}
	if fresh.Load() != n {
		t.Errorf("expected %d retries with the fresh token, got %d", n, fresh.Load())
	}
	if c.Token() != "fresh" {
		t.Errorf("expected token fresh, got %q", c.Token())
	}
}

func TestAuthRefreshAttemptedOncePerRequest(t *testing.T) {
	var calls, refreshes atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, 401, `{"code":"invalid_token"}`)
	}, WithTokenRefresher(func(context.Context) (string, error) {
		refreshes.Add(1)
		return "next", nil
	}))

	_, err := c.Request(context.Background(), "/settings", RequestOptions{})
	if KindOf(err) != KindAuth {
		t.Fatalf("expected KindAuth, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected original plus one retry, got %d calls", calls.Load())
	}
	if refreshes.Load() != 1 {
		t.Errorf("expected 1 refresh, got %d", refreshes.Load())
	}
}

func TestAuthRefreshFailure(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, `{}`)
	}

	t.Run("no refresher", func(t *testing.T) {
		c, _ := newTestClient(t, handler)
		_, err := c.Request(context.Background(), "/settings", RequestOptions{})
		if KindOf(err) != KindAuth {
			t.Errorf("expected KindAuth, got %v", err)
		}
		if !errors.Is(err, ErrNoRefresher) {
			t.Errorf("expected ErrNoRefresher in chain, got %v", err)
		}
	})

	t.Run("refresher fails", func(t *testing.T) {
		denied := errors.New("session ended")
		c, _ := newTestClient(t, handler, WithTokenRefresher(func(context.Context) (string, error) {
			return "", denied
		}))
		_, err := c.Request(context.Background(), "/settings", RequestOptions{})
		if KindOf(err) != KindAuth {
			t.Errorf("expected KindAuth, got %v", err)
		}
		if !errors.Is(err, denied) {
			t.Errorf("expected refresher error in chain, got %v", err)
		}
		if c.Token() != "initial" {
			t.Errorf("expected token unchanged, got %q", c.Token())
		}
	})
}

func TestProactiveRefreshOfExpiringJWT(t *testing.T) {
	expiring, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Second)),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	auths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auths <- r.Header.Get("Authorization")
		writeJSON(w, 200, `{}`)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Token = expiring
	c, err := New(cfg, WithTokenRefresher(func(context.Context) (string, error) {
		return "renewed", nil
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if _, err := c.Request(context.Background(), "/settings", RequestOptions{}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if auth := <-auths; auth != "Bearer renewed" {
		t.Errorf("expected refreshed token on the wire, got %q", auth)
	}
}

func TestTokenExpiry(t *testing.T) {
	if _, ok := tokenExpiry("opaque-nonce"); ok {
		t.Error("expected opaque token to have no expiry")
	}
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("k"))
	got, ok := tokenExpiry(tok)
	if !ok || !got.Equal(exp) {
		t.Errorf("expected expiry %v, got %v (ok=%v)", exp, got, ok)
	}
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, 502, `{}`)
			return
		}
		writeJSON(w, 200, `{}`)
	}, WithMetrics(m))

	if _, err := c.Request(context.Background(), "/settings", RequestOptions{}); err != nil {
		t.Fatalf("Request: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	values := make(map[string]float64)
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[f.GetName()] += metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				values[f.GetName()] += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}

	want := map[string]float64{
		"stylesync_requests_total":           1,
		"stylesync_request_retries_total":    1,
		"stylesync_request_duration_seconds": 1,
	}
	for name, v := range want {
		if values[name] != v {
			t.Errorf("%s = %v, want %v", name, values[name], v)
		}
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindOther, "other"},
		{KindTimeout, "timeout"},
		{KindNetwork, "network"},
		{KindServer, "server"},
		{KindRateLimit, "rate_limit"},
		{KindAuth, "auth"},
		{KindClient, "client"},
		{KindSerialization, "serialization"},
		{KindCancelled, "cancelled"},
		{Kind(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.expected {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.expected)
		}
	}
}
