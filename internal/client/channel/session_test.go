package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dshills/stylesync/internal/event"
	"github.com/dshills/stylesync/internal/event/topic"
)

type wsServer struct {
	srv *httptest.Server
	url string

	mu     sync.Mutex
	conns  []*websocket.Conn
	tokens []string

	received   chan Message
	closeCodes chan int
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{
		received:   make(chan Message, 64),
		closeCodes: make(chan int, 8),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.tokens = append(s.tokens, r.URL.Query().Get("token"))
		s.mu.Unlock()

		go func() {
			for {
				var m Message
				if err := conn.ReadJSON(&m); err != nil {
					var ce *websocket.CloseError
					if errors.As(err, &ce) {
						s.closeCodes <- ce.Code
					}
					return
				}
				s.received <- m
			}
		}()
	}))
	s.url = "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"

	t.Cleanup(func() {
		s.mu.Lock()
		for _, c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
		s.srv.Close()
	})
	return s
}

func (s *wsServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *wsServer) lastConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[len(s.conns)-1]
}

func (s *wsServer) send(t *testing.T, msg string) {
	t.Helper()
	if err := s.lastConn().WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (s *wsServer) next(t *testing.T, msgType string) Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-s.received:
			if m.Type == msgType {
				return m
			}
		case <-deadline:
			t.Fatalf("no %q message received", msgType)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type topicLog struct {
	mu     sync.Mutex
	events []event.Event
}

func (l *topicLog) has(t topic.Topic) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.Topic == t {
			return true
		}
	}
	return false
}

func (l *topicLog) payload(t topic.Topic) (StatusPayload, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.Topic == t {
			return ev.Payload.(StatusPayload), true
		}
	}
	return StatusPayload{}, false
}

func newTestSession(t *testing.T, url string, mutate func(*Config)) (*Session, *topicLog) {
	t.Helper()
	bus := event.NewBus()
	t.Cleanup(bus.Close)

	log := &topicLog{}
	bus.OnFunc("channel:*", func(ev event.Event) error {
		log.mu.Lock()
		log.events = append(log.events, ev)
		log.mu.Unlock()
		return nil
	})

	cfg := DefaultConfig()
	cfg.URL = url
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 50 * time.Millisecond
	cfg.Location = "/settings"
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := NewSession(cfg, WithBus(bus), WithTokenSource(func() string { return "tok" }))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(s.Disconnect)
	return s, log
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from    State
		in      Input
		want    State
		wantErr bool
	}{
		{StateDisconnected, InputDial, StateConnecting, false},
		{StateConnecting, InputOpened, StateConnected, false},
		{StateConnecting, InputDialFailed, StateReconnecting, false},
		{StateConnected, InputCleanClose, StateDisconnected, false},
		{StateConnected, InputAbnormalClose, StateReconnecting, false},
		{StateReconnecting, InputRetryDue, StateConnecting, false},
		{StateReconnecting, InputGiveUp, StateDisconnected, false},
		{StateReconnecting, InputDisconnect, StateDisconnected, false},
		{StateConnected, InputDisconnect, StateDisconnected, false},
		{StateDisconnected, InputOpened, StateDisconnected, true},
		{StateConnected, InputDial, StateConnected, true},
		{StateReconnecting, InputOpened, StateReconnecting, true},
	}

	for _, tt := range tests {
		got, err := Transition(tt.from, tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s on %s: expected ErrInvalidTransition, got %v", tt.in, tt.from, err)
			}
		} else if err != nil {
			t.Errorf("%s on %s: unexpected error %v", tt.in, tt.from, err)
		}
		if got != tt.want {
			t.Errorf("%s on %s = %s, want %s", tt.in, tt.from, got, tt.want)
		}
	}
}

func TestNewSessionRequiresURL(t *testing.T) {
	if _, err := NewSession(Config{}); !errors.Is(err, ErrMissingURL) {
		t.Errorf("expected ErrMissingURL, got %v", err)
	}
}

func TestConnectAuthenticates(t *testing.T) {
	srv := newWSServer(t)
	s, log := newTestSession(t, srv.url, nil)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if s.State() != StateConnected {
		t.Errorf("expected connected, got %s", s.State())
	}

	auth := srv.next(t, TypeAuth)
	if auth.Token != "tok" || auth.Timestamp == 0 {
		t.Errorf("unexpected auth message %+v", auth)
	}
	srv.mu.Lock()
	token := srv.tokens[0]
	srv.mu.Unlock()
	if token != "tok" {
		t.Errorf("expected token query parameter, got %q", token)
	}
	if !log.has(event.TopicChannelConnected) {
		t.Error("expected channel:connected")
	}

	if err := s.Connect(context.Background()); err != nil {
		t.Errorf("second Connect: %v", err)
	}
	if srv.connCount() != 1 {
		t.Errorf("expected Connect to be idempotent, got %d connections", srv.connCount())
	}
}

func TestConcurrentConnectSharesAttempt(t *testing.T) {
	srv := newWSServer(t)
	s, _ := newTestSession(t, srv.url, nil)

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Connect(context.Background()); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Errorf("expected all callers to succeed, %d failed", failures.Load())
	}
	time.Sleep(20 * time.Millisecond)
	if srv.connCount() != 1 {
		t.Errorf("expected one connection, got %d", srv.connCount())
	}
}

func TestHeartbeat(t *testing.T) {
	srv := newWSServer(t)
	s, _ := newTestSession(t, srv.url, func(c *Config) {
		c.HeartbeatInterval = 20 * time.Millisecond
	})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ping := srv.next(t, TypePing)
	if ping.Timestamp == 0 {
		t.Error("expected ping timestamp")
	}
}

func TestDispatchByType(t *testing.T) {
	srv := newWSServer(t)
	s, _ := newTestSession(t, srv.url, nil)

	changes := make(chan StateChange, 4)
	s.Subscribe(TypeStateChange, func(json.RawMessage) {
		panic("first handler fails")
	})
	s.Subscribe(TypeStateChange, func(data json.RawMessage) {
		sc, err := DecodeStateChange(data)
		if err != nil {
			t.Errorf("decode: %v", err)
		}
		changes <- sc
	})
	presences := make(chan Presence, 4)
	s.SubscribePresence(func(p Presence) { presences <- p })

	custom := make(chan string, 4)
	unsubscribe := s.Subscribe("custom", func(data json.RawMessage) { custom <- string(data) })

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	srv.send(t, `{"type":"pong","timestamp":1}`)
	srv.send(t, `not json`)
	srv.send(t, `{"type":"state-change","data":{"path":"admin_bar.height","value":40,"operation":"set","clientId":"other"}}`)
	srv.send(t, `{"type":"presence","data":{"userId":"u2","activity":"editing","location":"/colors"}}`)
	srv.send(t, `{"type":"custom","data":{"n":1}}`)

	select {
	case sc := <-changes:
		if sc.Path != "admin_bar.height" || sc.Value != float64(40) || sc.ClientID != "other" {
			t.Errorf("unexpected change %+v", sc)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("state-change not dispatched")
	}
	select {
	case p := <-presences:
		if p.UserID != "u2" || p.Activity != "editing" {
			t.Errorf("unexpected presence %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("presence not dispatched")
	}
	select {
	case data := <-custom:
		if data != `{"n":1}` {
			t.Errorf("unexpected custom data %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("custom message not dispatched")
	}

	unsubscribe()
	if s.HandlerCount("custom") != 0 {
		t.Errorf("expected custom handler removed, got %d", s.HandlerCount("custom"))
	}
	if s.HandlerCount(TypePresence) != 1 {
		t.Errorf("expected 1 presence handler, got %d", s.HandlerCount(TypePresence))
	}
}

func TestBroadcastStateChange(t *testing.T) {
	srv := newWSServer(t)
	s, _ := newTestSession(t, srv.url, nil)

	if _, err := s.BroadcastStateChange(StateChange{Path: "a.b"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected before connect, got %v", err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := s.BroadcastStateChange(StateChange{}); !errors.Is(err, ErrInvalidChange) {
		t.Errorf("expected ErrInvalidChange, got %v", err)
	}

	sent, err := s.BroadcastStateChange(StateChange{Path: "colors.primary", Value: "#fff", OldValue: "#000"})
	if err != nil {
		t.Fatalf("BroadcastStateChange: %v", err)
	}
	if sent.Operation != OpSet || sent.ID == "" || sent.ClientID != s.ClientID() || sent.Timestamp == 0 {
		t.Errorf("expected defaults filled, got %+v", sent)
	}

	msg := srv.next(t, TypeStateChange)
	got, err := DecodeStateChange(msg.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != sent.ID || got.Path != "colors.primary" || got.Value != "#fff" || got.OldValue != "#000" {
		t.Errorf("unexpected wire change %+v", got)
	}
}

func TestUpdatePresenceDefaults(t *testing.T) {
	srv := newWSServer(t)
	s, _ := newTestSession(t, srv.url, nil)

	if err := s.UpdatePresence(Presence{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.UpdatePresence(Presence{UserID: "me"}); err != nil {
		t.Fatalf("UpdatePresence: %v", err)
	}

	msg := srv.next(t, TypePresenceUpdate)
	var p Presence
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Activity != "active" || p.Location != "/settings" || p.ClientID != s.ClientID() || p.Metadata == nil {
		t.Errorf("expected defaults filled, got %+v", p)
	}
}

func TestCleanCloseDoesNotReconnect(t *testing.T) {
	srv := newWSServer(t)
	s, log := newTestSession(t, srv.url, nil)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	srv.lastConn().WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

	waitFor(t, "disconnected state", func() bool { return s.State() == StateDisconnected })
	time.Sleep(50 * time.Millisecond)
	if srv.connCount() != 1 {
		t.Errorf("expected no reconnect after clean close, got %d connections", srv.connCount())
	}
	p, ok := log.payload(event.TopicChannelDisconnected)
	if !ok || p.Code != websocket.CloseNormalClosure {
		t.Errorf("expected disconnected with code 1000, got %+v (ok=%v)", p, ok)
	}
}

func TestAbnormalCloseReconnects(t *testing.T) {
	srv := newWSServer(t)

	var transitions []State
	var tmu sync.Mutex
	s, log := newTestSession(t, srv.url, nil)
	s.onTransition = func(_, to State) {
		tmu.Lock()
		transitions = append(transitions, to)
		tmu.Unlock()
	}

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	srv.next(t, TypeAuth)
	srv.lastConn().Close()

	waitFor(t, "second connection", func() bool { return srv.connCount() == 2 })
	waitFor(t, "connected state", func() bool { return s.State() == StateConnected })
	srv.next(t, TypeAuth)

	if s.Attempt() != 0 {
		t.Errorf("expected attempt reset after reconnect, got %d", s.Attempt())
	}
	p, ok := log.payload(event.TopicChannelReconnecting)
	if !ok || p.Attempt != 1 || p.Delay != 10*time.Millisecond {
		t.Errorf("unexpected reconnecting payload %+v (ok=%v)", p, ok)
	}

	tmu.Lock()
	defer tmu.Unlock()
	want := []State{StateConnected, StateReconnecting, StateConnecting, StateConnected}
	if len(transitions) < len(want) {
		t.Fatalf("expected transitions %v, got %v", want, transitions)
	}
	for i, st := range want {
		if transitions[len(transitions)-len(want)+i] != st {
			t.Errorf("expected transitions ending in %v, got %v", want, transitions)
			break
		}
	}
}

func TestReconnectGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	s, log := newTestSession(t, url, func(c *Config) {
		c.MaxReconnectAttempts = 2
		c.ReconnectDelay = 5 * time.Millisecond
		c.DialTimeout = 200 * time.Millisecond
	})

	if err := s.Connect(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
	waitFor(t, "channel:failed", func() bool { return log.has(event.TopicChannelFailed) })

	if s.State() != StateDisconnected {
		t.Errorf("expected disconnected after giving up, got %s", s.State())
	}
	p, _ := log.payload(event.TopicChannelFailed)
	if p.Attempt != 2 || p.Err == nil {
		t.Errorf("unexpected failed payload %+v", p)
	}
}

func TestDisconnect(t *testing.T) {
	srv := newWSServer(t)
	s, log := newTestSession(t, srv.url, nil)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	s.Disconnect()
	if s.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", s.State())
	}
	select {
	case code := <-srv.closeCodes:
		if code != websocket.CloseNormalClosure {
			t.Errorf("expected close code 1000, got %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not see a close frame")
	}
	if !log.has(event.TopicChannelDisconnected) {
		t.Error("expected channel:disconnected")
	}

	time.Sleep(30 * time.Millisecond)
	if srv.connCount() != 1 {
		t.Errorf("expected no reconnect after Disconnect, got %d connections", srv.connCount())
	}
	if _, err := s.BroadcastStateChange(StateChange{Path: "x"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after Disconnect, got %v", err)
	}
}
