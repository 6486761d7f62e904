package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/dshills/stylesync/internal/client/backoff"
	"github.com/dshills/stylesync/internal/event"
	"github.com/dshills/stylesync/internal/event/topic"
)

// MessageHandler receives the data of a typed message.
type MessageHandler func(data json.RawMessage)

// PresenceHandler receives presence updates.
type PresenceHandler func(p Presence)

// dialCall is a connection attempt shared by concurrent Connect callers.
type dialCall struct {
	done chan struct{}
	err  error
}

func (d *dialCall) finish(err error) {
	d.err = err
	close(d.done)
}

type messageHandlerEntry struct {
	fn MessageHandler
}

type presenceHandlerEntry struct {
	fn PresenceHandler
}

// Session is a persistent, self-healing WebSocket connection. It
// authenticates on open, sends heartbeats, reconnects with exponential
// backoff after abnormal closes, and dispatches incoming messages by type.
type Session struct {
	config       Config
	dialer       *websocket.Dialer
	bus          *event.Bus
	token        func() string
	onTransition func(from, to State)
	clientID     string

	mu             sync.Mutex
	state          State
	attempt        int
	conn           *websocket.Conn
	connGen        uint64
	dialing        *dialCall
	reconnectTimer *time.Timer
	stopHeartbeat  chan struct{}
	notifications  []func()

	writeMu sync.Mutex

	hmu      sync.RWMutex
	handlers map[string][]*messageHandlerEntry
	presence []*presenceHandlerEntry
}

// NewSession creates a disconnected session.
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	if cfg.URL == "" {
		return nil, ErrMissingURL
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("channel: parse URL: %w", err)
	}

	s := &Session{
		config:   cfg.withDefaults(),
		dialer:   websocket.DefaultDialer,
		token:    func() string { return "" },
		clientID: uuid.NewString(),
		handlers: make(map[string][]*messageHandlerEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ClientID returns the id this session stamps on outgoing changes.
func (s *Session) ClientID() string {
	return s.clientID
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempt returns the current reconnect attempt count.
func (s *Session) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Connected reports whether the session is connected.
func (s *Session) Connected() bool {
	return s.State() == StateConnected
}

// Connect opens the connection. It returns immediately when already
// connected, and concurrent callers share one attempt. A failed attempt
// leaves the session reconnecting in the background.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateConnected:
		s.mu.Unlock()
		return nil
	case StateConnecting:
		d := s.dialing
		s.mu.Unlock()
		return s.wait(ctx, d)
	case StateReconnecting:
		s.stopReconnectLocked()
		s.transitionLocked(InputRetryDue)
	default:
		s.transitionLocked(InputDial)
	}
	d := &dialCall{done: make(chan struct{})}
	s.dialing = d
	s.unlockAndNotify()

	s.dial(ctx, d)
	return s.wait(ctx, d)
}

func (s *Session) wait(ctx context.Context, d *dialCall) error {
	select {
	case <-d.done:
		return d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) dial(ctx context.Context, d *dialCall) {
	dctx, cancel := context.WithTimeout(ctx, s.config.DialTimeout)
	defer cancel()

	glog.V(1).Infof("channel: dialing %s", s.config.URL)
	conn, _, err := s.dialer.DialContext(dctx, s.dialURL(), nil)
	if err == nil {
		if err = s.write(conn, Message{Type: TypeAuth, Token: s.token(), Timestamp: nowMillis()}); err != nil {
			conn.Close()
			conn = nil
			err = fmt.Errorf("auth: %w", err)
		}
	}

	s.mu.Lock()
	if s.dialing != d {
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		d.finish(ErrDisconnected)
		return
	}
	s.dialing = nil

	if err != nil {
		glog.V(1).Infof("channel: dial failed: %v", err)
		s.transitionLocked(InputDialFailed)
		s.scheduleReconnectLocked(err)
		s.unlockAndNotify()
		d.finish(fmt.Errorf("channel: dial: %w", err))
		return
	}

	s.conn = conn
	s.attempt = 0
	s.connGen++
	gen := s.connGen
	stop := make(chan struct{})
	s.stopHeartbeat = stop
	s.transitionLocked(InputOpened)
	s.notifyLocked(event.TopicChannelConnected, StatusPayload{State: StateConnected, ClientID: s.clientID})
	s.unlockAndNotify()

	glog.V(1).Infof("channel: connected as %s", s.clientID)
	go s.readLoop(conn, gen)
	go s.heartbeat(conn, stop)
	d.finish(nil)
}

func (s *Session) dialURL() string {
	u, err := url.Parse(s.config.URL)
	if err != nil {
		return s.config.URL
	}
	if tok := s.token(); tok != "" {
		q := u.Query()
		q.Set("token", tok)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Disconnect closes the connection with code 1000, cancels any pending
// reconnect and resets the attempt count.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.stopReconnectLocked()
	s.stopHeartbeatLocked()
	conn := s.conn
	s.conn = nil
	s.connGen++
	s.dialing = nil
	s.attempt = 0
	if s.state != StateDisconnected {
		s.transitionLocked(InputDisconnect)
		s.notifyLocked(event.TopicChannelDisconnected, StatusPayload{State: StateDisconnected, ClientID: s.clientID})
	}
	s.unlockAndNotify()

	if conn == nil {
		return
	}
	s.writeMu.Lock()
	deadline := time.Now().Add(s.config.WriteTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		glog.V(2).Infof("channel: close frame: %v", err)
	}
	s.writeMu.Unlock()
	conn.Close()
	glog.V(1).Infof("channel: disconnected")
}

func (s *Session) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.connectionLost(gen, err)
			return
		}
		s.dispatch(data)
	}
}

func (s *Session) connectionLost(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.connGen || s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.conn = nil
	s.stopHeartbeatLocked()

	code := websocket.CloseAbnormalClosure
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
	}

	if code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway {
		glog.V(1).Infof("channel: closed by peer (%d)", code)
		s.transitionLocked(InputCleanClose)
		s.notifyLocked(event.TopicChannelDisconnected, StatusPayload{State: StateDisconnected, ClientID: s.clientID, Code: code})
	} else {
		glog.Warningf("channel: connection lost: %v", err)
		s.transitionLocked(InputAbnormalClose)
		s.scheduleReconnectLocked(err)
	}
	s.unlockAndNotify()

	if conn != nil {
		conn.Close()
	}
}

// scheduleReconnectLocked arms the reconnect timer, or gives up when the
// attempt budget is spent. The session must be reconnecting.
func (s *Session) scheduleReconnectLocked(cause error) {
	limit := s.config.MaxReconnectAttempts
	if limit > 0 && s.attempt >= limit {
		glog.Warningf("channel: giving up after %d reconnect attempts", s.attempt)
		s.transitionLocked(InputGiveUp)
		s.notifyLocked(event.TopicChannelFailed, StatusPayload{
			State:    StateDisconnected,
			ClientID: s.clientID,
			Attempt:  s.attempt,
			Err:      cause,
		})
		s.attempt = 0
		return
	}

	delay := backoff.Delay(s.config.ReconnectDelay, s.attempt, s.config.MaxReconnectDelay)
	s.stopReconnectLocked()
	s.reconnectTimer = time.AfterFunc(delay, s.retry)
	s.notifyLocked(event.TopicChannelReconnecting, StatusPayload{
		State:    StateReconnecting,
		ClientID: s.clientID,
		Attempt:  s.attempt + 1,
		Delay:    delay,
		Err:      cause,
	})
	glog.V(1).Infof("channel: reconnecting in %s (attempt %d)", delay, s.attempt+1)
}

func (s *Session) retry() {
	s.mu.Lock()
	if s.state != StateReconnecting {
		s.mu.Unlock()
		return
	}
	s.reconnectTimer = nil
	s.attempt++
	s.transitionLocked(InputRetryDue)
	d := &dialCall{done: make(chan struct{})}
	s.dialing = d
	s.unlockAndNotify()

	s.dial(context.Background(), d)
}

func (s *Session) stopReconnectLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

func (s *Session) stopHeartbeatLocked() {
	if s.stopHeartbeat != nil {
		close(s.stopHeartbeat)
		s.stopHeartbeat = nil
	}
}

func (s *Session) heartbeat(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.write(conn, Message{Type: TypePing, Timestamp: nowMillis()}); err != nil {
				glog.V(2).Infof("channel: ping: %v", err)
			}
		}
	}
}

// transitionLocked applies in to the current state and queues the
// transition listener.
func (s *Session) transitionLocked(in Input) {
	from := s.state
	to, err := Transition(from, in)
	if err != nil {
		glog.Errorf("channel: %v", err)
		return
	}
	s.state = to
	if s.onTransition != nil && from != to {
		fn := s.onTransition
		s.notifications = append(s.notifications, func() { fn(from, to) })
	}
}

// notifyLocked queues a bus event to be published after the lock is released.
func (s *Session) notifyLocked(t topic.Topic, payload StatusPayload) {
	if s.bus == nil {
		return
	}
	bus := s.bus
	s.notifications = append(s.notifications, func() { bus.Emit(t, payload) })
}

// unlockAndNotify releases the lock, then runs queued notifications in order.
func (s *Session) unlockAndNotify() {
	pending := s.notifications
	s.notifications = nil
	s.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

func (s *Session) write(conn *websocket.Conn, msg Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// send writes msg on the current connection.
func (s *Session) send(msg Message) error {
	s.mu.Lock()
	if s.state != StateConnected || s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	conn := s.conn
	s.mu.Unlock()
	return s.write(conn, msg)
}

// Send writes a message of the given type with data encoded as JSON.
func (s *Session) Send(msgType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("channel: encode %s: %w", msgType, err)
	}
	return s.send(Message{Type: msgType, Data: raw, Timestamp: nowMillis()})
}

// BroadcastStateChange sends a state change to other clients. The
// operation defaults to set; ID, ClientID and Timestamp are filled when
// empty. The sent change is returned.
func (s *Session) BroadcastStateChange(sc StateChange) (StateChange, error) {
	if sc.Path == "" {
		return sc, ErrInvalidChange
	}
	if !s.Connected() {
		return sc, ErrNotConnected
	}
	if sc.Operation == "" {
		sc.Operation = OpSet
	}
	if sc.ID == "" {
		sc.ID = ulid.Make().String()
	}
	if sc.ClientID == "" {
		sc.ClientID = s.clientID
	}
	if sc.Timestamp == 0 {
		sc.Timestamp = nowMillis()
	}
	return sc, s.Send(TypeStateChange, sc)
}

// UpdatePresence sends this client's presence. Activity defaults to
// "active" and Location to the configured location.
func (s *Session) UpdatePresence(p Presence) error {
	if !s.Connected() {
		return ErrNotConnected
	}
	if p.Activity == "" {
		p.Activity = "active"
	}
	if p.Location == "" {
		p.Location = s.config.Location
	}
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	if p.ClientID == "" {
		p.ClientID = s.clientID
	}
	p.Timestamp = nowMillis()
	return s.Send(TypePresenceUpdate, p)
}

// Subscribe registers fn for messages of msgType. The returned function
// removes it.
func (s *Session) Subscribe(msgType string, fn MessageHandler) (unsubscribe func()) {
	entry := &messageHandlerEntry{fn: fn}
	s.hmu.Lock()
	s.handlers[msgType] = append(s.handlers[msgType], entry)
	s.hmu.Unlock()

	return func() {
		s.hmu.Lock()
		defer s.hmu.Unlock()
		list := s.handlers[msgType]
		for i, e := range list {
			if e == entry {
				list = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(s.handlers, msgType)
		} else {
			s.handlers[msgType] = list
		}
	}
}

// SubscribePresence registers fn for presence updates. The returned
// function removes it.
func (s *Session) SubscribePresence(fn PresenceHandler) (unsubscribe func()) {
	entry := &presenceHandlerEntry{fn: fn}
	s.hmu.Lock()
	s.presence = append(s.presence, entry)
	s.hmu.Unlock()

	return func() {
		s.hmu.Lock()
		defer s.hmu.Unlock()
		for i, e := range s.presence {
			if e == entry {
				s.presence = append(s.presence[:i:i], s.presence[i+1:]...)
				return
			}
		}
	}
}

// HandlerCount returns the number of handlers for msgType.
func (s *Session) HandlerCount(msgType string) int {
	s.hmu.RLock()
	defer s.hmu.RUnlock()
	if msgType == TypePresence {
		return len(s.presence)
	}
	return len(s.handlers[msgType])
}

func (s *Session) dispatch(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		glog.V(1).Infof("channel: malformed message: %v", err)
		return
	}

	switch msg.Type {
	case TypePong:
		return
	case TypePresence:
		var p Presence
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			glog.V(1).Infof("channel: malformed presence: %v", err)
			return
		}
		s.hmu.RLock()
		handlers := make([]*presenceHandlerEntry, len(s.presence))
		copy(handlers, s.presence)
		s.hmu.RUnlock()
		for _, h := range handlers {
			s.safeCall(msg.Type, func() { h.fn(p) })
		}
	default:
		s.hmu.RLock()
		handlers := make([]*messageHandlerEntry, len(s.handlers[msg.Type]))
		copy(handlers, s.handlers[msg.Type])
		s.hmu.RUnlock()
		for _, h := range handlers {
			s.safeCall(msg.Type, func() { h.fn(msg.Data) })
		}
	}
}

func (s *Session) safeCall(msgType string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("channel: %s handler panicked: %v\n%s", msgType, r, debug.Stack())
		}
	}()
	fn()
}
