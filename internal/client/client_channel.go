package client

import (
	"context"
	"path"

	"github.com/dshills/stylesync/internal/client/channel"
)

// channelURL returns the configured channel URL, or one derived from the
// base URL by switching to the ws scheme and appending /ws.
func (c *Client) channelURL() string {
	if c.config.Channel.URL != "" {
		return c.config.Channel.URL
	}
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = path.Join(u.Path, "ws")
	u.RawPath = ""
	u.RawQuery = ""
	return u.String()
}

// channelSession returns the channel session, creating it on first use.
func (c *Client) channelSession() (*channel.Session, error) {
	c.chMu.Lock()
	defer c.chMu.Unlock()
	if c.session != nil {
		return c.session, nil
	}

	cfg := c.config.Channel
	cfg.URL = c.channelURL()
	opts := []channel.Option{
		channel.WithBus(c.bus),
		channel.WithTokenSource(c.Token),
		channel.WithTransitionListener(c.metrics.channelTransition),
	}
	if c.dialer != nil {
		opts = append(opts, channel.WithDialer(c.dialer))
	}
	s, err := channel.NewSession(cfg, opts...)
	if err != nil {
		return nil, err
	}
	c.session = s
	return s, nil
}

// ConnectChannel opens the persistent channel.
func (c *Client) ConnectChannel(ctx context.Context) error {
	s, err := c.channelSession()
	if err != nil {
		return err
	}
	return s.Connect(ctx)
}

// DisconnectChannel closes the persistent channel and discards the
// session; handlers registered on it are dropped.
func (c *Client) DisconnectChannel() {
	c.chMu.Lock()
	s := c.session
	c.session = nil
	c.chMu.Unlock()

	if s != nil {
		s.Disconnect()
	}
}

// ChannelState returns the channel state; disconnected when no session exists.
func (c *Client) ChannelState() channel.State {
	c.chMu.Lock()
	s := c.session
	c.chMu.Unlock()
	if s == nil {
		return channel.StateDisconnected
	}
	return s.State()
}

// ChannelClientID returns the id stamped on outgoing changes, or "" when
// no session exists.
func (c *Client) ChannelClientID() string {
	c.chMu.Lock()
	defer c.chMu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.ClientID()
}

// SubscribeMessages registers fn for channel messages of msgType.
func (c *Client) SubscribeMessages(msgType string, fn channel.MessageHandler) (unsubscribe func(), err error) {
	s, err := c.channelSession()
	if err != nil {
		return nil, err
	}
	return s.Subscribe(msgType, fn), nil
}

// SubscribePresence registers fn for presence updates.
func (c *Client) SubscribePresence(fn channel.PresenceHandler) (unsubscribe func(), err error) {
	s, err := c.channelSession()
	if err != nil {
		return nil, err
	}
	return s.SubscribePresence(fn), nil
}

// BroadcastStateChange sends a settings change to other clients.
func (c *Client) BroadcastStateChange(sc channel.StateChange) (channel.StateChange, error) {
	c.chMu.Lock()
	s := c.session
	c.chMu.Unlock()
	if s == nil {
		return sc, channel.ErrNotConnected
	}
	return s.BroadcastStateChange(sc)
}

// UpdatePresence sends this client's presence.
func (c *Client) UpdatePresence(p channel.Presence) error {
	c.chMu.Lock()
	s := c.session
	c.chMu.Unlock()
	if s == nil {
		return channel.ErrNotConnected
	}
	return s.UpdatePresence(p)
}
