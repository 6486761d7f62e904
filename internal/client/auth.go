package client

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/glog"
)

// authRejectionCodes are the 403 body codes that mean the token is stale.
var authRejectionCodes = map[string]bool{
	"rest_cookie_invalid_nonce": true,
	"invalid_token":             true,
	"token_expired":             true,
}

// Token returns the current auth token.
func (c *Client) Token() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// SetToken replaces the auth token. Requests built afterwards use it.
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = token
	c.tokenGen++
	c.tokenMu.Unlock()
}

func (c *Client) tokenSnapshot() (string, uint64) {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token, c.tokenGen
}

// refreshToken replaces the token observed at generation gen. Concurrent
// callers share one refresh, and a caller whose token was already replaced
// returns without refreshing.
func (c *Client) refreshToken(ctx context.Context, gen uint64) error {
	if c.refresher == nil {
		return ErrNoRefresher
	}

	_, err, _ := c.refreshGroup.Do("token", func() (any, error) {
		if _, current := c.tokenSnapshot(); current != gen {
			return nil, nil
		}

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.Timeout)
		defer cancel()

		token, err := c.refresher(rctx)
		if err != nil {
			return nil, err
		}
		if token == "" {
			return nil, ErrEmptyToken
		}

		c.SetToken(token)
		c.metrics.tokenRefreshed()
		glog.V(1).Infof("client: auth token refreshed")
		return nil, nil
	})
	return err
}

// refreshIfExpiring refreshes a JWT token whose exp claim falls within
// the configured skew. Opaque tokens are left alone.
func (c *Client) refreshIfExpiring(ctx context.Context) {
	if c.refresher == nil || c.config.RefreshSkew <= 0 {
		return
	}

	token, gen := c.tokenSnapshot()
	exp, ok := tokenExpiry(token)
	if !ok || time.Until(exp) > c.config.RefreshSkew {
		return
	}

	if err := c.refreshToken(ctx, gen); err != nil {
		glog.Warningf("client: proactive token refresh failed: %v", err)
	}
}

// tokenExpiry reads the exp claim of a JWT without verifying its signature.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
