package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang/glog"
	"github.com/tidwall/gjson"

	"github.com/dshills/stylesync/internal/client/backoff"
	"github.com/dshills/stylesync/internal/event"
)

// RequestOptions describe a single request.
type RequestOptions struct {
	// Method defaults to GET.
	Method string

	// Body is JSON-encoded for non-GET requests. A json.RawMessage is
	// sent as is.
	Body any

	Query  url.Values
	Header http.Header
}

// attemptError is a failed attempt before normalization decisions.
type attemptError struct {
	err *Error

	// refreshable marks an auth rejection a token refresh may fix.
	refreshable bool
}

// Request sends a request to endpoint, retrying transient failures with
// exponential backoff and refreshing a rejected token once. Terminal
// failures are returned as *Error and published on error:occurred.
func (c *Client) Request(ctx context.Context, endpoint string, opts RequestOptions) (json.RawMessage, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()
	body, err := c.request(ctx, method, endpoint, opts)
	c.metrics.requestDone(method, err, time.Since(start))
	if err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			c.publishError(cerr)
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) request(ctx context.Context, method, endpoint string, opts RequestOptions) (json.RawMessage, error) {
	refreshed := false
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, c.cancelled(method, endpoint, err)
		}

		c.refreshIfExpiring(ctx)
		token, gen := c.tokenSnapshot()

		body, aerr := c.attempt(ctx, method, endpoint, opts, token)
		if aerr == nil {
			return c.intercept(method, endpoint, body)
		}
		cerr := aerr.err

		if cerr.Kind == KindAuth && aerr.refreshable && !refreshed {
			refreshed = true
			rerr := c.refreshToken(ctx, gen)
			if rerr == nil {
				glog.V(2).Infof("client: %s %s: retrying with refreshed token", method, endpoint)
				continue
			}
			cerr.Err = fmt.Errorf("token refresh: %w", rerr)
			return nil, cerr
		}

		if !cerr.Kind.Retryable() || attempt >= c.config.MaxRetries {
			return nil, cerr
		}

		delay := backoff.Delay(c.config.RetryDelay, attempt, c.config.MaxRetryDelay)
		glog.V(2).Infof("client: %s %s: %s, retry %d in %s", method, endpoint, cerr.Kind, attempt+1, delay)
		c.metrics.retried()
		if err := c.sleep(ctx, delay); err != nil {
			return nil, c.cancelled(method, endpoint, err)
		}
		attempt++
	}
}

// attempt performs one HTTP round trip bounded by the request timeout.
func (c *Client) attempt(ctx context.Context, method, endpoint string, opts RequestOptions, token string) (json.RawMessage, *attemptError) {
	fail := func(kind Kind, status int, err error) *attemptError {
		return &attemptError{err: &Error{Kind: kind, Method: method, Endpoint: endpoint, Status: status, Err: err}}
	}

	actx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var reader io.Reader
	if opts.Body != nil && method != http.MethodGet {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fail(KindClient, 0, fmt.Errorf("encode body: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(actx, method, c.endpointURL(endpoint, opts.Query), reader)
	if err != nil {
		return nil, fail(KindClient, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	for _, ic := range c.requestInterceptorSnapshot() {
		if err := ic(req); err != nil {
			return nil, fail(KindClient, 0, fmt.Errorf("request interceptor: %w", err))
		}
	}

	glog.V(2).Infof("client: %s %s", method, req.URL)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fail(c.transportKind(ctx, actx), 0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(c.transportKind(ctx, actx), resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(method, endpoint, resp.StatusCode, data)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fail(KindSerialization, resp.StatusCode, errors.New("response body is not valid JSON"))
	}
	return json.RawMessage(data), nil
}

// transportKind classifies a transport failure by which context ended.
func (c *Client) transportKind(parent, attempt context.Context) Kind {
	if parent.Err() != nil {
		return KindCancelled
	}
	if errors.Is(attempt.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindNetwork
}

func statusError(method, endpoint string, status int, body []byte) *attemptError {
	cerr := &Error{Method: method, Endpoint: endpoint, Status: status}
	if gjson.ValidBytes(body) {
		cerr.Code = gjson.GetBytes(body, "code").String()
		cerr.Message = gjson.GetBytes(body, "message").String()
	}

	refreshable := false
	switch {
	case status == http.StatusUnauthorized:
		cerr.Kind = KindAuth
		refreshable = true
	case status == http.StatusForbidden:
		cerr.Kind = KindAuth
		refreshable = authRejectionCodes[cerr.Code]
	case status == http.StatusTooManyRequests:
		cerr.Kind = KindRateLimit
	case status >= 500:
		cerr.Kind = KindServer
	default:
		cerr.Kind = KindClient
	}
	return &attemptError{err: cerr, refreshable: refreshable}
}

func (c *Client) intercept(method, endpoint string, body json.RawMessage) (json.RawMessage, error) {
	for _, ic := range c.responseInterceptorSnapshot() {
		next, err := ic(body)
		if err != nil {
			return nil, &Error{Kind: KindOther, Method: method, Endpoint: endpoint, Err: fmt.Errorf("response interceptor: %w", err)}
		}
		body = next
	}
	return body, nil
}

func (c *Client) cancelled(method, endpoint string, err error) *Error {
	return &Error{Kind: KindCancelled, Method: method, Endpoint: endpoint, Err: err}
}

func (c *Client) endpointURL(endpoint string, query url.Values) string {
	u := c.baseURL.JoinPath(endpoint)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// publishError mirrors a terminal failure onto the bus. Caller
// cancellations are not published.
func (c *Client) publishError(cerr *Error) {
	if cerr.Kind == KindCancelled {
		return
	}
	glog.Errorf("client: %s", cerr.Detail())
	if c.bus == nil {
		return
	}
	c.bus.Emit(event.TopicErrorOccurred, ErrorPayload{
		Source:   "client",
		Method:   cerr.Method,
		Endpoint: cerr.Endpoint,
		Err:      cerr,
	})
}
