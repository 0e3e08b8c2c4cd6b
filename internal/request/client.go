// Package request implements the cookie-credentialed HTTP client used for every
// backend call. A call that comes back 403 triggers exactly one session refresh
// and, when the refresh succeeds, exactly one retry.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/starford/nodeflow/internal/apperr"
)

// Doer is what the backend clients depend on.
type Doer interface {
	Do(ctx context.Context, method, url string, body any) (*Response, error)
}

// Client sends requests with the session cookie jar attached.
// It is safe for concurrent use; concurrent calls that hit an expired
// session each refresh on their own.
type Client struct {
	http       *http.Client
	refreshURL string
	logger     *slog.Logger
}

var _ Doer = (*Client)(nil)

// options collects With* settings. They are applied together in New, so
// their order does not matter.
type options struct {
	base    *http.Client
	timeout time.Duration
	jar     http.CookieJar
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*options)

// WithHTTPClient uses a copy of hc as the base client. hc itself is never
// modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.base = hc
	}
}

// WithTimeout sets a per-call timeout. Zero leaves the base client's timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithLogger sets the logger used for refresh diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithJar sets the cookie jar shared by all calls, including refresh.
func WithJar(jar http.CookieJar) Option {
	return func(o *options) {
		o.jar = jar
	}
}

// New creates a Client that refreshes sessions by POSTing to refreshURL.
// Without a jar from WithJar or the base client, a fresh in-memory jar is used.
func New(refreshURL string, opts ...Option) (*Client, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	hc := &http.Client{}
	if o.base != nil {
		cp := *o.base
		hc = &cp
	}
	if o.timeout > 0 {
		hc.Timeout = o.timeout
	}
	if o.jar != nil {
		hc.Jar = o.jar
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("request: cookie jar: %w", err)
		}
		hc.Jar = jar
	}
	return &Client{http: hc, refreshURL: refreshURL, logger: o.logger}, nil
}

type state int

const (
	stateSend state = iota
	stateRefresh
	stateRetry
)

// Do performs method on url with body JSON-encoded (nil means no body).
//
// Outcomes:
//   - 2xx, directly or after refresh+retry: the response.
//   - first response 401: apperr.ErrUnauthenticated, no refresh.
//   - first response 403 and the refresh fails: apperr.ErrAuthExpired.
//   - retry answered 401/403: apperr.ErrAuthExpired.
//   - anything else: *apperr.UnexpectedError.
func (c *Client) Do(ctx context.Context, method, url string, body any) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, &apperr.UnexpectedError{Method: method, URL: url, Err: err}
	}

	st := stateSend
	for {
		switch st {
		case stateSend:
			resp, err := c.send(ctx, method, url, payload)
			switch {
			case err != nil:
				return nil, &apperr.UnexpectedError{Method: method, URL: url, Err: err}
			case resp.OK():
				return resp, nil
			case resp.StatusCode == http.StatusForbidden:
				st = stateRefresh
			case resp.StatusCode == http.StatusUnauthorized:
				return nil, fmt.Errorf("%s %s: %w", method, url, apperr.ErrUnauthenticated)
			default:
				return nil, unexpected(method, url, resp)
			}

		case stateRefresh:
			if err := c.Refresh(ctx); err != nil {
				return nil, err
			}
			st = stateRetry

		case stateRetry:
			resp, err := c.send(ctx, method, url, payload)
			switch {
			case err != nil:
				return nil, &apperr.UnexpectedError{Method: method, URL: url, Err: err}
			case resp.OK():
				return resp, nil
			case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
				return nil, fmt.Errorf("%s %s: retry status %d: %w", method, url, resp.StatusCode, apperr.ErrAuthExpired)
			default:
				return nil, unexpected(method, url, resp)
			}
		}
	}
}

// Refresh asks the backend for a new session cookie. Any failure is
// reported as apperr.ErrAuthExpired.
func (c *Client) Refresh(ctx context.Context) error {
	c.logger.Debug("request: refreshing session", slog.String("url", c.refreshURL))

	resp, err := c.send(ctx, http.MethodPost, c.refreshURL, nil)
	if err != nil {
		c.logger.Warn("request: refresh failed", slog.String("error", err.Error()))
		return fmt.Errorf("refresh: %v: %w", err, apperr.ErrAuthExpired)
	}
	if !resp.OK() {
		c.logger.Warn("request: refresh denied", slog.Int("status", resp.StatusCode))
		return fmt.Errorf("refresh: status %d: %w", resp.StatusCode, apperr.ErrAuthExpired)
	}
	return nil
}

// Send performs a single call and returns the response whatever its status.
// Only transport failures are returned as errors.
func (c *Client) Send(ctx context.Context, method, url string, body any) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, method, url, payload)
}

// DoOnce performs a single call without the refresh step. It is meant for
// credential-bearing forms (login, register) where 401/403 means the
// credentials were rejected.
func (c *Client) DoOnce(ctx context.Context, method, url string, body any) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, &apperr.UnexpectedError{Method: method, URL: url, Err: err}
	}
	resp, err := c.send(ctx, method, url, payload)
	switch {
	case err != nil:
		return nil, &apperr.UnexpectedError{Method: method, URL: url, Err: err}
	case resp.OK():
		return resp, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s %s: status %d: %w", method, url, resp.StatusCode, apperr.ErrUnauthenticated)
	default:
		return nil, unexpected(method, url, resp)
	}
}

func (c *Client) send(ctx context.Context, method, url string, payload []byte) (*Response, error) {
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       data,
	}, nil
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if raw, ok := body.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return data, nil
}

func unexpected(method, url string, resp *Response) error {
	return &apperr.UnexpectedError{
		Method:     method,
		URL:        url,
		StatusCode: resp.StatusCode,
		Body:       excerpt(resp.Body, 200),
		Err:        fmt.Errorf("status %d", resp.StatusCode),
	}
}

func excerpt(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
