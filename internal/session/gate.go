// Package session tracks whether the user holds a valid backend session and
// wraps the account endpoints (login, register, logout).
package session

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/starford/nodeflow/internal/request"
)

// Status is the coarse auth state used for routing.
type Status string

const (
	StatusPending         Status = "pending"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// Caller is the subset of *request.Client the session package needs.
type Caller interface {
	request.Doer
	DoOnce(ctx context.Context, method, url string, body any) (*request.Response, error)
	Send(ctx context.Context, method, url string, body any) (*request.Response, error)
	Refresh(ctx context.Context) error
}

// Gate decides whether protected operations may proceed.
type Gate struct {
	api       Caller
	verifyURL string
	logger    *slog.Logger

	mu     sync.Mutex
	status Status
}

// NewGate creates a Gate that verifies against baseURL + "/user/verify".
func NewGate(api Caller, baseURL string, logger *slog.Logger) *Gate {
	return &Gate{
		api:       api,
		verifyURL: strings.TrimRight(baseURL, "/") + "/user/verify",
		logger:    logger,
		status:    StatusPending,
	}
}

// Status returns the result of the last Check, or pending.
func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Check verifies the session. A 403 from verify triggers one refresh;
// everything other than a 200 or a successful refresh is unauthenticated.
func (g *Gate) Check(ctx context.Context) Status {
	g.set(StatusPending)

	resp, err := g.api.Send(ctx, http.MethodGet, g.verifyURL, nil)
	switch {
	case err != nil:
		g.logger.Warn("session: verify failed", slog.String("error", err.Error()))
		return g.set(StatusUnauthenticated)
	case resp.StatusCode == http.StatusOK:
		return g.set(StatusAuthenticated)
	case resp.StatusCode == http.StatusForbidden:
		if err := g.api.Refresh(ctx); err != nil {
			return g.set(StatusUnauthenticated)
		}
		return g.set(StatusAuthenticated)
	default:
		return g.set(StatusUnauthenticated)
	}
}

func (g *Gate) set(s Status) Status {
	g.mu.Lock()
	prev := g.status
	g.status = s
	g.mu.Unlock()
	if prev != s && s != StatusPending {
		g.logger.Info("session: status changed", slog.String("status", string(s)))
	}
	return s
}
