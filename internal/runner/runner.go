// Package runner submits a flow's run payload to the orchestration backend.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/starford/nodeflow/internal/flow"
	"github.com/starford/nodeflow/internal/request"
)

// Request is the body of a run call.
type Request struct {
	Nodes []flow.RunNode `json:"nodes"`
}

// Result is the backend's answer. Its shape is not interpreted.
type Result struct {
	StatusCode int             `json:"status"`
	Body       json.RawMessage `json:"body"`
}

// Runner posts run payloads to a single endpoint.
type Runner struct {
	doer   request.Doer
	url    string
	logger *slog.Logger
}

// New creates a Runner posting to url.
func New(doer request.Doer, url string, logger *slog.Logger) *Runner {
	return &Runner{doer: doer, url: url, logger: logger}
}

// Run submits payload. Failures are returned as classified by the request
// client and are never retried here.
func (r *Runner) Run(ctx context.Context, payload []flow.RunNode) (*Result, error) {
	if payload == nil {
		payload = []flow.RunNode{}
	}
	resp, err := r.doer.Do(ctx, http.MethodPost, r.url, Request{Nodes: payload})
	if err != nil {
		r.logger.Warn("runner: run failed",
			slog.Int("nodes", len(payload)),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("runner: run: %w", err)
	}

	body := json.RawMessage(resp.Body)
	if !json.Valid(body) {
		// Wrap non-JSON answers so the result stays valid JSON.
		quoted, _ := json.Marshal(string(resp.Body))
		body = quoted
	}
	r.logger.Info("runner: run completed",
		slog.Int("nodes", len(payload)),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(resp.Body)))
	return &Result{StatusCode: resp.StatusCode, Body: body}, nil
}
