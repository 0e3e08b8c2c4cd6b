package projects

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/starford/nodeflow/internal/request"
)

// Client talks to the project database endpoints under /db.
type Client struct {
	doer request.Doer
	base string
}

// NewClient creates a Client rooted at baseURL.
func NewClient(doer request.Doer, baseURL string) *Client {
	return &Client{doer: doer, base: strings.TrimRight(baseURL, "/") + "/db"}
}

// List returns up to limit projects starting at offset.
func (c *Client) List(ctx context.Context, limit, offset int) ([]Project, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	rows, err := request.DoJSON[[]Project](ctx, c.doer, http.MethodGet, c.base+"/getPaginated?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("projects: list: %w", err)
	}
	out := *rows
	if out == nil {
		out = []Project{}
	}
	for i := range out {
		out[i].normalize()
	}
	return out, nil
}

// Count returns the total number of projects.
func (c *Client) Count(ctx context.Context) (int, error) {
	res, err := request.DoJSON[struct {
		Count int `json:"count"`
	}](ctx, c.doer, http.MethodGet, c.base+"/projectCount", nil)
	if err != nil {
		return 0, fmt.Errorf("projects: count: %w", err)
	}
	return res.Count, nil
}

// FetchPage loads page pageIndex (zero-based) and the total count in parallel.
func (c *Client) FetchPage(ctx context.Context, pageIndex, pageSize int) (*Page, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("projects: page size must be positive, got %d", pageSize)
	}
	if pageIndex < 0 {
		pageIndex = 0
	}

	var (
		rows  []Project
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = c.List(gctx, pageSize, pageIndex*pageSize)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = c.Count(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Page{
		Projects:  rows,
		PageIndex: pageIndex,
		PageSize:  pageSize,
		Total:     total,
		PageCount: (total + pageSize - 1) / pageSize,
	}, nil
}

// Update sends a partial update for one project and returns the backend's copy.
func (c *Client) Update(ctx context.Context, id string, fields map[string]any) (*Project, error) {
	p, err := request.DoJSON[Project](ctx, c.doer, http.MethodPut, c.base+"/projects/"+url.PathEscape(id), fields)
	if err != nil {
		return nil, fmt.Errorf("projects: update %s: %w", id, err)
	}
	p.normalize()
	return p, nil
}

// ListPrompts returns every saved prompt.
func (c *Client) ListPrompts(ctx context.Context) ([]Prompt, error) {
	res, err := request.DoJSON[[]Prompt](ctx, c.doer, http.MethodGet, c.base+"/prompts", nil)
	if err != nil {
		return nil, fmt.Errorf("projects: list prompts: %w", err)
	}
	if *res == nil {
		return []Prompt{}, nil
	}
	return *res, nil
}

// CreatePrompt saves a new prompt.
func (c *Client) CreatePrompt(ctx context.Context, p Prompt) error {
	if _, err := c.doer.Do(ctx, http.MethodPost, c.base+"/prompts", promptBody(p)); err != nil {
		return fmt.Errorf("projects: create prompt: %w", err)
	}
	return nil
}

// UpdatePrompt replaces the prompt with the given id.
func (c *Client) UpdatePrompt(ctx context.Context, id string, p Prompt) error {
	if _, err := c.doer.Do(ctx, http.MethodPut, c.base+"/prompts/"+url.PathEscape(id), promptBody(p)); err != nil {
		return fmt.Errorf("projects: update prompt %s: %w", id, err)
	}
	return nil
}

// DeletePrompt removes the prompt with the given id.
func (c *Client) DeletePrompt(ctx context.Context, id string) error {
	if _, err := c.doer.Do(ctx, http.MethodDelete, c.base+"/prompts/"+url.PathEscape(id), nil); err != nil {
		return fmt.Errorf("projects: delete prompt %s: %w", id, err)
	}
	return nil
}

// promptBody is the editable part of a prompt as the backend expects it.
func promptBody(p Prompt) map[string]string {
	return map[string]string{
		"title":         p.Title,
		"type":          p.Type,
		"system_prompt": p.SystemPrompt,
		"main_prompt":   p.MainPrompt,
	}
}
