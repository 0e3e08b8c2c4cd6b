// Package chat drives the LLM backend: a block-based question composer and a
// canvas of independent chat windows.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/starford/nodeflow/internal/apperr"
	"github.com/starford/nodeflow/internal/request"
)

// Client calls the LLM endpoints.
type Client struct {
	doer request.Doer
	base string
}

// NewClient creates a Client rooted at baseURL (the LLM service, not the auth backend).
func NewClient(doer request.Doer, baseURL string) *Client {
	return &Client{doer: doer, base: strings.TrimRight(baseURL, "/") + "/api/llm"}
}

// Suggestions returns the next blocks the user may pick after selected.
func (c *Client) Suggestions(ctx context.Context, selected []string) ([]string, error) {
	body := struct {
		SelectedBlocks []string `json:"selectedBlocks"`
	}{SelectedBlocks: nonNil(selected)}
	url := c.base + "/suggestions"
	resp, err := c.doer.Do(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("chat: suggestions: %w", err)
	}
	blocks, err := decodeBlocks(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("chat: suggestions: %w", &apperr.UnexpectedError{
			Method:     http.MethodPost,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        err,
		})
	}
	return blocks, nil
}

// decodeBlocks reads a JSON string array. The list is model generated, so a
// body that does not parse is repaired once before giving up.
func decodeBlocks(raw []byte) ([]string, error) {
	var out []string
	if len(raw) == 0 {
		return []string{}, nil
	}
	err := json.Unmarshal(raw, &out)
	if err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(string(raw))
		if repairErr != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &out); err != nil {
			return nil, fmt.Errorf("decode repaired body: %w", err)
		}
	}
	return nonNil(out), nil
}

// Generate sends a complete prompt and returns the model's answer.
func (c *Client) Generate(ctx context.Context, userPrompt string) (string, error) {
	body := struct {
		UserPrompt string `json:"userPrompt"`
	}{UserPrompt: userPrompt}
	out, err := request.DoJSON[struct {
		Content string `json:"content"`
	}](ctx, c.doer, http.MethodPost, c.base+"/generate", body)
	if err != nil {
		return "", fmt.Errorf("chat: generate: %w", err)
	}
	return out.Content, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
