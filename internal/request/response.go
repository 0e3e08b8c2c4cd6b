package request

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Response is the buffered result of a call. The direct and the
// refresh-then-retry paths return the same shape.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("request: decode body (status %d): %w", r.StatusCode, err)
	}
	return nil
}

// DoJSON calls d.Do and decodes the response body into a new T.
func DoJSON[T any](ctx context.Context, d Doer, method, url string, body any) (*T, error) {
	resp, err := d.Do(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	var out T
	if len(resp.Body) == 0 {
		return &out, nil
	}
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
