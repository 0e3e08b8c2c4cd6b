package chat

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/nodeflow/internal/apperr"
)

// MaxWindows is how many chat windows a canvas holds.
const MaxWindows = 5

// ErrCanvasFull is returned by Open when MaxWindows are already open.
var ErrCanvasFull = errors.New("chat: canvas is full")

// Window is one chat placed on the canvas.
type Window struct {
	ID       int
	X, Y     float64
	Composer *Composer
}

// Canvas holds free-floating chat windows, at most one of them selected.
type Canvas struct {
	client   *Client
	logger   *slog.Logger
	windows  []*Window
	selected int // 0 means none
	seq      int
}

// NewCanvas returns an empty canvas whose windows share client.
func NewCanvas(client *Client, logger *slog.Logger) *Canvas {
	return &Canvas{client: client, logger: logger}
}

// Open places a new window at (x, y).
func (c *Canvas) Open(x, y float64) (*Window, error) {
	if len(c.windows) >= MaxWindows {
		return nil, ErrCanvasFull
	}
	c.seq++
	w := &Window{ID: c.seq, X: x, Y: y, Composer: NewComposer(c.client, c.logger)}
	c.windows = append(c.windows, w)
	return w, nil
}

// Select marks the window with the given id as selected.
func (c *Canvas) Select(id int) error {
	if c.find(id) < 0 {
		return fmt.Errorf("chat: window %d: %w", id, apperr.ErrNotFound)
	}
	c.selected = id
	return nil
}

// Selected returns the selected window, if any.
func (c *Canvas) Selected() (*Window, bool) {
	i := c.find(c.selected)
	if i < 0 {
		return nil, false
	}
	return c.windows[i], true
}

// Move repositions a window.
func (c *Canvas) Move(id int, x, y float64) error {
	i := c.find(id)
	if i < 0 {
		return fmt.Errorf("chat: window %d: %w", id, apperr.ErrNotFound)
	}
	c.windows[i].X, c.windows[i].Y = x, y
	return nil
}

// DeleteSelected closes the selected window and clears the selection.
// It reports whether a window was closed.
func (c *Canvas) DeleteSelected() bool {
	i := c.find(c.selected)
	c.selected = 0
	if i < 0 {
		return false
	}
	c.windows = append(c.windows[:i], c.windows[i+1:]...)
	return true
}

// Windows returns the open windows in opening order.
func (c *Canvas) Windows() []*Window {
	out := make([]*Window, len(c.windows))
	copy(out, c.windows)
	return out
}

func (c *Canvas) find(id int) int {
	if id == 0 {
		return -1
	}
	for i, w := range c.windows {
		if w.ID == id {
			return i
		}
	}
	return -1
}
