package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/nodeflow/internal/apperr"
	"github.com/starford/nodeflow/internal/chat"
)

// CanvasHandler serves the chat canvas. One canvas is shared by every
// client of the server.
type CanvasHandler struct {
	mu     sync.Mutex
	canvas *chat.Canvas
}

// NewCanvasHandler wraps canvas.
func NewCanvasHandler(canvas *chat.Canvas) *CanvasHandler {
	return &CanvasHandler{canvas: canvas}
}

// WindowView is one chat window as returned by the API.
type WindowView struct {
	ID                 int            `json:"id"`
	X                  float64        `json:"x"`
	Y                  float64        `json:"y"`
	Selected           bool           `json:"selected"`
	Blocks             []string       `json:"blocks"`
	Suggestions        []string       `json:"suggestions"`
	ShowingSuggestions bool           `json:"showing_suggestions"`
	Messages           []chat.Message `json:"messages"`
}

// CanvasResponse lists the open windows.
type CanvasResponse struct {
	Windows []WindowView `json:"windows"`
}

// PositionRequest places or moves a window.
type PositionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SelectBlockRequest picks a block in a window's composer.
type SelectBlockRequest struct {
	Block string `json:"block"`
}

// Validate implements validation.Validatable.
func (r SelectBlockRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Block, validation.Required, validation.Length(1, 200)),
	)
}

func viewOf(w *chat.Window, selected bool) WindowView {
	c := w.Composer
	return WindowView{
		ID:                 w.ID,
		X:                  w.X,
		Y:                  w.Y,
		Selected:           selected,
		Blocks:             nonNilBlocks(c.Selected()),
		Suggestions:        nonNilBlocks(c.Suggestions()),
		ShowingSuggestions: c.ShowingSuggestions(),
		Messages:           nonNilMessages(c.Messages()),
	}
}

func nonNilBlocks(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMessages(m []chat.Message) []chat.Message {
	if m == nil {
		return []chat.Message{}
	}
	return m
}

// snapshot must be called with h.mu held.
func (h *CanvasHandler) snapshot() CanvasResponse {
	sel, ok := h.canvas.Selected()
	out := CanvasResponse{Windows: []WindowView{}}
	for _, w := range h.canvas.Windows() {
		out.Windows = append(out.Windows, viewOf(w, ok && sel.ID == w.ID))
	}
	return out
}

// window must be called with h.mu held.
func (h *CanvasHandler) window(id int) (*chat.Window, error) {
	for _, w := range h.canvas.Windows() {
		if w.ID == id {
			return w, nil
		}
	}
	return nil, fmt.Errorf("window %d: %w", id, apperr.ErrNotFound)
}

func windowID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "wid"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("window id %q: %w", chi.URLParam(r, "wid"), apperr.ErrInvalid)
	}
	return id, nil
}

// Get handles GET /api/canvas.
//
//	@Summary	List the chat windows on the canvas
//	@Tags		canvas
//	@Produce	json
//	@Success	200	{object}	CanvasResponse
//	@Security	BearerAuth
//	@Router		/canvas [get]
func (h *CanvasHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	writeJSON(w, http.StatusOK, h.snapshot())
}

// Open handles POST /api/canvas/windows.
//
//	@Summary	Open a chat window
//	@Tags		canvas
//	@Accept		json
//	@Produce	json
//	@Param		body	body		PositionRequest	true	"Position"
//	@Success	201		{object}	WindowView
//	@Failure	409		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/canvas/windows [post]
func (h *CanvasHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "open window", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	win, err := h.canvas.Open(req.X, req.Y)
	if errors.Is(err, chat.ErrCanvasFull) {
		writeJSON(w, http.StatusConflict, errorBody(fmt.Sprintf("at most %d windows", chat.MaxWindows)))
		return
	}
	if err != nil {
		writeError(w, "open window", err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(win, false))
}

// Select handles POST /api/canvas/windows/{wid}/select.
//
//	@Summary	Select a chat window
//	@Tags		canvas
//	@Produce	json
//	@Param		wid	path		int	true	"Window ID"
//	@Success	200	{object}	CanvasResponse
//	@Failure	404	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/canvas/windows/{wid}/select [post]
func (h *CanvasHandler) Select(w http.ResponseWriter, r *http.Request) {
	id, err := windowID(r)
	if err != nil {
		writeError(w, "select window", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.canvas.Select(id); err != nil {
		writeError(w, "select window", err)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

// Move handles PATCH /api/canvas/windows/{wid}.
//
//	@Summary	Move a chat window
//	@Tags		canvas
//	@Accept		json
//	@Produce	json
//	@Param		wid		path		int				true	"Window ID"
//	@Param		body	body		PositionRequest	true	"New position"
//	@Success	200		{object}	CanvasResponse
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/canvas/windows/{wid} [patch]
func (h *CanvasHandler) Move(w http.ResponseWriter, r *http.Request) {
	id, err := windowID(r)
	if err != nil {
		writeError(w, "move window", err)
		return
	}
	var req PositionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "move window", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.canvas.Move(id, req.X, req.Y); err != nil {
		writeError(w, "move window", err)
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

// DeleteSelected handles DELETE /api/canvas/selected.
//
//	@Summary	Close the selected chat window
//	@Tags		canvas
//	@Success	204
//	@Failure	404	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/canvas/selected [delete]
func (h *CanvasHandler) DeleteSelected(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.canvas.DeleteSelected() {
		writeError(w, "delete window", fmt.Errorf("no window selected: %w", apperr.ErrNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectBlock handles POST /api/canvas/windows/{wid}/blocks. The "?" block
// sends the question built so far.
//
//	@Summary	Pick a block in a chat window
//	@Tags		canvas
//	@Accept		json
//	@Produce	json
//	@Param		wid		path		int					true	"Window ID"
//	@Param		body	body		SelectBlockRequest	true	"Block"
//	@Success	200		{object}	WindowView
//	@Failure	401		{object}	errResponse
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/canvas/windows/{wid}/blocks [post]
func (h *CanvasHandler) SelectBlock(w http.ResponseWriter, r *http.Request) {
	id, err := windowID(r)
	if err != nil {
		writeError(w, "select block", err)
		return
	}
	var req SelectBlockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "select block", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	win, err := h.window(id)
	if err != nil {
		writeError(w, "select block", err)
		return
	}
	if err := win.Composer.Select(r.Context(), req.Block); err != nil {
		writeError(w, "select block", err)
		return
	}
	sel, ok := h.canvas.Selected()
	writeJSON(w, http.StatusOK, viewOf(win, ok && sel.ID == win.ID))
}

// AskAgain handles POST /api/canvas/windows/{wid}/reset.
//
//	@Summary	Start a new question in a chat window
//	@Tags		canvas
//	@Produce	json
//	@Param		wid	path		int	true	"Window ID"
//	@Success	200	{object}	WindowView
//	@Failure	404	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/canvas/windows/{wid}/reset [post]
func (h *CanvasHandler) AskAgain(w http.ResponseWriter, r *http.Request) {
	id, err := windowID(r)
	if err != nil {
		writeError(w, "ask again", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	win, err := h.window(id)
	if err != nil {
		writeError(w, "ask again", err)
		return
	}
	win.Composer.AskAgain()
	sel, ok := h.canvas.Selected()
	writeJSON(w, http.StatusOK, viewOf(win, ok && sel.ID == win.ID))
}
