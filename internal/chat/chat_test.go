package chat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/nodeflow/internal/apperr"
	"github.com/starford/nodeflow/internal/request"
)

type fakeLLM struct {
	srv        *httptest.Server
	status     int // non-zero forces every LLM call to answer with it
	lastPrompt string
}

func newFakeLLM(t *testing.T) (*fakeLLM, *Client) {
	t.Helper()
	f := &fakeLLM{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/llm/suggestions", func(w http.ResponseWriter, r *http.Request) {
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		var body struct {
			SelectedBlocks []string `json:"selectedBlocks"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		last := body.SelectedBlocks[len(body.SelectedBlocks)-1]
		_ = json.NewEncoder(w).Encode([]string{last + "-a", last + "-b"})
	})
	mux.HandleFunc("POST /api/llm/generate", func(w http.ResponseWriter, r *http.Request) {
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		var body struct {
			UserPrompt string `json:"userPrompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastPrompt = body.UserPrompt
		_ = json.NewEncoder(w).Encode(map[string]string{"content": "answer to " + body.UserPrompt})
	})
	mux.HandleFunc("POST /user/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	rc, err := request.New(f.srv.URL+"/user/refresh", request.WithLogger(quietLogger()))
	require.NoError(t, err)
	return f, NewClient(rc, f.srv.URL)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestComposer_BuildAndAsk(t *testing.T) {
	f, c := newFakeLLM(t)
	comp := NewComposer(c, quietLogger())
	ctx := context.Background()

	assert.Equal(t, DefaultBlocks, comp.Suggestions())
	assert.False(t, comp.CanAsk())

	require.NoError(t, comp.Select(ctx, "what"))
	assert.Equal(t, []string{"what"}, comp.Selected())
	assert.Equal(t, []string{"what-a", "what-b"}, comp.Suggestions())

	require.NoError(t, comp.Select(ctx, "what-a"))
	require.NoError(t, comp.Select(ctx, Ask))

	assert.Equal(t, "what what-a ?", f.lastPrompt)
	msgs := comp.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"what", "what-a", "?"}, msgs[0].Question)
	assert.Equal(t, "answer to what what-a ?", msgs[0].Answer)
	assert.Empty(t, comp.Selected())
	assert.Equal(t, DefaultBlocks, comp.Suggestions())
	assert.False(t, comp.ShowingSuggestions())

	comp.AskAgain()
	assert.True(t, comp.ShowingSuggestions())
}

func TestComposer_BackendFailureIsAbsorbed(t *testing.T) {
	f, c := newFakeLLM(t)
	f.status = http.StatusInternalServerError
	comp := NewComposer(c, quietLogger())
	ctx := context.Background()

	require.NoError(t, comp.Select(ctx, "who"))
	assert.Equal(t, []string{"who"}, comp.Selected())
	assert.Empty(t, comp.Suggestions())

	require.NoError(t, comp.Select(ctx, Ask))
	msgs := comp.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, FailedAnswer, msgs[0].Answer)
}

func TestComposer_RedirectPropagates(t *testing.T) {
	f, c := newFakeLLM(t)
	f.status = http.StatusForbidden
	comp := NewComposer(c, quietLogger())

	err := comp.Select(context.Background(), "why")
	assert.ErrorIs(t, err, apperr.ErrAuthExpired)
	assert.Empty(t, comp.Selected(), "state is unchanged on redirect")

	err = comp.Select(context.Background(), Ask)
	assert.True(t, apperr.IsRedirect(err))
	assert.Empty(t, comp.Messages())
}

func TestCanvas_Lifecycle(t *testing.T) {
	_, c := newFakeLLM(t)
	cv := NewCanvas(c, quietLogger())

	var ids []int
	for i := 0; i < MaxWindows; i++ {
		w, err := cv.Open(float64(i*10), 5)
		require.NoError(t, err)
		ids = append(ids, w.ID)
	}
	_, err := cv.Open(0, 0)
	assert.ErrorIs(t, err, ErrCanvasFull)

	assert.False(t, cv.DeleteSelected(), "nothing selected")
	require.NoError(t, cv.Select(ids[2]))
	require.NoError(t, cv.Move(ids[2], 100, 200))
	w, ok := cv.Selected()
	require.True(t, ok)
	assert.Equal(t, 100.0, w.X)
	assert.Equal(t, 200.0, w.Y)

	assert.True(t, cv.DeleteSelected())
	assert.Len(t, cv.Windows(), MaxWindows-1)
	_, ok = cv.Selected()
	assert.False(t, ok)
	assert.ErrorIs(t, cv.Select(ids[2]), apperr.ErrNotFound)

	w, err = cv.Open(1, 1)
	require.NoError(t, err)
	assert.NotContains(t, ids, w.ID)
}

func TestCanvas_WindowsAreIndependent(t *testing.T) {
	_, c := newFakeLLM(t)
	cv := NewCanvas(c, quietLogger())
	a, err := cv.Open(0, 0)
	require.NoError(t, err)
	b, err := cv.Open(50, 50)
	require.NoError(t, err)

	require.NoError(t, a.Composer.Select(context.Background(), "when"))
	assert.Equal(t, []string{"when"}, a.Composer.Selected())
	assert.Empty(t, b.Composer.Selected())
	assert.True(t, strings.HasPrefix(a.Composer.Suggestions()[0], "when"))
}

func TestDecodeBlocks(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "valid", raw: `["who","what"]`, want: []string{"who", "what"}},
		{name: "empty body", raw: ``, want: []string{}},
		{name: "null", raw: `null`, want: []string{}},
		{name: "trailing comma", raw: `["who","what",]`, want: []string{"who", "what"}},
		{name: "single quotes", raw: `['who', 'what']`, want: []string{"who", "what"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeBlocks([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
