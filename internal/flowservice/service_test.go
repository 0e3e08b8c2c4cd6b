package flowservice

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/nodeflow/internal/apperr"
	"github.com/starford/nodeflow/internal/flow"
	"github.com/starford/nodeflow/internal/index"
	"github.com/starford/nodeflow/internal/parser"
	"github.com/starford/nodeflow/internal/runner"
	"github.com/starford/nodeflow/internal/storage"
)

type fakeRunner struct {
	mu  sync.Mutex
	got []flow.RunNode
	err error
}

func (f *fakeRunner) Run(_ context.Context, payload []flow.RunNode) (*runner.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = payload
	if f.err != nil {
		return nil, f.err
	}
	return &runner.Result{StatusCode: 200, Body: json.RawMessage(`{"ok":true}`)}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(kind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+id)
}

func newService(t *testing.T, opts ...Option) (*Service, *index.DB) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithLogger(logger)}, opts...)
	return NewService(store, db, opts...), db
}

func TestCreateAndGetFlow(t *testing.T) {
	rec := &recorder{}
	svc, db := newService(t, WithEvents(rec.record))
	ctx := context.Background()

	created, err := svc.CreateFlow(ctx, &parser.Document{ID: "greet", Name: "Greeting"})
	require.NoError(t, err)
	assert.Equal(t, "greet", created.ID)
	assert.NotEmpty(t, created.Checksum)
	assert.Empty(t, created.Nodes)

	got, err := svc.GetFlow(ctx, "greet")
	require.NoError(t, err)
	assert.Equal(t, "Greeting", got.Name)
	assert.Equal(t, created.Checksum, got.Checksum)

	cs, err := db.GetChecksum("greet")
	require.NoError(t, err)
	assert.Equal(t, created.Checksum, cs)
	assert.Equal(t, []string{"created:greet"}, rec.events)

	_, err = svc.CreateFlow(ctx, &parser.Document{ID: "greet"})
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
}

func TestCreateFlow_GeneratesID(t *testing.T) {
	svc, _ := newService(t)
	created, err := svc.CreateFlow(context.Background(), &parser.Document{Name: "anon"})
	require.NoError(t, err)
	assert.Len(t, created.ID, 36)
}

func TestCreateFlow_RejectsInvalidGraph(t *testing.T) {
	svc, _ := newService(t)
	doc := &parser.Document{
		ID:    "bad",
		Nodes: []parser.NodeDoc{{ID: "x-1", Type: "bogusNode"}},
	}
	_, err := svc.CreateFlow(context.Background(), doc)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = svc.GetFlow(context.Background(), "bad")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGraphEditing(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	_, err := svc.CreateFlow(ctx, &parser.Document{ID: "f"})
	require.NoError(t, err)

	in, err := svc.AddNode(ctx, "f", flow.TypeChatInput, flow.Position{X: 1})
	require.NoError(t, err)
	assert.Equal(t, "chatInputNode-1", in.ID)
	out, err := svc.AddNode(ctx, "f", flow.TypeChatOutput, flow.Position{X: 200})
	require.NoError(t, err)

	_, err = svc.AddNode(ctx, "f", "bogusNode", flow.Position{})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	pos := flow.Position{X: 5, Y: 6}
	updated, err := svc.UpdateNode(ctx, "f", in.ID, map[string]string{"message": "hello"}, &pos)
	require.NoError(t, err)
	assert.Equal(t, "hello", updated.Data["message"])
	assert.Equal(t, pos, updated.Position)

	_, err = svc.UpdateNode(ctx, "f", in.ID, map[string]string{"colour": "red"}, nil)
	assert.ErrorIs(t, err, apperr.ErrUnknownField)
	_, err = svc.UpdateNode(ctx, "f", "missing", nil, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	e, err := svc.Connect(ctx, "f", in.ID, "output-1", out.ID, "input-1")
	require.NoError(t, err)
	edges, err := svc.EdgesTo(ctx, "f", out.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, in.ID, edges[0].Source)

	_, err = svc.Connect(ctx, "f", in.ID, "output-9", out.ID, "input-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidConnection)

	payload, err := svc.Payload(ctx, "f")
	require.NoError(t, err)
	require.Len(t, payload, 2)
	assert.Equal(t, map[string]string{"message": "hello", "sender": ""}, payload[0].Data)

	row, err := db.GetFlow("f")
	require.NoError(t, err)
	assert.Equal(t, 2, row.NodeCount)
	assert.Equal(t, []string{"chatInputNode", "chatOutputNode"}, row.NodeTypes)

	require.NoError(t, svc.Disconnect(ctx, "f", e.ID))
	edges, err = svc.EdgesTo(ctx, "f", out.ID)
	require.NoError(t, err)
	assert.Empty(t, edges)

	require.NoError(t, svc.RemoveNode(ctx, "f", out.ID))
	assert.ErrorIs(t, svc.RemoveNode(ctx, "f", out.ID), apperr.ErrNotFound)

	next, err := svc.AddNode(ctx, "f", flow.TypeChatInput, flow.Position{})
	require.NoError(t, err)
	assert.NotEqual(t, in.ID, next.ID)
}

func TestAddNode_NeverReusesDeletedID(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.CreateFlow(ctx, &parser.Document{ID: "ids"})
	require.NoError(t, err)

	_, err = svc.AddNode(ctx, "ids", flow.TypeChatInput, flow.Position{})
	require.NoError(t, err)
	last, err := svc.AddNode(ctx, "ids", flow.TypeChatInput, flow.Position{})
	require.NoError(t, err)
	require.Equal(t, "chatInputNode-2", last.ID)
	require.NoError(t, svc.RemoveNode(ctx, "ids", last.ID))

	next, err := svc.AddNode(ctx, "ids", flow.TypeChatInput, flow.Position{})
	require.NoError(t, err)
	assert.Equal(t, "chatInputNode-3", next.ID)

	// A replacement document without next_seq keeps the stored counter.
	got, err := svc.GetFlow(ctx, "ids")
	require.NoError(t, err)
	_, err = svc.UpdateFlow(ctx, "ids", &parser.Document{ID: "ids", Nodes: got.Nodes[:1]}, "")
	require.NoError(t, err)
	after, err := svc.AddNode(ctx, "ids", flow.TypeChatInput, flow.Position{})
	require.NoError(t, err)
	assert.Equal(t, "chatInputNode-4", after.ID)
}

func TestUpdateFlow_IfMatch(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	created, err := svc.CreateFlow(ctx, &parser.Document{ID: "u", Name: "v1"})
	require.NoError(t, err)

	_, err = svc.UpdateFlow(ctx, "u", &parser.Document{Name: "v2"}, `"stale"`)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	updated, err := svc.UpdateFlow(ctx, "u", &parser.Document{Name: "v2"}, `"`+created.Checksum+`"`)
	require.NoError(t, err)
	assert.Equal(t, "v2", updated.Name)
	assert.NotEqual(t, created.Checksum, updated.Checksum)

	_, err = svc.UpdateFlow(ctx, "missing", &parser.Document{}, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteFlow(t *testing.T) {
	rec := &recorder{}
	svc, db := newService(t, WithEvents(rec.record))
	ctx := context.Background()
	_, err := svc.CreateFlow(ctx, &parser.Document{ID: "d"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteFlow(ctx, "d"))
	cs, _ := db.GetChecksum("d")
	assert.Empty(t, cs)
	assert.ErrorIs(t, svc.DeleteFlow(ctx, "d"), apperr.ErrNotFound)
	assert.Equal(t, []string{"created:d", "deleted:d"}, rec.events)
}

func TestListAndSearch(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.CreateFlow(ctx, &parser.Document{ID: "a", Name: "Alpha", Description: "summarize tickets"})
	require.NoError(t, err)
	_, err = svc.CreateFlow(ctx, &parser.Document{ID: "b", Name: "Beta"})
	require.NoError(t, err)
	_, err = svc.AddNode(ctx, "b", flow.TypeModel, flow.Position{})
	require.NoError(t, err)

	items, total, err := svc.ListFlows(ctx, 10, 0, "", "name")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 2)
	assert.Equal(t, "Alpha", items[0].Name)
	assert.NotNil(t, items[0].NodeTypes)

	items, total, err = svc.ListFlows(ctx, 10, 0, string(flow.TypeModel), "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "b", items[0].ID)

	hits, err := svc.Search(ctx, "tickets", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestRun(t *testing.T) {
	fr := &fakeRunner{}
	svc, _ := newService(t, WithRunner(fr))
	ctx := context.Background()
	_, err := svc.CreateFlow(ctx, &parser.Document{ID: "r"})
	require.NoError(t, err)
	_, err = svc.AddNode(ctx, "r", flow.TypeTextOutput, flow.Position{})
	require.NoError(t, err)

	res, err := svc.Run(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)
	require.Len(t, fr.got, 1)
	assert.Equal(t, flow.TypeTextOutput, fr.got[0].Type)

	fr.err = apperr.ErrAuthExpired
	_, err = svc.Run(ctx, "r")
	assert.True(t, apperr.IsRedirect(err))
}

func TestRun_NoBackend(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.CreateFlow(context.Background(), &parser.Document{ID: "n"})
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), "n")
	var cfg *apperr.ConfigError
	assert.ErrorAs(t, err, &cfg)
}

func TestConcurrentAddNode(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.CreateFlow(ctx, &parser.Document{ID: "c"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddNode(ctx, "c", flow.TypePrompt, flow.Position{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := svc.GetFlow(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, got.Nodes, 10)
}
