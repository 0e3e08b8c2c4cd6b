package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/nodeflow/internal/apperr"
)

func TestAddNode_UniqueIDs(t *testing.T) {
	g := NewGraph()
	seen := make(map[string]bool)
	types := []NodeType{TypeChatInput, TypePrompt, TypeModel, TypeChatOutput, TypeTextOutput}
	for i := 0; i < 50; i++ {
		n := g.AddNode(types[i%len(types)], Position{X: float64(i)})
		require.False(t, seen[n.ID], "duplicate id %s", n.ID)
		seen[n.ID] = true
	}
	assert.Len(t, g.Nodes(), 50)
}

func TestAddNode_SkipsRestoredIDs(t *testing.T) {
	g := NewGraph()
	_, err := g.Restore("chatInputNode-1", Position{}, &ChatInputData{Message: "hi"})
	require.NoError(t, err)

	n := g.AddNode(TypeChatInput, Position{})
	assert.Equal(t, "chatInputNode-2", n.ID)

	_, err = g.Restore("chatInputNode-2", Position{}, &ChatInputData{})
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
}

func TestSeedSeq(t *testing.T) {
	g := NewGraph()
	_, err := g.Restore("modelNode-7", Position{}, &ModelData{})
	require.NoError(t, err)
	assert.Equal(t, 7, g.Seq())

	g.SeedSeq(3)
	assert.Equal(t, 7, g.Seq(), "seed must never lower the counter")
	g.SeedSeq(12)
	assert.Equal(t, "promptNode-13", g.AddNode(TypePrompt, Position{}).ID)
	assert.Equal(t, 13, g.Seq())
}

func TestAddNode_UnknownTypePanics(t *testing.T) {
	g := NewGraph()
	assert.PanicsWithError(t, "config error: unknown node type bogusNode", func() {
		g.AddNode("bogusNode", Position{})
	})
	assert.Empty(t, g.Nodes())
}

func TestCollectRunPayload_EmptyInitialized(t *testing.T) {
	g := NewGraph()
	g.AddNode(TypeChatInput, Position{})
	g.AddNode(TypeModel, Position{})
	g.AddNode(TypeTextOutput, Position{})

	payload := g.CollectRunPayload()
	require.Len(t, payload, 3)
	for _, rn := range payload {
		tpl := MustLookup(rn.Type)
		require.Len(t, rn.Data, len(tpl.Fields), "node %s", rn.ID)
		for _, f := range tpl.Fields {
			v, ok := rn.Data[f.Name]
			assert.True(t, ok, "%s missing field %s", rn.ID, f.Name)
			assert.Empty(t, v)
		}
	}
	assert.Equal(t, TypeChatInput, payload[0].Type)
	assert.Equal(t, TypeModel, payload[1].Type)
	assert.Equal(t, TypeTextOutput, payload[2].Type)
}

func TestUpdateNodeField(t *testing.T) {
	g := NewGraph()
	n := g.AddNode(TypeChatInput, Position{})

	require.NoError(t, g.UpdateNodeField(n.ID, "message", "hello"))

	payload := g.CollectRunPayload()
	require.Len(t, payload, 1)
	assert.Equal(t, map[string]string{"message": "hello", "sender": ""}, payload[0].Data)
}

func TestUpdateNodeField_Errors(t *testing.T) {
	g := NewGraph()
	n := g.AddNode(TypeTextOutput, Position{})

	assert.ErrorIs(t, g.UpdateNodeField("missing", "input", "x"), apperr.ErrNotFound)
	assert.ErrorIs(t, g.UpdateNodeField(n.ID, "message", "x"), apperr.ErrUnknownField)
	assert.Equal(t, "", n.Data.Fields()["input"])
}

func TestConnect_EdgesTo(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(TypeChatInput, Position{})
	b := g.AddNode(TypeChatOutput, Position{X: 200})
	require.NoError(t, g.UpdateNodeField(a.ID, "message", "hi"))
	before := g.CollectRunPayload()

	e, err := g.Connect(a.ID, "output-1", b.ID, "input-1")
	require.NoError(t, err)

	in := g.EdgesTo(b.ID)
	require.Len(t, in, 1)
	assert.Equal(t, a.ID, in[0].Source)
	assert.Equal(t, "output-1", in[0].SourceHandle)
	assert.Equal(t, e, in[0])
	assert.Equal(t, []Edge{e}, g.EdgesFrom(a.ID))
	assert.Empty(t, g.EdgesTo(a.ID))
	assert.Equal(t, before, g.CollectRunPayload(), "connecting must not touch node data")
}

func TestConnect_Validation(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(TypeChatInput, Position{})
	b := g.AddNode(TypePrompt, Position{})

	_, err := g.Connect("nope", "output-1", b.ID, "input-template")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = g.Connect(a.ID, "output-1", "nope", "input-template")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = g.Connect(a.ID, "output-9", b.ID, "input-template")
	assert.ErrorIs(t, err, apperr.ErrInvalidConnection)
	_, err = g.Connect(a.ID, "output-1", b.ID, "output-text")
	assert.ErrorIs(t, err, apperr.ErrInvalidConnection)
	assert.Empty(t, g.Edges())
}

func TestConnect_FanOutAndDuplicates(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(TypeChatInput, Position{})
	b := g.AddNode(TypePrompt, Position{})

	_, err := g.Connect(a.ID, "output-1", b.ID, "input-template")
	require.NoError(t, err)
	_, err = g.Connect(a.ID, "output-1", b.ID, "input-user_input")
	require.NoError(t, err)
	_, err = g.Connect(a.ID, "output-1", b.ID, "input-template")
	require.NoError(t, err)

	assert.Len(t, g.EdgesFrom(a.ID), 2)
}

func TestConnect_CyclesAllowed(t *testing.T) {
	g := NewGraph()
	p := g.AddNode(TypePrompt, Position{})
	m := g.AddNode(TypeModel, Position{})

	_, err := g.Connect(p.ID, "output-text", m.ID, "input-input")
	require.NoError(t, err)
	_, err = g.Connect(m.ID, "output-1", p.ID, "input-template")
	require.NoError(t, err)
	assert.Len(t, g.Edges(), 2)
}

func TestRemoveNode_DropsEdges(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(TypeChatInput, Position{})
	b := g.AddNode(TypeChatOutput, Position{})
	c := g.AddNode(TypeTextOutput, Position{})
	_, err := g.Connect(a.ID, "output-1", b.ID, "input-1")
	require.NoError(t, err)
	_, err = g.Connect(a.ID, "output-1", c.ID, "input-1")
	require.NoError(t, err)

	require.NoError(t, g.RemoveNode(b.ID))
	_, ok := g.Node(b.ID)
	assert.False(t, ok)
	assert.Len(t, g.Nodes(), 2)
	require.Len(t, g.Edges(), 1)
	assert.Equal(t, c.ID, g.Edges()[0].Target)
	assert.ErrorIs(t, g.RemoveNode(b.ID), apperr.ErrNotFound)
}

func TestDisconnectAndMove(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(TypeChatInput, Position{})
	b := g.AddNode(TypeTextOutput, Position{})
	e, err := g.Connect(a.ID, "output-1", b.ID, "input-1")
	require.NoError(t, err)

	require.NoError(t, g.Disconnect(e.ID))
	assert.Empty(t, g.Edges())
	assert.ErrorIs(t, g.Disconnect(e.ID), apperr.ErrNotFound)

	require.NoError(t, g.MoveNode(a.ID, Position{X: 10, Y: 20}))
	assert.Equal(t, Position{X: 10, Y: 20}, a.Position)
	assert.ErrorIs(t, g.MoveNode("nope", Position{}), apperr.ErrNotFound)
}
