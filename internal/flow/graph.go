package flow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/nodeflow/internal/apperr"
)

// Position is a node's canvas location.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is one processing step of a flow.
type Node struct {
	ID       string
	Type     NodeType
	Position Position
	Data     Data
}

// Template returns the schema the node was created from.
func (n *Node) Template() *Template {
	return MustLookup(n.Type)
}

// Edge connects an output handle of Source to an input handle of Target.
type Edge struct {
	ID           string `json:"id" yaml:"id"`
	Source       string `json:"source" yaml:"source"`
	SourceHandle string `json:"sourceHandle" yaml:"sourceHandle"`
	Target       string `json:"target" yaml:"target"`
	TargetHandle string `json:"targetHandle" yaml:"targetHandle"`
}

// EdgeID derives the id of the edge between two handles.
func EdgeID(source, sourceHandle, target, targetHandle string) string {
	return "edge__" + source + sourceHandle + "-" + target + targetHandle
}

// RunNode is one element of the run payload.
type RunNode struct {
	ID   string            `json:"id"`
	Type NodeType          `json:"type"`
	Data map[string]string `json:"data"`
}

// Graph is an editable set of nodes and edges. It is not safe for concurrent
// use; callers serialize access.
type Graph struct {
	nodes []*Node
	byID  map[string]*Node
	edges []Edge
	seq   int
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{byID: make(map[string]*Node)}
}

// AddNode appends a node of type t with every schema field empty.
// t must be registered; use Lookup to validate untrusted input first.
func (g *Graph) AddNode(t NodeType, pos Position) *Node {
	MustLookup(t)
	data, _ := NewData(t)
	n := &Node{ID: g.nextID(t), Type: t, Position: pos, Data: data}
	g.insert(n)
	return n
}

// Restore inserts a node with a known id and data, as read from a saved
// document. Later AddNode calls never reuse the id.
func (g *Graph) Restore(id string, pos Position, data Data) (*Node, error) {
	if _, dup := g.byID[id]; dup {
		return nil, fmt.Errorf("flow: node %q: %w", id, apperr.ErrAlreadyExists)
	}
	n := &Node{ID: id, Type: data.Type(), Position: pos, Data: data}
	g.insert(n)
	if suffix, ok := strings.CutPrefix(id, string(n.Type)+"-"); ok {
		if k, err := strconv.Atoi(suffix); err == nil {
			g.SeedSeq(k)
		}
	}
	return n, nil
}

// Seq is the highest node counter handed out so far. Persist it with the
// graph so ids of deleted nodes are not issued again after a reload.
func (g *Graph) Seq() int { return g.seq }

// SeedSeq raises the node counter to at least n.
func (g *Graph) SeedSeq(n int) {
	if n > g.seq {
		g.seq = n
	}
}

func (g *Graph) insert(n *Node) {
	g.nodes = append(g.nodes, n)
	g.byID[n.ID] = n
}

func (g *Graph) nextID(t NodeType) string {
	for {
		g.seq++
		id := string(t) + "-" + strconv.Itoa(g.seq)
		if _, taken := g.byID[id]; !taken {
			return id
		}
	}
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns the edges in creation order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// UpdateNodeField sets one field of one node.
func (g *Graph) UpdateNodeField(id, field, value string) error {
	n, ok := g.byID[id]
	if !ok {
		return fmt.Errorf("flow: node %q: %w", id, apperr.ErrNotFound)
	}
	return n.Data.SetField(field, value)
}

// MoveNode changes a node's position.
func (g *Graph) MoveNode(id string, pos Position) error {
	n, ok := g.byID[id]
	if !ok {
		return fmt.Errorf("flow: node %q: %w", id, apperr.ErrNotFound)
	}
	n.Position = pos
	return nil
}

// RemoveNode deletes a node and every edge touching it.
func (g *Graph) RemoveNode(id string) error {
	if _, ok := g.byID[id]; !ok {
		return fmt.Errorf("flow: node %q: %w", id, apperr.ErrNotFound)
	}
	delete(g.byID, id)
	for i, n := range g.nodes {
		if n.ID == id {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			break
		}
	}
	kept := g.edges[:0]
	for _, e := range g.edges {
		if e.Source != id && e.Target != id {
			kept = append(kept, e)
		}
	}
	g.edges = kept
	return nil
}

// Connect adds an edge from an output handle to an input handle. Both nodes
// and both handles must exist. Handle kinds and cycles are not checked.
// Connecting the same pair of handles twice returns the existing edge.
func (g *Graph) Connect(source, sourceHandle, target, targetHandle string) (Edge, error) {
	src, ok := g.byID[source]
	if !ok {
		return Edge{}, fmt.Errorf("flow: connect: source %q: %w", source, apperr.ErrNotFound)
	}
	dst, ok := g.byID[target]
	if !ok {
		return Edge{}, fmt.Errorf("flow: connect: target %q: %w", target, apperr.ErrNotFound)
	}
	if _, ok := src.Template().Output(sourceHandle); !ok {
		return Edge{}, fmt.Errorf("flow: connect: %s has no output %q: %w",
			src.Type, sourceHandle, apperr.ErrInvalidConnection)
	}
	if _, ok := dst.Template().Input(targetHandle); !ok {
		return Edge{}, fmt.Errorf("flow: connect: %s has no input %q: %w",
			dst.Type, targetHandle, apperr.ErrInvalidConnection)
	}

	e := Edge{
		ID:           EdgeID(source, sourceHandle, target, targetHandle),
		Source:       source,
		SourceHandle: sourceHandle,
		Target:       target,
		TargetHandle: targetHandle,
	}
	for _, existing := range g.edges {
		if existing.ID == e.ID {
			return existing, nil
		}
	}
	g.edges = append(g.edges, e)
	return e, nil
}

// Disconnect removes the edge with the given id.
func (g *Graph) Disconnect(edgeID string) error {
	for i, e := range g.edges {
		if e.ID == edgeID {
			g.edges = append(g.edges[:i], g.edges[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("flow: edge %q: %w", edgeID, apperr.ErrNotFound)
}

// EdgesTo returns the edges whose target is id.
func (g *Graph) EdgesTo(id string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Target == id {
			out = append(out, e)
		}
	}
	return out
}

// EdgesFrom returns the edges whose source is id.
func (g *Graph) EdgesFrom(id string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// CollectRunPayload flattens the nodes, in insertion order, into what the
// run endpoint expects. Edges are not part of the payload.
func (g *Graph) CollectRunPayload() []RunNode {
	out := make([]RunNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, RunNode{ID: n.ID, Type: n.Type, Data: n.Data.Fields()})
	}
	return out
}
