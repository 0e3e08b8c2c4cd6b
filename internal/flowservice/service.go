// Package flowservice coordinates flow documents on disk, the index and the
// run backend. It is the single owner of graph mutations: every edit loads
// the document, applies the change to a flow.Graph and saves it back.
package flowservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/nodeflow/internal/apperr"
	"github.com/starford/nodeflow/internal/checksum"
	"github.com/starford/nodeflow/internal/flow"
	"github.com/starford/nodeflow/internal/index"
	"github.com/starford/nodeflow/internal/parser"
	"github.com/starford/nodeflow/internal/runner"
	"github.com/starford/nodeflow/internal/storage"
)

// FlowDetail is the full representation of a flow.
type FlowDetail struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Checksum    string           `json:"checksum"`
	Nodes       []parser.NodeDoc `json:"nodes"`
	Edges       []flow.Edge      `json:"edges"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// FlowListItem is a lightweight item in a list response.
type FlowListItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Checksum    string    `json:"checksum"`
	NodeTypes   []string  `json:"node_types"`
	NodeCount   int       `json:"node_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Runner submits run payloads.
type Runner interface {
	Run(ctx context.Context, payload []flow.RunNode) (*runner.Result, error)
}

// EventFunc is told about every flow the service creates, updates or deletes.
type EventFunc func(kind, id string)

// Service coordinates storage, index and run operations.
type Service struct {
	store  storage.Provider
	db     index.FlowIndex
	runner Runner
	logger *slog.Logger
	notify EventFunc

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithRunner sets the backend used by Run.
func WithRunner(r Runner) Option {
	return func(s *Service) { s.runner = r }
}

// WithEvents registers fn to be called after each change.
func WithEvents(fn EventFunc) Option {
	return func(s *Service) { s.notify = fn }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new flow service.
func NewService(store storage.Provider, db index.FlowIndex, opts ...Option) *Service {
	s := &Service{
		store:  store,
		db:     db,
		logger: slog.Default(),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// lock serializes mutations of one flow and returns the unlock func.
func (s *Service) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// ListFlows returns paginated flows, optionally only those using nodeType.
func (s *Service) ListFlows(_ context.Context, limit, offset int, nodeType, sort string) ([]FlowListItem, int, error) {
	rows, total, err := s.db.ListFlows(limit, offset, nodeType, sort)
	if err != nil {
		return nil, 0, err
	}
	items := make([]FlowListItem, len(rows))
	for i, r := range rows {
		items[i] = FlowListItem{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Checksum:    r.Checksum,
			NodeTypes:   nonNilSlice(r.NodeTypes),
			NodeCount:   r.NodeCount,
			UpdatedAt:   r.UpdatedAt,
		}
	}
	return items, total, nil
}

// GetFlow reads a flow document and returns it with its checksum.
func (s *Service) GetFlow(_ context.Context, id string) (*FlowDetail, error) {
	doc, data, err := s.load(id)
	if err != nil {
		return nil, err
	}
	var updated time.Time
	if row, err := s.db.GetFlow(id); err == nil {
		updated = row.UpdatedAt
	}
	return detail(id, doc, data, updated), nil
}

// CreateFlow saves a new flow. An empty doc.ID gets a random one. The
// document is validated and normalized before it is written.
func (s *Service) CreateFlow(_ context.Context, doc *parser.Document) (*FlowDetail, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	unlock := s.lock(doc.ID)
	defer unlock()

	if _, err := s.store.Read(storage.FileName(doc.ID)); err == nil {
		return nil, fmt.Errorf("flowservice: flow %q: %w", doc.ID, apperr.ErrAlreadyExists)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	g, err := doc.Graph()
	if err != nil {
		return nil, err
	}
	out, err := s.save(doc.ID, doc.Name, doc.Description, g)
	if err != nil {
		return nil, err
	}
	s.emit(index.EventCreated, doc.ID)
	return out, nil
}

// UpdateFlow replaces a flow document. A non-empty ifMatch must match the
// current checksum or apperr.ErrConflict is returned.
func (s *Service) UpdateFlow(_ context.Context, id string, doc *parser.Document, ifMatch string) (*FlowDetail, error) {
	unlock := s.lock(id)
	defer unlock()

	prev, existing, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if !checksum.Matches(ifMatch, existing) {
		return nil, fmt.Errorf("flowservice: flow %q: %w", id, apperr.ErrConflict)
	}
	g, err := doc.Graph()
	if err != nil {
		return nil, err
	}
	g.SeedSeq(prev.NextSeq)
	out, err := s.save(id, doc.Name, doc.Description, g)
	if err != nil {
		return nil, err
	}
	s.emit(index.EventUpdated, id)
	return out, nil
}

// DeleteFlow removes a flow from storage and index.
func (s *Service) DeleteFlow(_ context.Context, id string) error {
	unlock := s.lock(id)
	defer unlock()

	if err := s.store.Delete(storage.FileName(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("flowservice: flow %q: %w", id, apperr.ErrNotFound)
		}
		return err
	}
	if err := s.db.DeleteFlow(id); err != nil {
		return err
	}
	s.emit(index.EventDeleted, id)
	return nil
}

// AddNode appends a node of type t. Unknown types are apperr.ErrInvalid.
func (s *Service) AddNode(_ context.Context, id string, t flow.NodeType, pos flow.Position) (*parser.NodeDoc, error) {
	if _, ok := flow.Lookup(t); !ok {
		return nil, fmt.Errorf("flowservice: unknown node type %q: %w", t, apperr.ErrInvalid)
	}
	var added *flow.Node
	_, err := s.mutate(id, func(g *flow.Graph) error {
		added = g.AddNode(t, pos)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodeDoc(added), nil
}

// UpdateNode sets the given fields and, when pos is non-nil, moves the node.
// Either every change applies or none does.
func (s *Service) UpdateNode(_ context.Context, id, nodeID string, fields map[string]string, pos *flow.Position) (*parser.NodeDoc, error) {
	var node *flow.Node
	_, err := s.mutate(id, func(g *flow.Graph) error {
		for name, value := range fields {
			if err := g.UpdateNodeField(nodeID, name, value); err != nil {
				return err
			}
		}
		if pos != nil {
			if err := g.MoveNode(nodeID, *pos); err != nil {
				return err
			}
		}
		n, ok := g.Node(nodeID)
		if !ok {
			return fmt.Errorf("flowservice: node %q: %w", nodeID, apperr.ErrNotFound)
		}
		node = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodeDoc(node), nil
}

// RemoveNode deletes a node and its edges.
func (s *Service) RemoveNode(_ context.Context, id, nodeID string) error {
	_, err := s.mutate(id, func(g *flow.Graph) error {
		return g.RemoveNode(nodeID)
	})
	return err
}

// Connect adds an edge between two handles.
func (s *Service) Connect(_ context.Context, id, source, sourceHandle, target, targetHandle string) (flow.Edge, error) {
	var e flow.Edge
	_, err := s.mutate(id, func(g *flow.Graph) error {
		var err error
		e, err = g.Connect(source, sourceHandle, target, targetHandle)
		return err
	})
	return e, err
}

// Disconnect removes an edge.
func (s *Service) Disconnect(_ context.Context, id, edgeID string) error {
	_, err := s.mutate(id, func(g *flow.Graph) error {
		return g.Disconnect(edgeID)
	})
	return err
}

// EdgesTo returns the edges ending at target.
func (s *Service) EdgesTo(_ context.Context, id, target string) ([]flow.Edge, error) {
	g, err := s.graph(id)
	if err != nil {
		return nil, err
	}
	if _, ok := g.Node(target); !ok {
		return nil, fmt.Errorf("flowservice: node %q: %w", target, apperr.ErrNotFound)
	}
	return nonNilSlice(g.EdgesTo(target)), nil
}

// Payload returns the run payload of a flow.
func (s *Service) Payload(_ context.Context, id string) ([]flow.RunNode, error) {
	g, err := s.graph(id)
	if err != nil {
		return nil, err
	}
	return g.CollectRunPayload(), nil
}

// Run submits the flow's payload to the run backend.
func (s *Service) Run(ctx context.Context, id string) (*runner.Result, error) {
	if s.runner == nil {
		return nil, &apperr.ConfigError{What: "no run backend configured"}
	}
	payload, err := s.Payload(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("flowservice: run", slog.String("flow", id), slog.Int("nodes", len(payload)))
	return s.runner.Run(ctx, payload)
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	res, err := s.db.Search(query, limit)
	return nonNilSlice(res), err
}

// NodeTypes returns the node type registry.
func (s *Service) NodeTypes() []*flow.Template {
	return flow.Templates()
}

// load reads and parses a flow document.
func (s *Service) load(id string) (*parser.Document, []byte, error) {
	data, err := s.store.Read(storage.FileName(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("flowservice: flow %q: %w", id, apperr.ErrNotFound)
		}
		return nil, nil, err
	}
	doc, err := parser.Parse(data)
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}

func (s *Service) graph(id string) (*flow.Graph, error) {
	doc, _, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return doc.Graph()
}

// mutate applies fn to the flow's graph under the flow lock and saves the
// result. Nothing is written when fn fails.
func (s *Service) mutate(id string, fn func(g *flow.Graph) error) (*FlowDetail, error) {
	unlock := s.lock(id)
	defer unlock()

	doc, _, err := s.load(id)
	if err != nil {
		return nil, err
	}
	g, err := doc.Graph()
	if err != nil {
		return nil, err
	}
	if err := fn(g); err != nil {
		return nil, err
	}
	out, err := s.save(id, doc.Name, doc.Description, g)
	if err != nil {
		return nil, err
	}
	s.emit(index.EventUpdated, id)
	return out, nil
}

// save writes g as the flow document and re-indexes it.
func (s *Service) save(id, name, description string, g *flow.Graph) (*FlowDetail, error) {
	doc := parser.FromGraph(id, name, description, g)
	data, err := parser.Encode(doc)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(storage.FileName(id), data); err != nil {
		return nil, err
	}
	now := time.Now()
	if err := index.IndexFile(s.db, id, data, now); err != nil {
		return nil, err
	}
	return detail(id, doc, data, now), nil
}

func (s *Service) emit(kind, id string) {
	if s.notify != nil {
		s.notify(kind, id)
	}
}

func detail(id string, doc *parser.Document, data []byte, updated time.Time) *FlowDetail {
	return &FlowDetail{
		ID:          id,
		Name:        doc.Name,
		Description: doc.Description,
		Checksum:    checksum.Sum(data),
		Nodes:       nonNilSlice(doc.Nodes),
		Edges:       nonNilSlice(doc.Edges),
		UpdatedAt:   updated,
	}
}

func nodeDoc(n *flow.Node) *parser.NodeDoc {
	return &parser.NodeDoc{ID: n.ID, Type: n.Type, Position: n.Position, Data: n.Data.Fields()}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
