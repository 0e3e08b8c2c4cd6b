// Package parser reads and writes flow documents, the YAML files a flow is
// saved as, and converts them to and from the in-memory graph.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/nodeflow/internal/apperr"
	"github.com/starford/nodeflow/internal/flow"
)

// Document is the on-disk form of a flow.
type Document struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description,omitempty" json:"description"`
	Nodes       []NodeDoc   `yaml:"nodes" json:"nodes"`
	Edges       []flow.Edge `yaml:"edges" json:"edges"`
	// NextSeq is the node id counter; ids at or below it are never reissued.
	NextSeq int `yaml:"next_seq,omitempty" json:"next_seq,omitempty"`
}

// NodeDoc is one saved node. Data holds every schema field of the node type.
type NodeDoc struct {
	ID       string            `yaml:"id" json:"id"`
	Type     flow.NodeType     `yaml:"type" json:"type"`
	Position flow.Position     `yaml:"position" json:"position"`
	Data     map[string]string `yaml:"data" json:"data"`
}

// Parse decodes a flow document. Unknown keys are rejected so that typos in
// hand-edited files surface instead of being dropped.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parser: empty document: %w", apperr.ErrInvalid)
		}
		return nil, fmt.Errorf("parser: %w: %w", apperr.ErrInvalid, err)
	}
	return &doc, nil
}

// Encode renders doc as YAML with two-space indentation.
func Encode(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("parser: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("parser: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Graph rebuilds the editable graph. Node types, data fields and edge
// endpoints are all validated; any mismatch is apperr.ErrInvalid.
func (d *Document) Graph() (*flow.Graph, error) {
	g := flow.NewGraph()
	for _, n := range d.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("parser: node without id: %w", apperr.ErrInvalid)
		}
		data, err := flow.DataFromFields(n.Type, n.Data)
		if err != nil {
			return nil, fmt.Errorf("parser: node %q: %w: %w", n.ID, apperr.ErrInvalid, err)
		}
		if _, err := g.Restore(n.ID, n.Position, data); err != nil {
			return nil, fmt.Errorf("parser: %w: %w", apperr.ErrInvalid, err)
		}
	}
	for _, e := range d.Edges {
		if _, err := g.Connect(e.Source, e.SourceHandle, e.Target, e.TargetHandle); err != nil {
			return nil, fmt.Errorf("parser: edge %q: %w: %w", e.ID, apperr.ErrInvalid, err)
		}
	}
	g.SeedSeq(d.NextSeq)
	return g, nil
}

// FromGraph snapshots g into a document carrying the given metadata.
func FromGraph(id, name, description string, g *flow.Graph) *Document {
	doc := &Document{
		ID:          id,
		Name:        name,
		Description: description,
		Nodes:       []NodeDoc{},
		Edges:       g.Edges(),
		NextSeq:     g.Seq(),
	}
	for _, n := range g.Nodes() {
		doc.Nodes = append(doc.Nodes, NodeDoc{
			ID:       n.ID,
			Type:     n.Type,
			Position: n.Position,
			Data:     n.Data.Fields(),
		})
	}
	return doc
}

// NodeTypes returns the distinct node types used, sorted.
func (d *Document) NodeTypes() []string {
	seen := make(map[string]struct{})
	for _, n := range d.Nodes {
		seen[string(n.Type)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// SearchText is the text indexed for full-text search: the description and
// every non-empty field value, skipping API keys.
func (d *Document) SearchText() string {
	var parts []string
	if d.Description != "" {
		parts = append(parts, d.Description)
	}
	for _, n := range d.Nodes {
		keys := make([]string, 0, len(n.Data))
		for k := range n.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "apiKey" || n.Data[k] == "" {
				continue
			}
			parts = append(parts, n.Data[k])
		}
	}
	return strings.Join(parts, "\n")
}
