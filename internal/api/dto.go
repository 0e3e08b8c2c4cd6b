package api

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/nodeflow/internal/flow"
	"github.com/starford/nodeflow/internal/flowservice"
	"github.com/starford/nodeflow/internal/index"
	"github.com/starford/nodeflow/internal/parser"
	"github.com/starford/nodeflow/internal/runner"
	"github.com/starford/nodeflow/internal/session"
)

// flowIDPattern keeps ids usable as file names.
var flowIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// CreateFlowRequest is the request body for creating a flow. Nodes and
// edges are optional; an empty id gets a generated one.
type CreateFlowRequest struct {
	ID          string           `json:"id" example:"support-triage"`
	Name        string           `json:"name" example:"Support triage" validate:"required"`
	Description string           `json:"description"`
	Nodes       []parser.NodeDoc `json:"nodes"`
	Edges       []flow.Edge      `json:"edges"`
}

// Validate implements validation.Validatable.
func (r CreateFlowRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Length(1, 64), validation.Match(flowIDPattern)),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
	)
}

func (r CreateFlowRequest) document() *parser.Document {
	return &parser.Document{ID: r.ID, Name: r.Name, Description: r.Description, Nodes: r.Nodes, Edges: r.Edges}
}

// UpdateFlowRequest replaces a whole flow document.
type UpdateFlowRequest struct {
	Name        string           `json:"name" validate:"required"`
	Description string           `json:"description"`
	Nodes       []parser.NodeDoc `json:"nodes"`
	Edges       []flow.Edge      `json:"edges"`
}

// Validate implements validation.Validatable.
func (r UpdateFlowRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
	)
}

func (r UpdateFlowRequest) document() *parser.Document {
	return &parser.Document{Name: r.Name, Description: r.Description, Nodes: r.Nodes, Edges: r.Edges}
}

// AddNodeRequest adds one node of a registered type.
type AddNodeRequest struct {
	Type     string        `json:"type" example:"promptNode" validate:"required"`
	Position flow.Position `json:"position"`
}

// Validate implements validation.Validatable.
func (r AddNodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Type, validation.Required, validation.In(knownTypes()...)),
	)
}

func knownTypes() []any {
	tpls := flow.Templates()
	out := make([]any, len(tpls))
	for i, t := range tpls {
		out[i] = string(t.Type)
	}
	return out
}

// UpdateNodeRequest changes fields, position, or both.
type UpdateNodeRequest struct {
	Fields   map[string]string `json:"fields"`
	Position *flow.Position    `json:"position"`
}

// Validate implements validation.Validatable.
func (r UpdateNodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Fields, validation.Required.When(r.Position == nil).Error("fields or position is required")),
	)
}

// ConnectRequest links an output handle to an input handle.
type ConnectRequest struct {
	Source       string `json:"source" validate:"required"`
	SourceHandle string `json:"sourceHandle" example:"output-1" validate:"required"`
	Target       string `json:"target" validate:"required"`
	TargetHandle string `json:"targetHandle" example:"input-1" validate:"required"`
}

// Validate implements validation.Validatable.
func (r ConnectRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Source, validation.Required),
		validation.Field(&r.SourceHandle, validation.Required),
		validation.Field(&r.Target, validation.Required),
		validation.Field(&r.TargetHandle, validation.Required),
	)
}

// FlowDetail is the full flow response type (aliased from the domain layer).
type FlowDetail = flowservice.FlowDetail

// FlowListItem is a lightweight item in a list response (aliased from the domain layer).
type FlowListItem = flowservice.FlowListItem

// FlowListResponse wraps paginated flow listings.
type FlowListResponse struct {
	Flows []FlowListItem `json:"flows" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// EdgesResponse lists edges.
type EdgesResponse struct {
	Edges []flow.Edge `json:"edges" validate:"required"`
}

// PayloadResponse is the run payload of a flow.
type PayloadResponse struct {
	Nodes []flow.RunNode `json:"nodes" validate:"required"`
}

// RunResponse is the backend's answer to a run.
type RunResponse = runner.Result

// NodeTypesResponse lists the node type registry.
type NodeTypesResponse struct {
	NodeTypes []*flow.Template `json:"node_types" validate:"required"`
}

// SessionResponse reports the backend session status.
type SessionResponse struct {
	Status session.Status `json:"status" example:"authenticated" validate:"required"`
}
