// Package mcpserver provides an MCP (Model Context Protocol) server that
// lets LLM clients build and inspect flows via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/nodeflow/internal/apperr"
	"github.com/starford/nodeflow/internal/flow"
	"github.com/starford/nodeflow/internal/flowservice"
	"github.com/starford/nodeflow/internal/parser"
)

const flowFormatURI = "nodeflow://flow-format"

// Server wraps the MCP server with the flow tools.
type Server struct {
	mcp *server.MCPServer
	svc *flowservice.Service
}

// New creates a new MCP server with all flow tools registered.
func New(svc *flowservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"nodeflow",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_node_types",
		mcp.WithDescription("List the node types with their fields and handles."),
	), s.listNodeTypes)

	s.mcp.AddTool(mcp.NewTool("list_flows",
		mcp.WithDescription("List saved flows, newest first."),
		mcp.WithString("node_type", mcp.Description("Optional node type; only flows using it are listed")),
	), s.listFlows)

	s.mcp.AddTool(mcp.NewTool("search_flows",
		mcp.WithDescription("Full-text search through flow names, descriptions and node fields."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchFlows)

	s.mcp.AddTool(mcp.NewTool("read_flow",
		mcp.WithDescription("Read a flow document as YAML."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Flow id")),
	), s.readFlow)

	s.mcp.AddTool(mcp.NewTool("create_flow",
		mcp.WithDescription("Create an empty flow. Add nodes with add_node and link them with connect_nodes. "+
			"Read the "+flowFormatURI+" resource for the document format."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
		mcp.WithString("id", mcp.Description("Optional id (letters, digits, '-' and '_'); generated when empty")),
		mcp.WithString("description", mcp.Description("Optional description")),
	), s.createFlow)

	s.mcp.AddTool(mcp.NewTool("add_node",
		mcp.WithDescription("Add a node to a flow. All fields start empty. Returns the node with its id."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow id")),
		mcp.WithString("type", mcp.Required(), mcp.Description("Node type, see list_node_types")),
		mcp.WithNumber("x", mcp.Description("Canvas x position")),
		mcp.WithNumber("y", mcp.Description("Canvas y position")),
	), s.addNode)

	s.mcp.AddTool(mcp.NewTool("set_node_field",
		mcp.WithDescription("Set one data field of a node."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow id")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node id")),
		mcp.WithString("field", mcp.Required(), mcp.Description("Field name of the node type")),
		mcp.WithString("value", mcp.Required(), mcp.Description("New value")),
	), s.setNodeField)

	s.mcp.AddTool(mcp.NewTool("connect_nodes",
		mcp.WithDescription("Connect an output handle of one node to an input handle of another."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow id")),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source node id")),
		mcp.WithString("source_handle", mcp.Required(), mcp.Description("Output handle id, e.g. output-1")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target node id")),
		mcp.WithString("target_handle", mcp.Required(), mcp.Description("Input handle id, e.g. input-1")),
	), s.connectNodes)

	s.mcp.AddTool(mcp.NewTool("get_run_payload",
		mcp.WithDescription("Show the payload a run of this flow would send, as JSON."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow id")),
	), s.getRunPayload)

	// Resource: flow format contract.
	s.mcp.AddResource(
		mcp.NewResource(flowFormatURI, "Flow Format Contract",
			mcp.WithResourceDescription("YAML flow document format and the available node types."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFlowFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError turns a service error into a tool-level error result.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found: " + err.Error())
	case errors.Is(err, apperr.ErrAlreadyExists):
		return mcp.NewToolResultError("already exists: " + err.Error())
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listNodeTypes(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.NodeTypes()), nil
}

func (s *Server) listFlows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, _, err := s.svc.ListFlows(ctx, 200, 0, req.GetString("node_type", ""), "")
	if err != nil {
		return toolError(err), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no flows found"), nil
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("%s\t%s\t%d nodes", it.ID, it.Name, it.NodeCount)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) searchFlows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readFlow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.svc.GetFlow(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	out, err := parser.Encode(&parser.Document{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		Nodes:       f.Nodes,
		Edges:       f.Edges,
	})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createFlow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.svc.CreateFlow(ctx, &parser.Document{
		ID:          req.GetString("id", ""),
		Name:        name,
		Description: req.GetString("description", ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("created: " + f.ID), nil
}

func (s *Server) addNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	flowID, err := req.RequireString("flow_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	typ, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pos := flow.Position{X: req.GetFloat("x", 0), Y: req.GetFloat("y", 0)}
	n, err := s.svc.AddNode(ctx, flowID, flow.NodeType(typ), pos)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(n), nil
}

func (s *Server) setNodeField(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args [4]string
	for i, key := range []string{"flow_id", "node_id", "field", "value"} {
		v, err := req.RequireString(key)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		args[i] = v
	}
	n, err := s.svc.UpdateNode(ctx, args[0], args[1], map[string]string{args[2]: args[3]}, nil)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(n), nil
}

func (s *Server) connectNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args [5]string
	for i, key := range []string{"flow_id", "source", "source_handle", "target", "target_handle"} {
		v, err := req.RequireString(key)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		args[i] = v
	}
	e, err := s.svc.Connect(ctx, args[0], args[1], args[2], args[3], args[4])
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("connected: " + e.ID), nil
}

func (s *Server) getRunPayload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	flowID, err := req.RequireString("flow_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	payload, err := s.svc.Payload(ctx, flowID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"nodes": payload}), nil
}

func (s *Server) readFlowFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      flowFormatURI,
			MIMEType: "text/markdown",
			Text:     FlowFormatContract(),
		},
	}, nil
}
