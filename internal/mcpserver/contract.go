package mcpserver

import (
	"strings"

	"github.com/starford/nodeflow/internal/flow"
)

// flowFormatHeader is the fixed part of the flow format contract. The node
// type table is appended from the registry by FlowFormatContract.
const flowFormatHeader = `# Flow Document Format

Every flow is one YAML file in the flows directory. The file name without
` + "`.yaml`" + ` is the flow id.

## Structure

` + "```" + `yaml
id: support-triage            # same as the file name
name: Support triage          # REQUIRED, shown in listings
description: Route tickets    # OPTIONAL, included in search
nodes:
  - id: chatInputNode-1       # <type>-<n>, unique within the flow
    type: chatInputNode
    position: {x: 0, y: 0}
    data:                     # every field of the node type, strings only
      message: ""
      sender: ""
edges:
  - id: edge__chatInputNode-1output-1-modelNode-2input-input
    source: chatInputNode-1
    sourceHandle: output-1
    target: modelNode-2
    targetHandle: input-input
next_seq: 2                   # node id counter, maintained by the tools
` + "```" + `

## Rules

1. Prefer the tools (` + "`add_node`, `set_node_field`, `connect_nodes`" + `) over
   writing YAML by hand. They assign ids and keep data complete.
2. ` + "`data`" + ` keys must be fields of the node type. Unknown keys are rejected.
3. Edges go from an output handle to an input handle of an existing node.
   Cycles are allowed. Handle kinds are not checked.
4. The run payload is every node as ` + "`{id, type, data}`" + ` in file order;
   edges are not sent.
5. Never store real API keys in shared flows; ` + "`apiKey`" + ` is excluded from search
   but is written to disk as-is.

## Node types
`

// FlowFormatContract describes the flow document format and the node types
// LLM consumers can use.
func FlowFormatContract() string {
	var b strings.Builder
	b.WriteString(flowFormatHeader)
	for _, t := range flow.Templates() {
		b.WriteString("\n### " + string(t.Type) + " (" + t.Label + ")\n\n")
		if t.Description != "" {
			b.WriteString(t.Description + "\n\n")
		}
		b.WriteString("- fields: ")
		names := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			names[i] = "`" + f.Name + "`"
		}
		b.WriteString(strings.Join(names, ", ") + "\n")
		b.WriteString("- inputs: " + handleList(t.Inputs) + "\n")
		b.WriteString("- outputs: " + handleList(t.Outputs) + "\n")
	}
	return b.String()
}

func handleList(hs []flow.Handle) string {
	if len(hs) == 0 {
		return "none"
	}
	ids := make([]string, len(hs))
	for i, h := range hs {
		ids[i] = "`" + h.ID + "`"
	}
	return strings.Join(ids, ", ")
}
