// Package flow holds the node-graph model behind the flow editor: the static
// node type registry, typed node data, the graph of nodes and edges, and the
// flat run payload sent to the backend.
package flow

import (
	"sort"

	"github.com/starford/nodeflow/internal/apperr"
)

// NodeType names one of the known node kinds.
type NodeType string

// Known node types. The string values are what the backend expects.
const (
	TypeChatInput  NodeType = "chatInputNode"
	TypePrompt     NodeType = "promptNode"
	TypeModel      NodeType = "modelNode"
	TypeChatOutput NodeType = "chatOutputNode"
	TypeTextOutput NodeType = "textOutputNode"
)

// Field describes one editable input of a node.
type Field struct {
	Name        string `json:"name" yaml:"name"`
	Label       string `json:"label" yaml:"label"`
	Kind        string `json:"type" yaml:"type"` // "text" or "number"
	Placeholder string `json:"placeholder" yaml:"placeholder"`
}

// HandleDirection says whether a handle accepts or emits connections.
type HandleDirection string

const (
	HandleTarget HandleDirection = "target"
	HandleSource HandleDirection = "source"
)

// Handle is a named connection point. FieldName binds an input handle to a
// data field and may be empty.
type Handle struct {
	ID        string          `json:"id" yaml:"id"`
	Direction HandleDirection `json:"type" yaml:"type"`
	FieldName string          `json:"fieldName" yaml:"fieldName"`
}

// Template is the read-only schema every node of a type is created from.
type Template struct {
	Type        NodeType `json:"type"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Fields      []Field  `json:"fields"`
	Inputs      []Handle `json:"inputs"`
	Outputs     []Handle `json:"outputs"`
}

// HasField reports whether name is a declared field.
func (t *Template) HasField(name string) bool {
	for _, f := range t.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Input returns the input handle with the given id.
func (t *Template) Input(id string) (Handle, bool) {
	for _, h := range t.Inputs {
		if h.ID == id {
			return h, true
		}
	}
	return Handle{}, false
}

// Output returns the output handle with the given id.
func (t *Template) Output(id string) (Handle, bool) {
	for _, h := range t.Outputs {
		if h.ID == id {
			return h, true
		}
	}
	return Handle{}, false
}

func text(name, label, placeholder string) Field {
	return Field{Name: name, Label: label, Kind: "text", Placeholder: placeholder}
}

func in(id, field string) Handle { return Handle{ID: id, Direction: HandleTarget, FieldName: field} }
func out(id string) Handle       { return Handle{ID: id, Direction: HandleSource} }

var registry = map[NodeType]*Template{
	TypeChatInput: {
		Type:  TypeChatInput,
		Label: "Chat Input",
		Fields: []Field{
			text("message", "Message", "Type your message here"),
			text("sender", "Sender Name", "User"),
		},
		Outputs: []Handle{out("output-1")},
	},
	TypePrompt: {
		Type:        TypePrompt,
		Label:       "Prompt",
		Description: "Create a prompt template.",
		Fields: []Field{
			text("template", "Template", "Enter your template"),
			text("user_input", "User Input", "Enter user input"),
		},
		Inputs:  []Handle{in("input-template", "template"), in("input-user_input", "user_input")},
		Outputs: []Handle{out("output-text")},
	},
	TypeModel: {
		Type:        TypeModel,
		Label:       "Model",
		Description: "Generates text using LLM.",
		Fields: []Field{
			text("modelName", "Model Name", "llama-3"),
			text("input", "Input", "Type something..."),
			text("apiKey", "API Key", "Enter your API key"),
			{Name: "temperature", Label: "Temperature", Kind: "number", Placeholder: "0.1"},
		},
		Inputs:  []Handle{in("input-modelName", "modelName"), in("input-input", "input")},
		Outputs: []Handle{out("output-1")},
	},
	TypeChatOutput: {
		Type:        TypeChatOutput,
		Label:       "Chat Output",
		Description: "Display a chat output.",
		Fields: []Field{
			text("message", "Message", "Type your message here"),
			text("sender", "Sender Name", "AI"),
		},
		Inputs: []Handle{in("input-1", "")},
	},
	TypeTextOutput: {
		Type:        TypeTextOutput,
		Label:       "Text Output",
		Description: "Display a text output.",
		Fields:      []Field{text("input", "Input", "Type something...")},
		Inputs:      []Handle{in("input-1", "")},
	},
}

// Lookup returns the template for t.
func Lookup(t NodeType) (*Template, bool) {
	tpl, ok := registry[t]
	return tpl, ok
}

// MustLookup is Lookup for callers that already validated t. An unknown
// type is a programming error and panics with *apperr.ConfigError.
func MustLookup(t NodeType) *Template {
	tpl, ok := registry[t]
	if !ok {
		panic(&apperr.ConfigError{What: "unknown node type " + string(t)})
	}
	return tpl
}

// Templates returns every registered template ordered by type name.
// The templates are shared and must not be modified.
func Templates() []*Template {
	list := make([]*Template, 0, len(registry))
	for _, tpl := range registry {
		list = append(list, tpl)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Type < list[j].Type })
	return list
}
