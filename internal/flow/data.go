package flow

import (
	"fmt"

	"github.com/starford/nodeflow/internal/apperr"
)

// Data is the typed payload of a node. Each node type has its own concrete
// struct; the flat field map only exists at the serialization boundary.
type Data interface {
	Type() NodeType
	// Fields returns every schema field, empty ones included.
	Fields() map[string]string
	// SetField assigns one schema field. Unknown names yield apperr.ErrUnknownField.
	SetField(name, value string) error
}

type ChatInputData struct {
	Message string
	Sender  string
}

func (d *ChatInputData) Type() NodeType { return TypeChatInput }

func (d *ChatInputData) Fields() map[string]string {
	return map[string]string{"message": d.Message, "sender": d.Sender}
}

func (d *ChatInputData) SetField(name, value string) error {
	switch name {
	case "message":
		d.Message = value
	case "sender":
		d.Sender = value
	default:
		return unknownField(TypeChatInput, name)
	}
	return nil
}

type PromptData struct {
	Template  string
	UserInput string
}

func (d *PromptData) Type() NodeType { return TypePrompt }

func (d *PromptData) Fields() map[string]string {
	return map[string]string{"template": d.Template, "user_input": d.UserInput}
}

func (d *PromptData) SetField(name, value string) error {
	switch name {
	case "template":
		d.Template = value
	case "user_input":
		d.UserInput = value
	default:
		return unknownField(TypePrompt, name)
	}
	return nil
}

// ModelData keeps Temperature as entered; the backend parses it.
type ModelData struct {
	ModelName   string
	Input       string
	APIKey      string
	Temperature string
}

func (d *ModelData) Type() NodeType { return TypeModel }

func (d *ModelData) Fields() map[string]string {
	return map[string]string{
		"modelName":   d.ModelName,
		"input":       d.Input,
		"apiKey":      d.APIKey,
		"temperature": d.Temperature,
	}
}

func (d *ModelData) SetField(name, value string) error {
	switch name {
	case "modelName":
		d.ModelName = value
	case "input":
		d.Input = value
	case "apiKey":
		d.APIKey = value
	case "temperature":
		d.Temperature = value
	default:
		return unknownField(TypeModel, name)
	}
	return nil
}

type ChatOutputData struct {
	Message string
	Sender  string
}

func (d *ChatOutputData) Type() NodeType { return TypeChatOutput }

func (d *ChatOutputData) Fields() map[string]string {
	return map[string]string{"message": d.Message, "sender": d.Sender}
}

func (d *ChatOutputData) SetField(name, value string) error {
	switch name {
	case "message":
		d.Message = value
	case "sender":
		d.Sender = value
	default:
		return unknownField(TypeChatOutput, name)
	}
	return nil
}

type TextOutputData struct {
	Input string
}

func (d *TextOutputData) Type() NodeType { return TypeTextOutput }

func (d *TextOutputData) Fields() map[string]string {
	return map[string]string{"input": d.Input}
}

func (d *TextOutputData) SetField(name, value string) error {
	if name != "input" {
		return unknownField(TypeTextOutput, name)
	}
	d.Input = value
	return nil
}

func unknownField(t NodeType, name string) error {
	return fmt.Errorf("flow: %s has no field %q: %w", t, name, apperr.ErrUnknownField)
}

// NewData returns empty data for t, or false if t is not registered.
func NewData(t NodeType) (Data, bool) {
	switch t {
	case TypeChatInput:
		return &ChatInputData{}, true
	case TypePrompt:
		return &PromptData{}, true
	case TypeModel:
		return &ModelData{}, true
	case TypeChatOutput:
		return &ChatOutputData{}, true
	case TypeTextOutput:
		return &TextOutputData{}, true
	}
	return nil, false
}

// DataFromFields rebuilds typed data from a field map, e.g. one read from a
// saved document. Missing fields stay empty; unknown ones are rejected.
func DataFromFields(t NodeType, fields map[string]string) (Data, error) {
	d, ok := NewData(t)
	if !ok {
		return nil, fmt.Errorf("flow: unknown node type %q: %w", t, apperr.ErrNotFound)
	}
	for name, value := range fields {
		if err := d.SetField(name, value); err != nil {
			return nil, err
		}
	}
	return d, nil
}
