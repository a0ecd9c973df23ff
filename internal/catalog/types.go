// Package catalog defines the tool, resource, and prompt entry types
// registered into internal/registry's Registrar[T] catalogs, plus the
// built-in statistical-operation entries this server ships with. The
// statistical correctness of any individual operation is out of scope
// (spec.md §1); these are thin handlers that validate input, run the
// approval gate, and delegate to internal/worker.
package catalog

import (
	"encoding/json"

	"github.com/arborist-labs/statmcp/internal/mcpschema"
	"github.com/arborist-labs/statmcp/internal/session"
)

// ToolHandler executes a tool call given validated arguments.
type ToolHandler func(ctx *session.Context, arguments json.RawMessage) (*mcpschema.ToolResult, error)

// Tool is a registered tool: its descriptor plus its handler. Name is the
// Registrar key.
type Tool struct {
	Name         string
	Title        string
	Description  string
	InputSchema  json.RawMessage
	OutputSchema json.RawMessage
	Handler      ToolHandler
}

// Descriptor returns the wire-shape descriptor for tools/list.
func (t Tool) Descriptor() mcpschema.ToolDescriptor {
	return mcpschema.ToolDescriptor{
		Name:         t.Name,
		Title:        t.Title,
		Description:  t.Description,
		InputSchema:  t.InputSchema,
		OutputSchema: t.OutputSchema,
	}
}

// ResourceReader produces a resource's content when read.
type ResourceReader func(ctx *session.Context, uri string) ([]mcpschema.ContentItem, error)

// Resource is a registered resource: its descriptor plus its reader. URI
// is the Registrar key.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
	Reader      ResourceReader
}

func (r Resource) Descriptor() mcpschema.ResourceDescriptor {
	return mcpschema.ResourceDescriptor{
		URI:         r.URI,
		Name:        r.Name,
		Description: r.Description,
		MimeType:    r.MimeType,
	}
}

// ResourceTemplate is a registered URI-templated resource. URITemplate is
// the Registrar key.
type ResourceTemplate struct {
	URITemplate string
	Name        string
	Description string
	MimeType    string
	Reader      ResourceReader
}

func (t ResourceTemplate) Descriptor() mcpschema.ResourceTemplateDescriptor {
	return mcpschema.ResourceTemplateDescriptor{
		URITemplate: t.URITemplate,
		Name:        t.Name,
		Description: t.Description,
		MimeType:    t.MimeType,
	}
}

// PromptRenderer renders a prompt's messages given its arguments.
type PromptRenderer func(ctx *session.Context, arguments map[string]string) ([]mcpschema.PromptMessage, error)

// Prompt is a registered prompt: its descriptor plus its renderer. Name is
// the Registrar key.
type Prompt struct {
	Name        string
	Description string
	Arguments   []mcpschema.PromptArgument
	Renderer    PromptRenderer
}

func (p Prompt) Descriptor() mcpschema.PromptDescriptor {
	return mcpschema.PromptDescriptor{
		Name:        p.Name,
		Description: p.Description,
		Arguments:   p.Arguments,
	}
}
