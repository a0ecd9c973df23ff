package mcpschema

import (
	"encoding/json"
	"fmt"
)

// ContentItem is the tagged union of content a tool, resource, or prompt
// message carries: text, inline image, structured JSON, or a resource link.
type ContentItem struct {
	Type         string          `json:"type"`
	MimeType     string          `json:"mimeType,omitempty"`
	Text         string          `json:"text,omitempty"`
	Data         string          `json:"data,omitempty"` // base64 for image
	JSON         json.RawMessage `json:"data_json,omitempty"`
	URI          string          `json:"uri,omitempty"`
	Description  string          `json:"description,omitempty"`
	Annotations  *Annotations    `json:"annotations,omitempty"`
}

// Annotations carries rendering hints for a content item, e.g. marking a
// text item as markdown.
type Annotations struct {
	MimeType string `json:"mimeType,omitempty"`
}

// TextContent builds a plain-text content item.
func TextContent(text string) ContentItem {
	return ContentItem{Type: "text", Text: text}
}

// MarkdownContent builds a text content item annotated as markdown.
func MarkdownContent(text string) ContentItem {
	return ContentItem{
		Type:        "text",
		Text:        text,
		Annotations: &Annotations{MimeType: "text/markdown"},
	}
}

// JSONContent builds a structured-data content item from an already-
// marshaled JSON document.
func JSONContent(raw json.RawMessage) ContentItem {
	return ContentItem{Type: "json", JSON: raw}
}

// ImageContent builds an inline base64-encoded image content item.
func ImageContent(mimeType, base64Data string) ContentItem {
	return ContentItem{Type: "image", MimeType: mimeType, Data: base64Data}
}

// ResourceLinkContent builds a resource-link content item.
func ResourceLinkContent(uri, description string) ContentItem {
	return ContentItem{Type: "resource_link", URI: uri, Description: description}
}

// ToolResult is the result of tools/call.
type ToolResult struct {
	Content          []ContentItem `json:"content"`
	StructuredContent *ContentItem `json:"structuredContent,omitempty"`
	IsError          bool          `json:"isError,omitempty"`
}

// ErrorToolResult builds a domain-level failure result: the protocol call
// still succeeds, but IsError signals the tool's own semantic failure.
func ErrorToolResult(message string) *ToolResult {
	return &ToolResult{
		Content: []ContentItem{TextContent(message)},
		IsError: true,
	}
}

// ToolDescriptor is the wire shape of a tool as returned by tools/list.
type ToolDescriptor struct {
	Name         string          `json:"name"`
	Title        string          `json:"title,omitempty"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// ResourceDescriptor is the wire shape of a resource as returned by resources/list.
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceTemplateDescriptor is the wire shape of a templated resource.
type ResourceTemplateDescriptor struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PromptArgument describes one named argument a prompt accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// PromptDescriptor is the wire shape of a prompt as returned by prompts/list.
type PromptDescriptor struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptMessage is one message a prompts/get renderer produces.
type PromptMessage struct {
	Role    string      `json:"role"`
	Content ContentItem `json:"content"`
}

// FormatWorkerResult turns a worker's raw result document into a
// ToolResult per spec.md §4.6: a top-level "_formatting" string is
// stripped out and rendered as a markdown text content item; every other
// top-level key is returned verbatim as structuredContent.
func FormatWorkerResult(raw json.RawMessage) (*ToolResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("mcpschema: worker result is not a JSON object: %w", err)
	}

	result := &ToolResult{}

	if formattingRaw, ok := fields["_formatting"]; ok {
		var formatting string
		if err := json.Unmarshal(formattingRaw, &formatting); err == nil {
			result.Content = append(result.Content, MarkdownContent(formatting))
		}
		delete(fields, "_formatting")
	}

	remaining, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("mcpschema: re-marshaling structured content: %w", err)
	}
	structured := JSONContent(remaining)
	result.StructuredContent = &structured

	if len(result.Content) == 0 {
		result.Content = []ContentItem{JSONContent(remaining)}
	}

	return result, nil
}

func (c ContentItem) String() string {
	switch c.Type {
	case "text":
		return c.Text
	case "image":
		return fmt.Sprintf("image(%s)", c.MimeType)
	case "json":
		return string(c.JSON)
	case "resource_link":
		return c.URI
	default:
		return fmt.Sprintf("content(%s)", c.Type)
	}
}
