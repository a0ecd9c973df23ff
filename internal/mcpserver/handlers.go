package mcpserver

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/arborist-labs/statmcp/internal/approval"
	"github.com/arborist-labs/statmcp/internal/mcpschema"
	"github.com/arborist-labs/statmcp/internal/registry"
	"github.com/arborist-labs/statmcp/internal/session"
)

type cursorParams struct {
	Cursor string `json:"cursor"`
}

func (s *Server) handleToolsList(params json.RawMessage) (any, *mcpschema.Error) {
	var p cursorParams
	_ = json.Unmarshal(params, &p)

	page, err := s.Tools.List(p.Cursor, nil)
	if err != nil {
		return nil, &mcpschema.Error{Code: mcpschema.CodeInvalidParams, Message: err.Error()}
	}
	descriptors := make([]mcpschema.ToolDescriptor, 0, len(page.Entries))
	for _, t := range page.Entries {
		descriptors = append(descriptors, t.Descriptor())
	}
	raw, marshalErr := registry.MarshalCursorResult("tools", descriptors, page.NextCursor)
	if marshalErr != nil {
		return nil, &mcpschema.Error{Code: mcpschema.CodeInternalError, Message: "internal error"}
	}
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out, nil
}

func (s *Server) handleToolsCall(ctx *session.Context, params json.RawMessage) (any, *mcpschema.Error) {
	var p struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &mcpschema.Error{Code: mcpschema.CodeInvalidParams, Message: "malformed tools/call params"}
	}

	tool, err := s.Tools.Get(p.Name)
	if err != nil {
		return nil, &mcpschema.Error{Code: mcpschema.CodeMethodNotFound, Message: fmt.Sprintf("unknown tool: %s", p.Name)}
	}

	var argsInstance any
	if len(p.Arguments) > 0 {
		if err := json.Unmarshal(p.Arguments, &argsInstance); err != nil {
			return nil, &mcpschema.Error{Code: mcpschema.CodeInvalidParams, Message: "arguments is not valid JSON"}
		}
	}
	if violations, err := s.Validator.Validate(tool.Name, tool.InputSchema, argsInstance); err != nil || len(violations) > 0 {
		return nil, &mcpschema.Error{
			Code:    mcpschema.CodeInvalidParams,
			Message: "invalid tool arguments",
			Data:    mcpschema.InvalidParamsData{Violations: violations},
		}
	}

	result, err := tool.Handler(ctx, p.Arguments)
	if err != nil {
		return nil, translateHandlerError(err)
	}
	return result, nil
}

func (s *Server) handleResourcesList(params json.RawMessage) (any, *mcpschema.Error) {
	var p cursorParams
	_ = json.Unmarshal(params, &p)

	page, err := s.Resources.List(p.Cursor, nil)
	if err != nil {
		return nil, &mcpschema.Error{Code: mcpschema.CodeInvalidParams, Message: err.Error()}
	}
	descriptors := make([]mcpschema.ResourceDescriptor, 0, len(page.Entries))
	for _, r := range page.Entries {
		descriptors = append(descriptors, r.Descriptor())
	}
	raw, marshalErr := registry.MarshalCursorResult("resources", descriptors, page.NextCursor)
	if marshalErr != nil {
		return nil, &mcpschema.Error{Code: mcpschema.CodeInternalError, Message: "internal error"}
	}
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out, nil
}

func (s *Server) handleResourceTemplatesList(params json.RawMessage) (any, *mcpschema.Error) {
	var p cursorParams
	_ = json.Unmarshal(params, &p)

	page, err := s.ResourceTemplates.List(p.Cursor, nil)
	if err != nil {
		return nil, &mcpschema.Error{Code: mcpschema.CodeInvalidParams, Message: err.Error()}
	}
	descriptors := make([]mcpschema.ResourceTemplateDescriptor, 0, len(page.Entries))
	for _, r := range page.Entries {
		descriptors = append(descriptors, r.Descriptor())
	}
	raw, marshalErr := registry.MarshalCursorResult("resourceTemplates", descriptors, page.NextCursor)
	if marshalErr != nil {
		return nil, &mcpschema.Error{Code: mcpschema.CodeInternalError, Message: "internal error"}
	}
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out, nil
}

func (s *Server) handleResourcesRead(ctx *session.Context, params json.RawMessage) (any, *mcpschema.Error) {
	var p struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &mcpschema.Error{Code: mcpschema.CodeInvalidParams, Message: "malformed resources/read params"}
	}

	resource, err := s.Resources.Get(p.URI)
	if err != nil {
		return nil, &mcpschema.Error{Code: mcpschema.CodeMethodNotFound, Message: fmt.Sprintf("unknown resource: %s", p.URI)}
	}

	contents, err := resource.Reader(ctx, p.URI)
	if err != nil {
		return nil, translateHandlerError(err)
	}
	return map[string]any{"contents": contents}, nil
}

func (s *Server) handlePromptsList(params json.RawMessage) (any, *mcpschema.Error) {
	var p cursorParams
	_ = json.Unmarshal(params, &p)

	page, err := s.Prompts.List(p.Cursor, nil)
	if err != nil {
		return nil, &mcpschema.Error{Code: mcpschema.CodeInvalidParams, Message: err.Error()}
	}
	descriptors := make([]mcpschema.PromptDescriptor, 0, len(page.Entries))
	for _, p := range page.Entries {
		descriptors = append(descriptors, p.Descriptor())
	}
	raw, marshalErr := registry.MarshalCursorResult("prompts", descriptors, page.NextCursor)
	if marshalErr != nil {
		return nil, &mcpschema.Error{Code: mcpschema.CodeInternalError, Message: "internal error"}
	}
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out, nil
}

func (s *Server) handlePromptsGet(ctx *session.Context, params json.RawMessage) (any, *mcpschema.Error) {
	var p struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &mcpschema.Error{Code: mcpschema.CodeInvalidParams, Message: "malformed prompts/get params"}
	}

	prompt, err := s.Prompts.Get(p.Name)
	if err != nil {
		return nil, &mcpschema.Error{Code: mcpschema.CodeMethodNotFound, Message: fmt.Sprintf("unknown prompt: %s", p.Name)}
	}

	messages, err := prompt.Renderer(ctx, p.Arguments)
	if err != nil {
		return nil, translateHandlerError(err)
	}
	return map[string]any{"messages": messages}, nil
}

// translateHandlerError maps a tool/resource/prompt handler's returned
// error onto the server-defined JSON-RPC error codes (spec.md §7). Worker
// and VFS errors carry their own typed classification; anything else
// becomes a generic internal error with the original message kept out of
// the client-visible field.
func translateHandlerError(err error) *mcpschema.Error {
	switch classified := classify(err); classified {
	case classWorkerTimeout:
		return &mcpschema.Error{Code: mcpschema.CodeWorkerTimeout, Message: "worker timed out"}
	case classWorkerExecution:
		return &mcpschema.Error{Code: mcpschema.CodeWorkerExecutionError, Message: "worker execution failed"}
	case classWorkerProtocol:
		return &mcpschema.Error{Code: mcpschema.CodeWorkerProtocolError, Message: "worker protocol error"}
	case classCancelled:
		return &mcpschema.Error{Code: mcpschema.CodeRequestCancelled, Message: "request cancelled"}
	case classVFSDenied:
		return &mcpschema.Error{Code: mcpschema.CodeVFSAccessDenied, Message: "VFS access denied"}
	case classApprovalDenied:
		var aerr *approval.DeniedError
		errors.As(err, &aerr)
		return &mcpschema.Error{
			Code:    mcpschema.CodeApprovalDenied,
			Message: "approval denied",
			Data:    mcpschema.ApprovalDeniedData{Category: aerr.Category},
		}
	default:
		return &mcpschema.Error{Code: mcpschema.CodeInternalError, Message: "internal error"}
	}
}
