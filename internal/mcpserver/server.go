// Package mcpserver implements the transport-agnostic core: method
// routing, session-state gating, capability negotiation, and the central
// error-code translation described in spec.md §4.7 and §7. Transports
// (internal/transport/stdio, internal/transport/httpsse) decode bytes into
// mcpschema.Request values, call Server.Handle, and re-encode the result;
// everything else lives here.
package mcpserver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/arborist-labs/statmcp/internal/catalog"
	"github.com/arborist-labs/statmcp/internal/logging"
	"github.com/arborist-labs/statmcp/internal/mcpmetrics"
	"github.com/arborist-labs/statmcp/internal/mcpschema"
	"github.com/arborist-labs/statmcp/internal/registry"
	"github.com/arborist-labs/statmcp/internal/session"
)

// ServerInfo identifies this server in the initialize result.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities is the capability object advertised at initialize,
// verbatim per spec.md §4.1.
var Capabilities = map[string]any{
	"tools":      map[string]any{"listChanged": false},
	"resources":  map[string]any{"subscribe": true, "listChanged": true},
	"prompts":    map[string]any{"listChanged": false},
	"logging":    map[string]any{},
	"completion": map[string]any{},
}

// Server holds the three catalog registrars and the shared collaborators
// a request handler needs. It owns the registry exclusively; sessions are
// owned by the transport that created them (spec.md §3 Ownership).
type Server struct {
	Info ServerInfo

	Tools             *registry.Registrar[catalog.Tool]
	Resources         *registry.Registrar[catalog.Resource]
	ResourceTemplates *registry.Registrar[catalog.ResourceTemplate]
	Prompts           *registry.Registrar[catalog.Prompt]

	Validator *mcpschema.Validator
	Logger    *logging.Logger
	Metrics   *mcpmetrics.Registry
}

// WithMetrics attaches a collector registry; requests dispatched after
// this call record latency and outcome counts. Optional — a nil Metrics
// is a no-op.
func (s *Server) WithMetrics(m *mcpmetrics.Registry) *Server {
	s.Metrics = m
	return s
}

// New builds a Server around already-populated, closed registrars.
func New(info ServerInfo, tools *registry.Registrar[catalog.Tool], resources *registry.Registrar[catalog.Resource], templates *registry.Registrar[catalog.ResourceTemplate], prompts *registry.Registrar[catalog.Prompt], log *logging.Logger) *Server {
	return &Server{
		Info:              info,
		Tools:             tools,
		Resources:         resources,
		ResourceTemplates: templates,
		Prompts:           prompts,
		Validator:         mcpschema.NewValidator(),
		Logger:            log,
	}
}

// Handle routes one JSON-RPC request through the session state machine
// and the method table, returning the response to send (nil for
// notifications, which never receive one).
func (s *Server) Handle(ctx *session.Context, req *mcpschema.Request) (*mcpschema.Response, error) {
	start := time.Now()
	outcome := "ok"
	defer func() { s.observe(req.Method, outcome, time.Since(start)) }()

	if req.Method != "initialize" && req.Method != "ping" && ctx.Session.State() == session.StateCreated {
		if req.IsNotification() {
			return nil, nil
		}
		outcome = "session_not_initialized"
		return mcpschema.NewErrorResponse(req.ID, mcpschema.CodeSessionNotInitialized, "session not initialized", nil), nil
	}
	if ctx.Session.State() == session.StateClosed {
		if req.IsNotification() {
			return nil, nil
		}
		outcome = "session_expired"
		return mcpschema.NewErrorResponse(req.ID, mcpschema.CodeSessionExpired, "session expired", nil), nil
	}

	result, rpcErr := s.dispatch(ctx, req)

	if req.IsNotification() {
		return nil, nil
	}
	if rpcErr != nil {
		outcome = "error"
		return mcpschema.NewErrorResponse(req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data), nil
	}
	resp, err := mcpschema.NewResultResponse(req.ID, result)
	if err != nil {
		outcome = "error"
		return mcpschema.NewErrorResponse(req.ID, mcpschema.CodeInternalError, "internal error", nil), nil
	}
	return resp, nil
}

func (s *Server) observe(method, outcome string, elapsed time.Duration) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.RequestsTotal.WithLabelValues(method, outcome).Inc()
	s.Metrics.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (s *Server) dispatch(ctx *session.Context, req *mcpschema.Request) (any, *mcpschema.Error) {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(ctx, req.Params)
	case "notifications/initialized":
		return nil, nil
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return s.handleToolsList(req.Params)
	case "tools/call":
		return s.handleToolsCall(ctx, req.Params)
	case "resources/list":
		return s.handleResourcesList(req.Params)
	case "resources/templates/list":
		return s.handleResourceTemplatesList(req.Params)
	case "resources/read":
		return s.handleResourcesRead(ctx, req.Params)
	case "resources/subscribe":
		return map[string]any{}, nil
	case "prompts/list":
		return s.handlePromptsList(req.Params)
	case "prompts/get":
		return s.handlePromptsGet(ctx, req.Params)
	case "logging/setLevel":
		return map[string]any{}, nil
	case "notifications/cancelled":
		s.handleCancelled(ctx, req.Params)
		return nil, nil
	default:
		return nil, &mcpschema.Error{Code: mcpschema.CodeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)}
	}
}

func (s *Server) handleInitialize(ctx *session.Context, params json.RawMessage) (any, *mcpschema.Error) {
	var args struct {
		ProtocolVersion string          `json:"protocolVersion"`
		ClientInfo      session.ClientInfo `json:"clientInfo"`
		Capabilities    json.RawMessage `json:"capabilities"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, &mcpschema.Error{Code: mcpschema.CodeInvalidParams, Message: "malformed initialize params"}
	}
	if args.ProtocolVersion != mcpschema.ProtocolVersion {
		return nil, &mcpschema.Error{Code: mcpschema.CodeInvalidParams, Message: "unsupported protocol version"}
	}
	if err := ctx.Session.Initialize(args.ProtocolVersion, args.ClientInfo); err != nil {
		return nil, &mcpschema.Error{Code: mcpschema.CodeInternalError, Message: err.Error()}
	}
	return map[string]any{
		"protocolVersion": mcpschema.ProtocolVersion,
		"capabilities":    Capabilities,
		"serverInfo":      s.Info,
	}, nil
}

func (s *Server) handleCancelled(ctx *session.Context, params json.RawMessage) {
	var p struct {
		RequestID json.RawMessage `json:"requestId"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}
	ctx.Session.CancelRequest(requestKey(p.RequestID))
}

// requestKey normalizes a JSON-RPC id (string, number, or absent) to the
// string form used as the cancellation registry's map key, matching the
// representation each transport uses when it registers the id.
func requestKey(id json.RawMessage) string {
	if len(id) == 0 {
		return ""
	}
	return string(id)
}
