// Package httpsse implements the HTTP+SSE MCP transport (spec.md §4.9):
// a single JSON-RPC POST endpoint, session header negotiation, an SSE
// stream for server-initiated notifications, CORS preflight, and a
// health probe. Grounded on the teacher's pkg/server Echo-based graceful
// shutdown pattern, extended with the MCP-specific session and
// notification machinery the teacher's plain health-check server never
// needed.
package httpsse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arborist-labs/statmcp/internal/config"
	"github.com/arborist-labs/statmcp/internal/eventbus"
	"github.com/arborist-labs/statmcp/internal/logging"
	"github.com/arborist-labs/statmcp/internal/mcpschema"
	"github.com/arborist-labs/statmcp/internal/sanitize"
	"github.com/arborist-labs/statmcp/internal/session"
)

const (
	headerSessionID      = "Mcp-Session-Id"
	headerProtocolVer    = "MCP-Protocol-Version"
	sseQueueSize         = 32
	sseKeepaliveInterval = 1 * time.Second
	idleSweepInterval    = 1 * time.Minute
	pendingRequestTTL    = 5 * time.Minute
)

// Handler is the entry point the transport calls for every decoded
// request; mcpserver.Server.Handle satisfies this.
type Handler func(ctx *session.Context, req *mcpschema.Request) (*mcpschema.Response, error)

// Server is the HTTP+SSE transport: an Echo router plus the session
// table and per-session notification queues the stdio transport does
// not need (it has exactly one session and writes notifications inline).
type Server struct {
	cfg        config.ServerConfig
	sessionCfg config.SessionConfig
	handler    Handler
	log        *logging.Logger
	echo       *echo.Echo
	bus        *eventbus.Bus

	mu       sync.RWMutex
	sessions map[string]*session.Session
	queues   map[string]chan sseEvent

	// sanitizedSessions reverse-maps a worker event subject's sanitized
	// session segment back to the real session id, since sanitize.Identifier
	// is lossy (it strips the dashes a UUID session id is made of).
	sanitizedSessions map[string]string

	idSeq   atomic.Int64
	pending sync.Map // requestKey (sessionID+":"+id) -> chan json.RawMessage
}

type sseEvent struct {
	name string
	data any
}

// New builds the Echo router with every spec.md §4.9 route registered.
func New(cfg config.ServerConfig, sessionCfg config.SessionConfig, handler Handler, log *logging.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		cfg:               cfg,
		sessionCfg:        sessionCfg,
		handler:           handler,
		log:               log,
		echo:              e,
		sessions:          make(map[string]*session.Session),
		queues:            make(map[string]chan sseEvent),
		sanitizedSessions: make(map[string]string),
	}
	s.registerRoutes()
	return s
}

// WithEventBus attaches the event bus worker lifecycle events are
// published on; once set, Start subscribes and relays them to the
// originating session's SSE stream as notifications/message events.
func (s *Server) WithEventBus(bus *eventbus.Bus) *Server {
	s.bus = bus
	return s
}

func (s *Server) registerRoutes() {
	if s.cfg.MaxBodyBytes > 0 {
		s.echo.Use(middleware.BodyLimit(strconv.FormatInt(s.cfg.MaxBodyBytes, 10)))
	}
	s.echo.Use(s.corsMiddleware)
	s.echo.POST("/mcp", s.handlePost)
	s.echo.OPTIONS("/mcp", s.handlePreflight)
	s.echo.GET("/mcp/sse", s.handleSSE)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (s *Server) corsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		origin := c.Request().Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			c.Response().Header().Set("Access-Control-Allow-Origin", origin)
			c.Response().Header().Set("Vary", "Origin")
		}
		return next(c)
	}
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.cfg.CORSOrigins) == 0 {
		return false
	}
	for _, allowed := range s.cfg.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handlePreflight(c echo.Context) error {
	origin := c.Request().Header.Get("Origin")
	if s.originAllowed(origin) {
		c.Response().Header().Set("Access-Control-Allow-Origin", origin)
	}
	c.Response().Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	c.Response().Header().Set("Access-Control-Allow-Headers", fmt.Sprintf("Content-Type, %s, %s", headerSessionID, headerProtocolVer))
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy", "transport": "HTTP"})
}

func (s *Server) handlePost(c echo.Context) error {
	if c.Request().Header.Get("Content-Type") != "application/json" && c.Request().Header.Get("Content-Type") != "application/json; charset=utf-8" {
		return c.NoContent(http.StatusBadRequest)
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusOK, mcpschema.NewErrorResponse(nil, mcpschema.CodeParseError, "parse error", nil))
	}

	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		return c.JSON(http.StatusOK, mcpschema.NewErrorResponse(nil, mcpschema.CodeInvalidRequest, "batch requests are not supported", nil))
	}

	sessionID := c.Request().Header.Get(headerSessionID)

	// A body with no "method" key is a client's reply to a server-initiated
	// request (elicitation/create), not a new request to dispatch.
	if !hasMethodKey(body) {
		if sessionID == "" {
			return c.NoContent(http.StatusBadRequest)
		}
		return s.handleClientResponse(sessionID, body, c)
	}

	var req mcpschema.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return c.JSON(http.StatusOK, mcpschema.NewErrorResponse(nil, mcpschema.CodeParseError, "parse error", nil))
	}

	if req.Method == "initialize" {
		return s.handleInitializePost(c, &req)
	}

	if sessionID == "" {
		return c.NoContent(http.StatusBadRequest)
	}
	if c.Request().Header.Get(headerProtocolVer) == "" {
		return c.NoContent(http.StatusBadRequest)
	}

	sess := s.lookupSession(sessionID)
	if sess == nil {
		return c.JSON(http.StatusOK, mcpschema.NewErrorResponse(req.ID, mcpschema.CodeSessionExpired, "unknown session", nil))
	}
	sess.Touch()

	resp := s.dispatch(c.Request().Context(), sess, sessionID, &req)
	if resp == nil {
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSON(http.StatusOK, resp)
}

// hasMethodKey reports whether raw decodes as a JSON object carrying a
// "method" key, the property distinguishing a JSON-RPC request or
// notification from a response to a server-initiated request.
func hasMethodKey(raw []byte) bool {
	var probe struct {
		Method *string `json:"method"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return true // malformed bodies fall through to the normal parse-error path
	}
	return probe.Method != nil
}

// handleClientResponse delivers a client's reply to a pending
// server-initiated request (elicitation/create) to the goroutine blocked
// on it in sendRequest, matched by session id and JSON-RPC id.
func (s *Server) handleClientResponse(sessionID string, body []byte, c echo.Context) error {
	var resp struct {
		ID     json.RawMessage `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return c.JSON(http.StatusOK, mcpschema.NewErrorResponse(nil, mcpschema.CodeParseError, "parse error", nil))
	}

	key := sessionID + ":" + requestKey(resp.ID)
	if ch, ok := s.pending.LoadAndDelete(key); ok {
		payload := resp.Result
		if payload == nil {
			payload = resp.Error
		}
		ch.(chan json.RawMessage) <- payload
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleInitializePost(c echo.Context, req *mcpschema.Request) error {
	sess := session.New()
	sessionID := sess.ID()

	s.mu.Lock()
	s.sessions[sessionID] = sess
	s.queues[sessionID] = make(chan sseEvent, sseQueueSize)
	s.sanitizedSessions[sanitize.Identifier(sessionID)] = sessionID
	s.mu.Unlock()

	resp := s.dispatch(c.Request().Context(), sess, sessionID, req)
	c.Response().Header().Set(headerSessionID, sessionID)
	if resp == nil {
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) dispatch(parent context.Context, sess *session.Session, sessionID string, req *mcpschema.Request) *mcpschema.Response {
	back := httpBackChannel{server: s, sessionID: sessionID}
	ctx := session.NewContext(parent, sess, requestKey(req.ID), s.log, back)
	resp, err := s.handler(ctx, req)
	if err != nil {
		s.log.Error(parent, "httpsse: handler returned error", zap.Error(err), zap.String("method", req.Method))
		return mcpschema.NewErrorResponse(req.ID, mcpschema.CodeInternalError, "internal error", nil)
	}
	return resp
}

func (s *Server) lookupSession(id string) *session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// handleSSE streams notifications for a session as Server-Sent Events:
// "notification" for server->client JSON-RPC notifications, "keepalive"
// at a fixed interval, and "close" once the session ends. The queue is
// bounded; on overflow the oldest event is dropped and an "overflow"
// event takes its place.
func (s *Server) handleSSE(c echo.Context) error {
	sessionID := c.Request().Header.Get(headerSessionID)
	if sessionID == "" {
		return c.NoContent(http.StatusBadRequest)
	}

	s.mu.RLock()
	sess := s.sessions[sessionID]
	queue := s.queues[sessionID]
	s.mu.RUnlock()
	if sess == nil || queue == nil {
		return c.NoContent(http.StatusNotFound)
	}

	resp := c.Response()
	resp.Header().Set("Content-Type", "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(sseKeepaliveInterval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			writeSSEEvent(resp, "keepalive", map[string]any{})
			resp.Flush()
		case ev, ok := <-queue:
			if !ok {
				writeSSEEvent(resp, "close", map[string]any{})
				resp.Flush()
				return nil
			}
			writeSSEEvent(resp, ev.name, ev.data)
			resp.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, name string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, raw)
}

// httpBackChannel delivers a session's server-initiated notifications
// onto its SSE queue, dropping the oldest entry on overflow per
// spec.md §4.9.
type httpBackChannel struct {
	server    *Server
	sessionID string
}

func (b httpBackChannel) Notify(method string, params any) {
	b.server.mu.RLock()
	queue, ok := b.server.queues[b.sessionID]
	b.server.mu.RUnlock()
	if !ok {
		return
	}

	notif := mcpschema.NewNotification(method, params)
	select {
	case queue <- sseEvent{name: "notification", data: notif}:
	default:
		select {
		case <-queue:
		default:
		}
		select {
		case queue <- sseEvent{name: "overflow", data: map[string]any{}}:
		default:
		}
	}
}

// Request sends method as a server-initiated JSON-RPC request over the
// session's SSE stream (event "message") and blocks until the client's
// POST reply is matched by handleClientResponse, ctx is done, or the
// bounded wait in pendingRequestTTL elapses.
func (b httpBackChannel) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	b.server.mu.RLock()
	queue, ok := b.server.queues[b.sessionID]
	b.server.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("httpsse: session %s has no open stream", b.sessionID)
	}

	id := b.server.idSeq.Add(1)
	idRaw := json.RawMessage(strconv.FormatInt(id, 10))
	req := mcpschema.NewRequest(idRaw, method, params)

	key := b.sessionID + ":" + requestKey(idRaw)
	ch := make(chan json.RawMessage, 1)
	b.server.pending.Store(key, ch)
	defer b.server.pending.Delete(key)

	select {
	case queue <- sseEvent{name: "message", data: req}:
	default:
		return nil, fmt.Errorf("httpsse: session %s stream queue full", b.sessionID)
	}

	timeout := time.NewTimer(pendingRequestTTL)
	defer timeout.Stop()

	select {
	case payload := <-ch:
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout.C:
		return nil, fmt.Errorf("httpsse: no reply to %s from session %s", method, b.sessionID)
	}
}

// CloseSession tears down a session's SSE queue, emitting a "close"
// event to any connected stream.
func (s *Server) CloseSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.Close()
	}
	if queue, ok := s.queues[sessionID]; ok {
		close(queue)
		delete(s.queues, sessionID)
	}
	delete(s.sessions, sessionID)
	delete(s.sanitizedSessions, sanitize.Identifier(sessionID))
}

// sweepIdleSessions periodically closes sessions that have not seen
// activity for longer than sessionCfg.IdleTimeout, per spec.md §4.7's
// "any state -> CLOSED on idle timeout" transition. A zero IdleTimeout
// disables sweeping.
func (s *Server) sweepIdleSessions(ctx context.Context) {
	timeout := s.sessionCfg.IdleTimeout.Duration()
	if timeout <= 0 {
		return
	}

	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.closeIdleSessions(timeout)
		}
	}
}

func (s *Server) closeIdleSessions(timeout time.Duration) {
	s.mu.RLock()
	var idle []string
	for id, sess := range s.sessions {
		if sess.IdleSince() >= timeout {
			idle = append(idle, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range idle {
		s.log.Info(context.Background(), "httpsse: closing idle session", zap.String("session_id", id))
		s.CloseSession(id)
	}
}

// relayWorkerEvent forwards a worker lifecycle event published on subject
// to the session it belongs to, recovering the real session id from the
// sanitized segment embedded in the subject.
func (s *Server) relayWorkerEvent(subject string, data []byte) {
	parts := strings.SplitN(subject, ".", 3)
	if len(parts) < 2 {
		return
	}
	s.mu.RLock()
	sessionID, ok := s.sanitizedSessions[parts[1]]
	s.mu.RUnlock()
	if !ok {
		return
	}

	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		payload = string(data)
	}
	back := httpBackChannel{server: s, sessionID: sessionID}
	back.Notify("notifications/message", map[string]any{
		"level":  "info",
		"logger": "worker",
		"data":   map[string]any{"subject": subject, "event": payload},
	})
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully within ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	errCh := make(chan error, 1)

	go s.sweepIdleSessions(ctx)

	if s.bus != nil {
		unsub, err := s.bus.Subscribe("operations.*.*.>", s.relayWorkerEvent)
		if err != nil {
			return fmt.Errorf("httpsse: subscribing to event bus: %w", err)
		}
		defer unsub()
	}

	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("httpsse: server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("httpsse: server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo returns the underlying router, for tests that want to drive
// requests with httptest without binding a real port.
func (s *Server) Echo() *echo.Echo { return s.echo }

func requestKey(id json.RawMessage) string {
	if len(id) == 0 {
		return ""
	}
	return string(id)
}
