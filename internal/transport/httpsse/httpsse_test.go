package httpsse

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborist-labs/statmcp/internal/catalog"
	"github.com/arborist-labs/statmcp/internal/config"
	"github.com/arborist-labs/statmcp/internal/logging"
	"github.com/arborist-labs/statmcp/internal/mcpschema"
	"github.com/arborist-labs/statmcp/internal/mcpserver"
	"github.com/arborist-labs/statmcp/internal/registry"
)

func newTestServer(t *testing.T) *Server {
	return newTestServerWithConfig(t, config.ServerConfig{Host: "127.0.0.1", Port: 0, CORSOrigins: []string{"https://example.com"}}, config.SessionConfig{})
}

func newTestServerWithConfig(t *testing.T, cfg config.ServerConfig, sessionCfg config.SessionConfig) *Server {
	t.Helper()
	tools := registry.NewRegistrar[catalog.Tool](func(tl catalog.Tool) string { return tl.Name })
	tools.Close()
	resources := registry.NewRegistrar[catalog.Resource](func(r catalog.Resource) string { return r.URI })
	resources.Close()
	templates := registry.NewRegistrar[catalog.ResourceTemplate](func(r catalog.ResourceTemplate) string { return r.URITemplate })
	templates.Close()
	prompts := registry.NewRegistrar[catalog.Prompt](func(p catalog.Prompt) string { return p.Name })
	prompts.Close()

	srv := mcpserver.New(mcpserver.ServerInfo{Name: "statmcpd", Version: "test"}, tools, resources, templates, prompts, logging.NewTestLogger().Logger)
	return New(cfg, sessionCfg, srv.Handle, logging.NewTestLogger().Logger)
}

func doPost(t *testing.T, s *Server, headers map[string]string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestS3_InitializeWithoutSessionHeaderIssuesOne(t *testing.T) {
	s := newTestServer(t)
	rec := doPost(t, s, nil, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get(headerSessionID)
	assert.NotEmpty(t, sessionID)
}

func TestS3_ToolsListWithValidSessionReturns200(t *testing.T) {
	s := newTestServer(t)
	initRec := doPost(t, s, nil, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`)
	sessionID := initRec.Header().Get(headerSessionID)
	require.NotEmpty(t, sessionID)

	rec := doPost(t, s, map[string]string{headerSessionID: sessionID, headerProtocolVer: "2025-06-18"}, `{"jsonrpc":"2.0","id":2,"method":"tools/list","params":{}}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp mcpschema.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Error)
}

func TestS3_ToolsListWithUnknownSessionReturnsJSONRPCSessionExpired(t *testing.T) {
	s := newTestServer(t)
	rec := doPost(t, s, map[string]string{headerSessionID: "UNKNOWN", headerProtocolVer: "2025-06-18"}, `{"jsonrpc":"2.0","id":2,"method":"tools/list","params":{}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp mcpschema.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcpschema.CodeSessionExpired, resp.Error.Code)
}

func TestS3_ToolsListWithNoProtocolHeaderReturns400(t *testing.T) {
	s := newTestServer(t)
	initRec := doPost(t, s, nil, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`)
	sessionID := initRec.Header().Get(headerSessionID)
	require.NotEmpty(t, sessionID)

	rec := doPost(t, s, map[string]string{headerSessionID: sessionID}, `{"jsonrpc":"2.0","id":2,"method":"tools/list","params":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth_ReturnsHealthyHTTP(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "HTTP", body["transport"])
}

func TestPreflight_AllowsConfiguredOrigin(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestPost_BodyOverLimitReturns413(t *testing.T) {
	cfg := config.ServerConfig{Host: "127.0.0.1", Port: 0, CORSOrigins: []string{"https://example.com"}, MaxBodyBytes: 16}
	s := newTestServerWithConfig(t, cfg, config.SessionConfig{})

	oversized := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"` + strings.Repeat("x", 64) + `":1}}`
	rec := doPost(t, s, nil, oversized)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCloseIdleSessions_ClosesSessionsPastTimeout(t *testing.T) {
	s := newTestServerWithConfig(t, config.ServerConfig{Host: "127.0.0.1", Port: 0}, config.SessionConfig{})
	initRec := doPost(t, s, nil, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`)
	sessionID := initRec.Header().Get(headerSessionID)
	require.NotEmpty(t, sessionID)

	time.Sleep(5 * time.Millisecond)
	s.closeIdleSessions(time.Millisecond)

	assert.Nil(t, s.lookupSession(sessionID))
}

func TestSweepIdleSessions_NoopWhenIdleTimeoutUnset(t *testing.T) {
	s := newTestServerWithConfig(t, config.ServerConfig{Host: "127.0.0.1", Port: 0}, config.SessionConfig{})
	initRec := doPost(t, s, nil, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`)
	sessionID := initRec.Header().Get(headerSessionID)
	require.NotEmpty(t, sessionID)

	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		s.sweepIdleSessions(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	assert.NotNil(t, s.lookupSession(sessionID))
}

func TestHTTPBackChannel_RequestRoundTripsThroughPost(t *testing.T) {
	s := newTestServer(t)
	initRec := doPost(t, s, nil, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`)
	sessionID := initRec.Header().Get(headerSessionID)
	require.NotEmpty(t, sessionID)

	s.mu.RLock()
	queue := s.queues[sessionID]
	s.mu.RUnlock()
	require.NotNil(t, queue)

	back := httpBackChannel{server: s, sessionID: sessionID}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		raw json.RawMessage
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		raw, err := back.Request(ctx, "elicitation/create", map[string]any{"message": "writes under /tmp"})
		resultCh <- result{raw, err}
	}()

	var sent mcpschema.Request
	select {
	case ev := <-queue:
		require.Equal(t, "message", ev.name)
		req := ev.data.(*mcpschema.Request)
		sent = *req
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the elicitation request to reach the SSE queue")
	}

	replyBody, _ := json.Marshal(map[string]any{
		"id":     json.RawMessage(sent.ID),
		"result": map[string]any{"action": "accept", "content": map[string]any{"decision": "approve"}},
	})
	rec := doPost(t, s, map[string]string{headerSessionID: sessionID}, string(replyBody))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		var decoded struct {
			Action  string         `json:"action"`
			Content map[string]any `json:"content"`
		}
		require.NoError(t, json.Unmarshal(r.raw, &decoded))
		assert.Equal(t, "accept", decoded.Action)
		assert.Equal(t, "approve", decoded.Content["decision"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for back.Request to resolve")
	}
}
