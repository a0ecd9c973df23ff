package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
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
	"github.com/arborist-labs/statmcp/internal/session"
)

func newTestHandler(t *testing.T) Handler {
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
	return srv.Handle
}

func TestTransport_S1_InitializePingOverLines(t *testing.T) {
	handler := newTestHandler(t)
	cfg := config.StdioConfig{MaxLineBytes: 1 << 20, PoolSize: 2, DrainTimeout: config.Duration(2 * time.Second)}

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping","params":{}}`,
		"",
	}, "\n")

	var out bytes.Buffer
	transport := New(cfg, handler, logging.NewTestLogger().Logger, &out)

	err := transport.Run(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	lines := scanLines(t, &out)
	require.Len(t, lines, 2, "exactly one response for id=1 and one for id=2, none for the notification")

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

	byID := map[float64]map[string]any{first["id"].(float64): first, second["id"].(float64): second}
	initResp := byID[1]
	require.NotNil(t, initResp)
	result := initResp["result"].(map[string]any)
	assert.Equal(t, "2025-06-18", result["protocolVersion"])

	pingResp := byID[2]
	require.NotNil(t, pingResp)
	assert.NotContains(t, pingResp, "error")
}

func TestTransport_ParseErrorOnMalformedLine(t *testing.T) {
	handler := newTestHandler(t)
	cfg := config.StdioConfig{MaxLineBytes: 1 << 20, PoolSize: 1, DrainTimeout: config.Duration(time.Second)}

	var out bytes.Buffer
	transport := New(cfg, handler, logging.NewTestLogger().Logger, &out)

	err := transport.Run(context.Background(), strings.NewReader("not json\n"))
	require.NoError(t, err)

	lines := scanLines(t, &out)
	require.Len(t, lines, 1)

	var resp mcpschema.Response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcpschema.CodeParseError, resp.Error.Code)
}

func TestTransport_DrainsInFlightRequestsBeforeReturning(t *testing.T) {
	slowHandler := func(ctx *session.Context, req *mcpschema.Request) (*mcpschema.Response, error) {
		time.Sleep(50 * time.Millisecond)
		return mcpschema.NewResultResponse(req.ID, map[string]any{})
	}
	cfg := config.StdioConfig{MaxLineBytes: 1 << 20, PoolSize: 2, DrainTimeout: config.Duration(2 * time.Second)}

	var out bytes.Buffer
	transport := New(cfg, slowHandler, logging.NewTestLogger().Logger, &out)

	input := `{"jsonrpc":"2.0","id":1,"method":"ping","params":{}}` + "\n"
	err := transport.Run(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	lines := scanLines(t, &out)
	require.Len(t, lines, 1, "slow handler must finish and emit its response before Run returns")
}

func scanLines(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	var lines []string
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	require.NoError(t, scanner.Err())
	return lines
}
