// Package stdio implements the line-delimited stdio MCP transport
// (spec.md §4.8): one session per process, UTF-8 line framing on stdin,
// single-line JSON-RPC responses on stdout, structured logs on stderr
// only, bounded-concurrency dispatch, and graceful drain on EOF or
// signal.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/arborist-labs/statmcp/internal/config"
	"github.com/arborist-labs/statmcp/internal/eventbus"
	"github.com/arborist-labs/statmcp/internal/logging"
	"github.com/arborist-labs/statmcp/internal/mcpschema"
	"github.com/arborist-labs/statmcp/internal/sanitize"
	"github.com/arborist-labs/statmcp/internal/session"
)

// pendingRequestTTL bounds how long a server-initiated request (e.g.
// elicitation/create) waits for the client's reply line before giving up.
const pendingRequestTTL = 5 * time.Minute

// Handler is the entry point the transport calls for every decoded
// request; mcpserver.Server.Handle satisfies this.
type Handler func(ctx *session.Context, req *mcpschema.Request) (*mcpschema.Response, error)

// Transport runs a single session's request/response loop over stdin/stdout.
type Transport struct {
	cfg     config.StdioConfig
	handler Handler
	log     *logging.Logger
	bus     *eventbus.Bus

	out   io.Writer
	outMu sync.Mutex

	idSeq   atomic.Int64
	pending sync.Map // requestKey -> chan json.RawMessage
}

// New builds a Transport that dispatches decoded requests to handler.
func New(cfg config.StdioConfig, handler Handler, log *logging.Logger, out io.Writer) *Transport {
	return &Transport{cfg: cfg, handler: handler, log: log, out: out}
}

// WithEventBus attaches the event bus worker lifecycle events are
// published on; once set, Run subscribes to this session's events and
// relays them as structured stderr log lines.
func (t *Transport) WithEventBus(bus *eventbus.Bus) *Transport {
	t.bus = bus
	return t
}

// backChannel writes notifications as stdout lines, serialized against
// response writes by the same mutex.
type backChannel struct {
	t *Transport
}

func (b backChannel) Notify(method string, params any) {
	notif := mcpschema.NewNotification(method, params)
	b.t.writeLine(notif)
}

// Request sends method as a server-initiated JSON-RPC request on stdout
// and blocks until the matching reply line arrives on stdin, ctx is done,
// or pendingRequestTTL elapses.
func (b backChannel) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := b.t.idSeq.Add(1)
	idRaw := json.RawMessage(strconv.FormatInt(id, 10))
	key := requestKey(idRaw)

	ch := make(chan json.RawMessage, 1)
	b.t.pending.Store(key, ch)
	defer b.t.pending.Delete(key)

	b.t.writeLine(mcpschema.NewRequest(idRaw, method, params))

	timeout := time.NewTimer(pendingRequestTTL)
	defer timeout.Stop()

	select {
	case payload := <-ch:
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout.C:
		return nil, fmt.Errorf("stdio: no reply to %s", method)
	}
}

// tryDeliverResponse routes a client reply line (one with no "method" key)
// to the sendRequest call awaiting it. Reports whether the line was a
// response it handled, so the caller can skip normal request dispatch.
func (t *Transport) tryDeliverResponse(line []byte) bool {
	var probe struct {
		Method *string         `json:"method"`
		ID     json.RawMessage `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(line, &probe); err != nil || probe.Method != nil {
		return false
	}

	key := requestKey(probe.ID)
	ch, ok := t.pending.LoadAndDelete(key)
	if !ok {
		return true // well-formed response to an id we no longer track; drop it
	}
	payload := probe.Result
	if payload == nil {
		payload = probe.Error
	}
	ch.(chan json.RawMessage) <- payload
	return true
}

func (t *Transport) writeLine(v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		t.log.Error(context.Background(), "stdio: failed to marshal outbound message", zap.Error(err))
		return
	}
	t.outMu.Lock()
	defer t.outMu.Unlock()
	t.out.Write(raw)
	t.out.Write([]byte("\n"))
}

// Run reads newline-delimited JSON-RPC messages from in until EOF or ctx
// is cancelled, dispatching each to a bounded worker pool and writing each
// response as its handler finishes, so responses to concurrent requests
// may leave in a different order than the requests arrived. It returns once every
// in-flight request has drained (up to DrainTimeout) or the deadline
// elapses.
func (t *Transport) Run(ctx context.Context, in io.Reader) error {
	sess := session.New()
	back := backChannel{t: t}

	if t.bus != nil {
		subject := fmt.Sprintf("operations.%s.>", sanitize.Identifier(sess.ID()))
		unsub, err := t.bus.Subscribe(subject, func(subject string, data []byte) {
			var payload any
			if err := json.Unmarshal(data, &payload); err != nil {
				payload = string(data)
			}
			t.log.Info(ctx, "stdio: worker event", zap.String("subject", subject), zap.Any("payload", payload))
		})
		if err != nil {
			return fmt.Errorf("stdio: subscribing to event bus: %w", err)
		}
		defer unsub()
	}

	scanner := bufio.NewScanner(in)
	maxLine := t.cfg.MaxLineBytes
	if maxLine <= 0 {
		maxLine = 1 << 20
	}
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	poolSize := t.cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}
	sem := make(chan struct{}, poolSize)

	var wg sync.WaitGroup

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		lineCopy := make([]byte, len(line))
		copy(lineCopy, line)

		if trimmed := bytes.TrimSpace(lineCopy); len(trimmed) > 0 && trimmed[0] == '[' {
			t.writeLine(mcpschema.NewErrorResponse(nil, mcpschema.CodeInvalidRequest, "batch requests are not supported", nil))
			continue
		}

		if t.tryDeliverResponse(lineCopy) {
			continue
		}

		var req mcpschema.Request
		if err := json.Unmarshal(lineCopy, &req); err != nil {
			t.writeLine(mcpschema.NewErrorResponse(nil, mcpschema.CodeParseError, "parse error", nil))
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			continue
		}

		wg.Add(1)
		go func(req mcpschema.Request) {
			defer wg.Done()
			defer func() { <-sem }()

			reqCtx := session.NewContext(ctx, sess, requestKey(req.ID), t.log, back)
			resp, err := t.handler(reqCtx, &req)
			if err != nil {
				t.log.Error(ctx, "stdio: handler returned error", zap.Error(err), zap.String("method", req.Method))
				return
			}
			if resp != nil {
				t.writeLine(resp)
			}
		}(req)
	}

	drainTimeout := t.cfg.DrainTimeout.Duration()
	if drainTimeout <= 0 {
		drainTimeout = 10 * time.Second
	}

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		t.log.Warn(ctx, "stdio: drain timeout elapsed with requests still in flight")
	}

	sess.Close()
	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func requestKey(id json.RawMessage) string {
	if len(id) == 0 {
		return ""
	}
	return string(id)
}
