package session

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/arborist-labs/statmcp/internal/logging"
)

// elicitTimeout bounds how long a server-initiated elicitation request
// waits for the client to answer before the approval gate treats it as
// denied. This is the "bounded callback channel" spec.md §4.3 requires:
// a hung or disconnected client cannot stall a request indefinitely.
const elicitTimeout = 5 * time.Minute

// BackChannel is how a handler asks its transport to deliver an
// out-of-band message to the client: an SSE event for HTTP, a JSON-RPC
// notification line on stdout for stdio. Request additionally supports a bounded
// server-initiated round trip (elicitation/create) over the same channel.
type BackChannel interface {
	Notify(method string, params any)
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// Elicit issues a server-initiated elicitation for an approval category
// and blocks until the client answers. Transports implement this by
// sending an elicitation/create request over their back channel and
// waiting for the matching response; internal/approval calls it through
// this type to avoid importing the transport layer.
type Elicit func(categoryID, description string) (ApprovalDecision, error)

// elicitViaBackChannel renders an elicitation/create request for category
// and blocks on back.Request until the client answers, times out, or the
// connection is lost. A client response other than an accepted "approve"
// decision denies the category; there is no ambiguous third state.
func elicitViaBackChannel(parent context.Context, back BackChannel, categoryID, description string) (ApprovalDecision, error) {
	ctx, cancel := context.WithTimeout(parent, elicitTimeout)
	defer cancel()

	raw, err := back.Request(ctx, "elicitation/create", map[string]any{
		"message": description,
		"requestedSchema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"decision": map[string]any{
					"type": "string",
					"enum": []string{"approve", "deny"},
				},
			},
			"required": []string{"decision"},
		},
	})
	if err != nil {
		return DecisionDenied, fmt.Errorf("session: elicitation for %s: %w", categoryID, err)
	}

	var result struct {
		Action  string         `json:"action"`
		Content map[string]any `json:"content"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return DecisionDenied, fmt.Errorf("session: malformed elicitation response: %w", err)
	}
	if result.Action != "accept" {
		return DecisionDenied, nil
	}
	if decision, _ := result.Content["decision"].(string); decision == "approve" {
		return DecisionApproved, nil
	}
	return DecisionDenied, nil
}

// principalFieldDisallowed matches anything outside logging.WithPrincipal's
// accepted character set; client-supplied name/version strings are
// sanitized against it rather than trusted verbatim.
var principalFieldDisallowed = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

func sanitizePrincipalField(s string) string {
	if s == "" {
		return "unknown"
	}
	cleaned := principalFieldDisallowed.ReplaceAllString(s, "_")
	if len(cleaned) > 64 {
		cleaned = cleaned[:64]
	}
	return cleaned
}

// Context is the per-request execution context passed to every handler.
// It embeds context.Context so handlers can use it directly wherever a
// context.Context is expected (e.g. exec.CommandContext).
type Context struct {
	context.Context

	Session     *Session
	RequestID   string
	Logger      *logging.Logger
	Progress    *ProgressSink
	Cancel      *CancelToken
	BackChannel BackChannel
	Elicit      Elicit
}

// NewContext builds a request Context wrapping parent, bound to session
// and requestID, logging through logger, and emitting progress/notifications
// through back.
func NewContext(parent context.Context, sess *Session, requestID string, logger *logging.Logger, back BackChannel) *Context {
	cancel := NewCancelToken()

	if client := sess.ClientInfo(); client.Name != "" {
		parent = logging.WithPrincipal(parent, &logging.Principal{
			ClientName:      sanitizePrincipalField(client.Name),
			ClientVersion:   sanitizePrincipalField(client.Version),
			ProtocolVersion: sanitizePrincipalField(sess.NegotiatedProtocol()),
		})
	}

	ctx, stop := context.WithCancel(parent)

	rc := &Context{
		Context:     ctx,
		Session:     sess,
		RequestID:   requestID,
		Logger:      logger,
		Cancel:      cancel,
		BackChannel: back,
	}
	rc.Progress = NewProgressSink(func(ev ProgressEvent) {
		back.Notify("notifications/progress", map[string]any{
			"progressToken": ev.Token,
			"progress":      ev.Progress,
			"total":         ev.Total,
			"message":       ev.Message,
		})
	})
	rc.Elicit = func(categoryID, description string) (ApprovalDecision, error) {
		return elicitViaBackChannel(ctx, back, categoryID, description)
	}

	sess.RegisterCancel(requestID, cancel)

	go func() {
		defer sess.UnregisterCancel(requestID)
		select {
		case <-cancel.Done():
			stop()
		case <-ctx.Done():
		}
	}()

	return rc
}

// LogMessage forwards a logging/message notification through the back channel.
func (c *Context) LogMessage(level, loggerName, message string) {
	c.BackChannel.Notify("notifications/message", map[string]any{
		"level":  level,
		"logger": loggerName,
		"data":   message,
	})
}
