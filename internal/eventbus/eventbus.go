// Package eventbus embeds a single-process NATS server and connection so
// worker lifecycle events and approval decisions can be published for
// observability (SSE relay, external persistence) without standing up an
// external broker for local and single-node deployments.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/arborist-labs/statmcp/internal/config"
)

// Bus wraps an embedded NATS server plus a connection used to publish
// events. It satisfies worker.EventPublisher.
type Bus struct {
	srv  *server.Server
	conn *nats.Conn
}

// Start launches an in-process NATS server (no external ports required
// unless explicitly configured) and connects to it.
func Start(cfg config.EventBusConfig) (*Bus, error) {
	opts := &server.Options{
		DontListen: cfg.StoreDir == "", // in-memory-only transport when no store dir configured
		JetStream:  cfg.StoreDir != "",
		StoreDir:   cfg.StoreDir,
	}

	srv, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("eventbus: creating embedded server: %w", err)
	}

	srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("eventbus: embedded server did not become ready")
	}

	conn, err := nats.Connect("", nats.InProcessServer(srv))
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("eventbus: connecting to embedded server: %w", err)
	}

	return &Bus{srv: srv, conn: conn}, nil
}

// Publish sends payload, JSON-marshaled, on subject. Errors are swallowed
// (logged by the caller's wrapper, typically) since event publication is
// observability, not correctness: a dropped event never blocks a tool call.
func (b *Bus) Publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = b.conn.Publish(subject, data)
}

// Subscribe registers a handler for subject (may include wildcards, e.g.
// "operations.*.*.completed"), returning an unsubscribe function.
func (b *Bus) Subscribe(subject string, handler func(subject string, data []byte)) (func() error, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("eventbus: subscribing to %s: %w", subject, err)
	}
	return sub.Unsubscribe, nil
}

// Close drains the connection and shuts down the embedded server.
func (b *Bus) Close() error {
	if b.conn != nil {
		if err := b.conn.Drain(); err != nil {
			b.conn.Close()
		}
	}
	if b.srv != nil {
		b.srv.Shutdown()
		b.srv.WaitForShutdown()
	}
	return nil
}
