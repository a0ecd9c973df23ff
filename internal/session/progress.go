package session

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// progressCoalesceHz is the maximum rate at which a single progress token
// emits notifications: reports arriving less than ~50ms after the last sent
// one are dropped, not deferred.
const progressCoalesceHz = 20 // 1 per 50ms

// ProgressEvent is one notifications/progress payload.
type ProgressEvent struct {
	Token    string
	Progress float64
	Total    *float64
	Message  string
}

// ProgressSink rate-limits progress reports per token and forwards
// surviving events to a sender function supplied by the transport.
type ProgressSink struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	send     func(ProgressEvent)
}

// NewProgressSink returns a sink that forwards accepted events to send.
func NewProgressSink(send func(ProgressEvent)) *ProgressSink {
	return &ProgressSink{
		limiters: make(map[string]*rate.Limiter),
		send:     send,
	}
}

// Report emits a progress event for token, thinning bursts faster than
// progressCoalesceHz by dropping every report the limiter does not allow,
// the most recent one included.
func (p *ProgressSink) Report(token string, progress float64, total *float64, message string) {
	p.mu.Lock()
	limiter, ok := p.limiters[token]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(progressCoalesceHz), 1)
		p.limiters[token] = limiter
	}
	p.mu.Unlock()

	if !limiter.Allow() {
		return
	}
	p.send(ProgressEvent{Token: token, Progress: progress, Total: total, Message: message})
}

// Evict removes the limiter for token. The server path does not call it:
// NewContext builds a fresh sink for every request, so the limiter map is
// dropped together with that request's Context.
func (p *ProgressSink) Evict(token string) {
	p.mu.Lock()
	delete(p.limiters, token)
	p.mu.Unlock()
}

// CancelToken is a one-shot signal fired on client cancellation or
// deadline expiry, observed cooperatively by handlers and the worker bridge.
type CancelToken struct {
	once sync.Once
	ch   chan struct{}
	at   time.Time
	mu   sync.Mutex
}

// NewCancelToken returns an unfired token.
func NewCancelToken() *CancelToken {
	return &CancelToken{ch: make(chan struct{})}
}

// Fire signals the token. Idempotent.
func (c *CancelToken) Fire() {
	c.once.Do(func() {
		c.mu.Lock()
		c.at = time.Now()
		c.mu.Unlock()
		close(c.ch)
	})
}

// Done returns a channel closed when the token fires, for use in select
// statements alongside context.Context.Done().
func (c *CancelToken) Done() <-chan struct{} {
	return c.ch
}

// Fired reports whether the token has already fired.
func (c *CancelToken) Fired() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}
