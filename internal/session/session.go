// Package session models MCP session lifecycle and per-request context.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a session's position in the CREATED -> READY -> CLOSED lifecycle.
type State int

const (
	StateCreated State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ApprovalDecision is the outcome of an approval-category gate within a session.
type ApprovalDecision int

const (
	DecisionUnasked ApprovalDecision = iota
	DecisionApproved
	DecisionDenied
)

// ClientInfo identifies the connecting client, captured from initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ErrAlreadyReady is returned by Initialize when called on a non-CREATED session.
var ErrAlreadyReady = errors.New("session: already initialized")

// ErrClosed is returned by any transition attempted on a CLOSED session.
var ErrClosed = errors.New("session: closed")

// Session is per-client conversational state: lifecycle, approval
// decisions, and negotiated capabilities. A stdio transport owns exactly
// one Session; an HTTP transport owns a map of them.
type Session struct {
	mu sync.RWMutex

	id                 string
	state              State
	createdAt          time.Time
	lastSeen           time.Time
	clientInfo         ClientInfo
	negotiatedProtocol string
	approvals          map[string]ApprovalDecision

	// pendingApproval serializes concurrent matches against the same
	// category while a client elicitation is outstanding.
	pendingApproval map[string]chan ApprovalDecision

	// cancels maps an in-flight request id to the CancelToken its Context
	// was built with, so a notifications/cancelled notification naming
	// that id can fire the matching request's token.
	cancels map[string]*CancelToken
}

// New creates a session in state CREATED with a fresh opaque id.
func New() *Session {
	now := time.Now()
	return &Session{
		id:              uuid.NewString(),
		state:           StateCreated,
		createdAt:       now,
		lastSeen:        now,
		approvals:       make(map[string]ApprovalDecision),
		pendingApproval: make(map[string]chan ApprovalDecision),
		cancels:         make(map[string]*CancelToken),
	}
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Touch refreshes the last-seen timestamp used for idle-timeout sweeps.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// IdleSince reports how long it has been since the session last saw activity.
func (s *Session) IdleSince() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastSeen)
}

// Initialize transitions CREATED -> READY, recording the negotiated
// protocol version and client info from a successful initialize call.
func (s *Session) Initialize(protocolVersion string, client ClientInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	if s.state != StateCreated {
		return ErrAlreadyReady
	}
	s.negotiatedProtocol = protocolVersion
	s.clientInfo = client
	s.state = StateReady
	return nil
}

// Close transitions the session to CLOSED on transport disconnect or idle
// timeout. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
}

// ClientInfo returns the negotiated client identity, valid once READY.
func (s *Session) ClientInfo() ClientInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientInfo
}

// NegotiatedProtocol returns the protocol version agreed at initialize.
func (s *Session) NegotiatedProtocol() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.negotiatedProtocol
}

// Decision returns the current approval decision for category.
func (s *Session) Decision(category string) ApprovalDecision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.approvals[category]
}

// SetDecision memoizes a decision for category for the lifetime of the session.
func (s *Session) SetDecision(category string, decision ApprovalDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals[category] = decision
	if ch, pending := s.pendingApproval[category]; pending {
		delete(s.pendingApproval, category)
		close(ch)
		// Closing the channel carries no value; waiters re-read s.Decision
		// after it closes (see resolveCategory in internal/approval).
		_ = ch
	}
}

// RegisterCancel associates requestID with the CancelToken its Context was
// built with, so a later notifications/cancelled naming that id can reach
// it. A no-op for notifications, which carry no request id.
func (s *Session) RegisterCancel(requestID string, token *CancelToken) {
	if requestID == "" {
		return
	}
	s.mu.Lock()
	s.cancels[requestID] = token
	s.mu.Unlock()
}

// UnregisterCancel drops the bookkeeping entry for requestID once its
// request has completed, so the map does not grow unbounded over a
// session's lifetime.
func (s *Session) UnregisterCancel(requestID string) {
	if requestID == "" {
		return
	}
	s.mu.Lock()
	delete(s.cancels, requestID)
	s.mu.Unlock()
}

// CancelRequest fires the CancelToken registered for requestID, reporting
// whether a matching in-flight request was found. Firing an already-fired
// or already-completed token's absence is not an error: the request may
// have finished between the client sending cancelled and it arriving here.
func (s *Session) CancelRequest(requestID string) bool {
	s.mu.RLock()
	token, ok := s.cancels[requestID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	token.Fire()
	return true
}

// AwaitOrStartApproval returns (decision, true) if category already has a
// memoized decision. Otherwise it registers the caller as the one that will
// resolve the pending elicitation and returns (DecisionUnasked, false);
// subsequent concurrent callers receive a non-nil wait channel, closed by
// SetDecision, so only one approval prompt per category is ever outstanding.
func (s *Session) AwaitOrStartApproval(category string) (decision ApprovalDecision, resolved bool, wait <-chan ApprovalDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.approvals[category]; ok {
		return d, true, nil
	}
	if ch, pending := s.pendingApproval[category]; pending {
		return DecisionUnasked, false, ch
	}
	ch := make(chan ApprovalDecision)
	s.pendingApproval[category] = ch
	return DecisionUnasked, false, nil
}
