package api

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tidemq/broker-core/internal/metrics"
)

// SessionState tracks the per-connection authentication lifecycle:
// Unauthenticated -> Authenticating -> Authenticated -> Invalidated.
// Invalidated forces a transition back to Unauthenticated before another
// request is served.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticating
	StateAuthenticated
	StateInvalidated
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Session is one connection's authentication state.
type Session struct {
	ID string

	mu        sync.Mutex
	state     SessionState
	principal string
	updatedAt time.Time
}

// State returns the current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Principal returns the authenticated principal, empty unless Authenticated.
func (s *Session) Principal() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return ""
	}
	return s.principal
}

func (s *Session) beginAuth() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAuthenticating
	s.principal = ""
	s.updatedAt = time.Now()
}

func (s *Session) markAuthenticated(principal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAuthenticated
	s.principal = principal
	s.updatedAt = time.Now()
}

func (s *Session) markUnauthenticated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateUnauthenticated
	s.principal = ""
	s.updatedAt = time.Now()
}

// invalidate returns the principal the session held, if any.
func (s *Session) invalidate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	principal := ""
	if s.state == StateAuthenticated {
		principal = s.principal
	}
	s.state = StateInvalidated
	s.principal = ""
	s.updatedAt = time.Now()
	return principal
}

// SessionRegistry tracks sessions by connection. Invalidation discards the
// session's trust and purges the principal's cached decisions, so the next
// request re-evaluates from scratch.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	logger  *zap.Logger
	metrics *metrics.Metrics
	// onInvalidate receives the principal whose cached decisions must be
	// purged. May be nil.
	onInvalidate func(principal string)
}

// NewSessionRegistry creates a registry. m and onInvalidate may be nil.
func NewSessionRegistry(logger *zap.Logger, m *metrics.Metrics, onInvalidate func(string)) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRegistry{
		sessions:     make(map[string]*Session),
		logger:       logger,
		metrics:      m,
		onInvalidate: onInvalidate,
	}
}

// Acquire returns the session for the connection, creating it if needed. An
// invalidated session is reset to Unauthenticated here: the reset happens
// before any authentication or authorization on the new request, so no
// request can observe a mix of old-principal and invalidated state.
func (r *SessionRegistry) Acquire(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		sess = &Session{ID: id, state: StateUnauthenticated, updatedAt: time.Now()}
		r.sessions[id] = sess
	}
	if sess.State() == StateInvalidated {
		sess.markUnauthenticated()
	}
	return sess
}

// Get returns the session for the connection, or nil when untracked.
func (r *SessionRegistry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Invalidate discards the session's trust after a backend failure.
func (r *SessionRegistry) Invalidate(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return
	}

	principal := sess.invalidate()
	r.logger.Warn("Session invalidated",
		zap.String("session", id),
		zap.String("principal", principal))
	if r.metrics != nil {
		r.metrics.RecordSessionInvalidation()
	}
	if r.onInvalidate != nil && principal != "" {
		r.onInvalidate(principal)
	}
}

// InvalidateAll discards every session, for administrative revocation.
func (r *SessionRegistry) InvalidateAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Invalidate(id)
	}
}

// Remove drops a closed connection's session.
func (r *SessionRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of tracked sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
