// Package sessions provides the in-memory MCP session registry.
// Sessions are process-local and not persisted; a restart loses them.
package sessions

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AutoSessionID names the shared session used in lenient mode when a
// tools/call arrives without a session id.
const AutoSessionID = "_auto"

// Registry errors surfaced as JSON-RPC session errors in strict mode.
var (
	ErrSessionRequired = errors.New("session required: call initialize first")
	ErrSessionUnknown  = errors.New("unknown session")
)

// Session records one MCP client handshake.
type Session struct {
	ID           string         `json:"id"`
	CreatedAt    time.Time      `json:"createdAt"`
	ClientInfo   map[string]any `json:"clientInfo,omitempty"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
}

// Registry is a guarded in-memory session store. In strict mode,
// tools/call requires a known session; in lenient mode unknown or
// missing sessions are created on the fly.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	strict   bool
}

// NewRegistry creates a session registry. strict controls whether
// Resolve rejects unknown sessions.
func NewRegistry(strict bool) *Registry {
	return &Registry{
		sessions: map[string]*Session{},
		strict:   strict,
	}
}

// Strict reports whether the registry rejects unknown sessions.
func (r *Registry) Strict() bool { return r.strict }

// Create registers a fresh session with a generated id.
func (r *Registry) Create(clientInfo, capabilities map[string]any) *Session {
	return r.createWithID(uuid.NewString(), clientInfo, capabilities)
}

func (r *Registry) createWithID(id string, clientInfo, capabilities map[string]any) *Session {
	session := &Session{
		ID:           id,
		CreatedAt:    time.Now(),
		ClientInfo:   cloneMap(clientInfo),
		Capabilities: cloneMap(capabilities),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return cloneSession(session)
}

// Get returns the session with the given id, or false when absent.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return cloneSession(session), true
}

// Resolve validates the session id attached to a tools/call request.
// Strict mode: an empty id yields ErrSessionRequired and an unknown id
// yields ErrSessionUnknown. Lenient mode: an empty id resolves to the
// shared auto session and an unknown id is registered as-is.
func (r *Registry) Resolve(id string) (*Session, error) {
	if id == "" {
		if r.strict {
			return nil, ErrSessionRequired
		}
		if session, ok := r.Get(AutoSessionID); ok {
			return session, nil
		}
		return r.createWithID(AutoSessionID, nil, nil), nil
	}

	if session, ok := r.Get(id); ok {
		return session, nil
	}
	if r.strict {
		return nil, ErrSessionUnknown
	}
	return r.createWithID(id, nil, nil), nil
}

// Evict removes a session, reporting whether it existed.
func (r *Registry) Evict(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func cloneSession(session *Session) *Session {
	if session == nil {
		return nil
	}
	clone := *session
	clone.ClientInfo = cloneMap(session.ClientInfo)
	clone.Capabilities = cloneMap(session.Capabilities)
	return &clone
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	clone := make(map[string]any, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}
