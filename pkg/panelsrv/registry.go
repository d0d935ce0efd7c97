package panelsrv

import (
	"sync"

	"github.com/halvardtech/itv2link/pkg/perr"
	"github.com/halvardtech/itv2link/pkg/session"
)

// sessionRegistry maps the session_id captured from each connection's
// default header to its live Session, giving perr.SessionNotFound a
// concrete producer for lookups made outside the accept loop (e.g. a
// future command-dispatch API keyed by panel identity).
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*session.Session)}
}

func (r *sessionRegistry) put(id string, s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = s
}

func (r *sessionRegistry) delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get looks up a connected session by its session_id.
func (r *sessionRegistry) Get(id string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, perr.New(perr.SessionNotFound, "no session registered for id "+id)
	}
	return s, nil
}

// Len reports how many sessions are currently registered.
func (r *sessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
