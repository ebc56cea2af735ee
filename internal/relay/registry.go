package relay

import (
	"errors"
	"sync"
)

// ErrSessionExists is returned when a client starts a second session.
var ErrSessionExists = errors.New("session already active for client")

// Registry maps client ids to their live session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// add registers sess unless its client already has one.
func (r *Registry) add(sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sess.ClientID]; ok {
		return ErrSessionExists
	}
	r.sessions[sess.ClientID] = sess
	return nil
}

// remove deletes sess, leaving any newer session for the same client in place.
func (r *Registry) remove(sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[sess.ClientID] == sess {
		delete(r.sessions, sess.ClientID)
	}
}

// Get returns the client's session, if any.
func (r *Registry) Get(clientID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[clientID]
	return sess, ok
}

// Len counts registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the registered sessions in no particular order.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}
