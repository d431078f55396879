// Package registry tracks visitor sessions and the live views opened under
// them. Both registries are plain values created at startup and passed to
// whatever needs them.
//
// Sessions live for the process lifetime. Views are removed only when their
// live connection closes.
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/skyfeed/internal/idgen"
	"github.com/alfredjeanlab/skyfeed/internal/model"
)

// Sessions is the set of known visitor sessions.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState

	// newName is swapped out in tests.
	newName func() string
}

type sessionState struct {
	session  model.Session
	lastSeen time.Time
}

// NewSessions creates an empty session registry.
func NewSessions() *Sessions {
	return &Sessions{
		sessions: make(map[string]*sessionState),
		newName:  DisplayName,
	}
}

// GetOrCreate returns the session for id. An empty or unknown id allocates a
// new session with a fresh id and display name; the caller's id is not
// reused, so clients cannot choose their own session id.
func (r *Sessions) GetOrCreate(id string) model.Session {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		if state, ok := r.sessions[id]; ok {
			state.lastSeen = now
			return state.session
		}
	}

	s := model.Session{ID: idgen.SessionID(), DisplayName: r.newName()}
	r.sessions[s.ID] = &sessionState{session: s, lastSeen: now}
	slog.Debug("registry: session created", "session_id", s.ID, "display_name", s.DisplayName)
	return s
}

// Get returns the session for id without creating one.
func (r *Sessions) Get(id string) (model.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.sessions[id]
	if !ok {
		return model.Session{}, false
	}
	return state.session, true
}

// Active returns the number of sessions resolved within the last window.
// A zero window counts every session.
func (r *Sessions) Active(window time.Duration) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if window <= 0 {
		return len(r.sessions)
	}
	cutoff := time.Now().Add(-window)
	n := 0
	for _, state := range r.sessions {
		if state.lastSeen.After(cutoff) {
			n++
		}
	}
	return n
}

// Len returns the number of sessions.
func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
