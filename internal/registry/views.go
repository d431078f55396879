package registry

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/skyfeed/internal/idgen"
	"github.com/alfredjeanlab/skyfeed/internal/model"
)

// ErrViewNotFound is returned when a view id is not registered.
var ErrViewNotFound = errors.New("view not found")

// Views is the set of live views.
type Views struct {
	mu    sync.RWMutex
	views map[string]*model.View
}

// NewViews creates an empty view registry.
func NewViews() *Views {
	return &Views{views: make(map[string]*model.View)}
}

// GetOrCreate returns the view for id, or registers a new one with an empty
// filter. An empty id gets a freshly generated one. An existing view keeps
// its original session.
func (r *Views) GetOrCreate(id, sessionID string) model.View {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		if v, ok := r.views[id]; ok {
			return *v
		}
	} else {
		id = idgen.ViewID()
	}

	v := &model.View{ID: id, SessionID: sessionID}
	r.views[id] = v
	slog.Debug("registry: view created", "view_id", id, "session_id", sessionID)
	return *v
}

// Get returns a copy of the view.
func (r *Views) Get(id string) (model.View, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.views[id]
	if !ok {
		return model.View{}, false
	}
	return *v, true
}

// SetFilter stores filter verbatim on the view. Short filters are kept as
// typed; model.EffectiveFilter decides what they mean at query time.
func (r *Views) SetFilter(id, filter string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[id]
	if !ok {
		return ErrViewNotFound
	}
	v.Filter = filter
	return nil
}

// Remove deletes the view and reports whether it was present.
func (r *Views) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.views[id]; !ok {
		return false
	}
	delete(r.views, id)
	slog.Debug("registry: view removed", "view_id", id)
	return true
}

// Len returns the number of live views.
func (r *Views) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

// CountBySession returns the number of live views per session id.
func (r *Views) CountBySession() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, v := range r.views {
		counts[v.SessionID]++
	}
	return counts
}
