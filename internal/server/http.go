package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/alfredjeanlab/skyfeed/internal/events"
	"github.com/alfredjeanlab/skyfeed/internal/metrics"
	"github.com/alfredjeanlab/skyfeed/internal/model"
	"github.com/alfredjeanlab/skyfeed/internal/notify"
	"github.com/alfredjeanlab/skyfeed/internal/registry"
)

const (
	// maxFilterLength bounds the raw filter a viewer may submit.
	maxFilterLength = 256
	// maxPostsLimit bounds the page size of GET /v1/posts.
	maxPostsLimit = 1000
	// maxFilterBody bounds the POST /v1/filter request body.
	maxFilterBody = 4 << 10
)

// Handler returns an http.Handler with all routes registered, wrapped in
// recovery, request logging and (when configured) bearer-token auth.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("POST /v1/filter", s.handleSetFilter)
	mux.HandleFunc("GET /v1/posts", s.handleListPosts)
	mux.HandleFunc("GET /v1/stats", s.handleGetStats)
	mux.HandleFunc("GET /v1/events", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	var h http.Handler = AuthMiddleware(s.cfg.AuthToken, mux)
	h = LoggingMiddleware(s.logger, h)
	return RecoveryMiddleware(s.logger, h)
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type setFilterRequest struct {
	ViewID string `json:"view_id"`
	Filter string `json:"filter"`
}

// handleSetFilter handles POST /v1/filter.
func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req setFilterRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFilterBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateFilterRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.cfg.Views.SetFilter(req.ViewID, req.Filter); err != nil {
		if errors.Is(err, registry.ErrViewNotFound) {
			writeError(w, http.StatusNotFound, "view not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.cfg.Bus.PublishScoped(req.ViewID)
	metrics.Notifications.WithLabelValues(notify.Scoped.String()).Inc()

	var sessionID string
	if v, ok := s.cfg.Views.Get(req.ViewID); ok {
		sessionID = v.SessionID
	}
	if err := s.cfg.Publisher.Publish(r.Context(), events.TopicFilterChanged, events.FilterChanged{
		ViewID:    req.ViewID,
		SessionID: sessionID,
		Filter:    req.Filter,
	}); err != nil {
		s.logger.Warn("failed to publish event", "topic", events.TopicFilterChanged, "view_id", req.ViewID, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func validateFilterRequest(req *setFilterRequest) error {
	if req.ViewID == "" {
		return inputError("view_id is required")
	}
	if len(req.Filter) > maxFilterLength {
		return inputError("filter must be at most " + strconv.Itoa(maxFilterLength) + " bytes")
	}
	return nil
}

// handleListPosts handles GET /v1/posts.
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := q.Get("filter")

	limit := s.cfg.QueryLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxPostsLimit)
	}

	posts, err := s.cfg.Store.QueryPosts(r.Context(), filter, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query posts")
		return
	}
	total, err := s.cfg.Store.CountPosts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count posts")
		return
	}

	writeJSON(w, http.StatusOK, model.PostPage{
		Posts:           posts,
		Total:           total,
		Filter:          filter,
		EffectiveFilter: model.EffectiveFilter(filter),
	})
}

// handleGetStats handles GET /v1/stats.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	total, err := s.cfg.Store.CountPosts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count posts")
		return
	}

	stats := model.Stats{
		Posts:          total,
		Sessions:       s.cfg.Sessions.Len(),
		ActiveSessions: s.cfg.Sessions.Active(s.cfg.ActiveWindow),
		Views:          s.cfg.Views.Len(),
		Subscribers: model.Listeners{
			Global: s.cfg.Bus.Len(notify.Global),
			Scoped: s.cfg.Bus.Len(notify.Scoped),
		},
		UptimeSeconds: time.Since(s.started).Seconds(),
	}
	if s.cfg.Queue != nil {
		stats.Queued = s.cfg.Queue.Len()
	}
	if s.cfg.Feed != nil {
		stats.Feed = model.FeedStats{
			State:      s.cfg.Feed.State().String(),
			Reconnects: s.cfg.Feed.Reconnects(),
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
