// Package server exposes the live feed over HTTP: one SSE stream per view,
// a filter control endpoint, and read-only query and stats endpoints.
package server

import (
	"log/slog"
	"time"

	"github.com/alfredjeanlab/skyfeed/internal/events"
	"github.com/alfredjeanlab/skyfeed/internal/feed"
	"github.com/alfredjeanlab/skyfeed/internal/live"
	"github.com/alfredjeanlab/skyfeed/internal/notify"
	"github.com/alfredjeanlab/skyfeed/internal/registry"
	"github.com/alfredjeanlab/skyfeed/internal/store"
)

// DefaultKeepalive is how often idle streams get a comment line.
const DefaultKeepalive = 15 * time.Second

// FeedStatus reports the upstream connection state.
type FeedStatus interface {
	State() feed.State
	Reconnects() int64
}

// QueueStatus reports the number of posts waiting to be flushed.
type QueueStatus interface {
	Len() int
}

// Config holds the Server's collaborators. Store, Bus, Sessions and Views
// are required.
type Config struct {
	Store     store.Store
	Bus       *notify.Bus
	Sessions  *registry.Sessions
	Views     *registry.Views
	Publisher events.Publisher
	Events    *EventHub
	Feed      FeedStatus
	Queue     QueueStatus
	Logger    *slog.Logger

	// QueryLimit caps the posts per live render and per /v1/posts request.
	QueryLimit int
	// Keepalive is the idle ping period on streams; 0 means DefaultKeepalive.
	Keepalive time.Duration
	// ActiveWindow is how recently a session must have connected to count
	// as active in /v1/stats; 0 means one hour.
	ActiveWindow time.Duration
	// AuthToken, when set, protects the read API with a Bearer token.
	AuthToken string
}

// Server handles HTTP requests against the shared registries and store.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	started time.Time
}

// New returns a Server. Optional collaborators left nil get inert defaults.
func New(cfg Config) *Server {
	if cfg.Publisher == nil {
		cfg.Publisher = events.NoopPublisher{}
	}
	if cfg.Events == nil {
		cfg.Events = NewEventHub()
	}
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = DefaultKeepalive
	}
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: logger, started: time.Now()}
}

// liveConfig is the configuration handed to every live.Session.
func (s *Server) liveConfig() live.Config {
	return live.Config{
		Store:      s.cfg.Store,
		Bus:        s.cfg.Bus,
		Views:      s.cfg.Views,
		Logger:     s.logger,
		QueryLimit: s.cfg.QueryLimit,
		Keepalive:  s.cfg.Keepalive,
	}
}

// inputError indicates invalid user input.
// Transport layers map this to 400.
type inputError string

func (e inputError) Error() string { return string(e) }
