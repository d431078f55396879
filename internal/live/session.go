// Package live runs one query-and-render loop per connected viewer.
//
// A Session subscribes to the global "new posts" topic and to its own view's
// scoped "filter changed" topic, renders once on start, and renders again on
// every signal. It moves through Active, Closing and Closed. Closing is
// entered on context cancellation, an explicit Close, or a store or render
// error; it releases both subscriptions and removes the view from the
// registry exactly once.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/skyfeed/internal/metrics"
	"github.com/alfredjeanlab/skyfeed/internal/model"
	"github.com/alfredjeanlab/skyfeed/internal/notify"
	"github.com/alfredjeanlab/skyfeed/internal/registry"
	"github.com/alfredjeanlab/skyfeed/internal/store"
)

// ErrViewRemoved is returned by Run when the view disappeared from the
// registry while the session was still active.
var ErrViewRemoved = errors.New("view removed from registry")

// State is a Session's lifecycle position.
type State int32

const (
	StateActive State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Snapshot is everything a renderer needs for one update.
type Snapshot struct {
	ViewID      string
	SessionID   string
	DisplayName string

	// Filter is the raw filter as typed; EffectiveFilter is what was queried.
	Filter          string
	EffectiveFilter string

	Posts []*model.Post
	Total int

	// Seq numbers renders within the session, starting at 1.
	Seq           uint64
	QueryDuration time.Duration
	RenderedAt    time.Time
}

// Renderer delivers a snapshot to the viewer. An error ends the session.
type Renderer interface {
	Render(ctx context.Context, snap Snapshot) error
}

// Pinger is implemented by renderers whose transport needs traffic while
// idle. Ping is called every Config.Keepalive.
type Pinger interface {
	Ping() error
}

// Config holds a Session's collaborators.
type Config struct {
	Store  store.Store
	Bus    *notify.Bus
	Views  *registry.Views
	Logger *slog.Logger

	// QueryLimit caps the posts per render; 0 means model.DefaultQueryLimit.
	QueryLimit int
	// Keepalive is the Ping period; 0 disables pings.
	Keepalive time.Duration
}

// Session is the live loop for one view.
type Session struct {
	cfg         Config
	viewID      string
	sessionID   string
	displayName string
	renderer    Renderer
	logger      *slog.Logger

	state atomic.Int32
	seq   atomic.Uint64

	// renderMu makes the Active check and the render one step with respect
	// to Close.
	renderMu  sync.Mutex
	closeOnce sync.Once
	done      chan struct{}

	global *notify.Subscription
	scoped *notify.Subscription
}

// New creates a Session for view. The view must already be registered in
// cfg.Views; the session takes over responsibility for removing it.
func New(cfg Config, view model.View, displayName string, r Renderer) *Session {
	if cfg.QueryLimit <= 0 {
		cfg.QueryLimit = model.DefaultQueryLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:         cfg,
		viewID:      view.ID,
		sessionID:   view.SessionID,
		displayName: displayName,
		renderer:    r,
		logger:      logger.With("view_id", view.ID, "session_id", view.SessionID),
		done:        make(chan struct{}),
	}
}

// ViewID returns the id of the view this session serves.
func (s *Session) ViewID() string { return s.viewID }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Renders returns the number of completed renders.
func (s *Session) Renders() uint64 { return s.seq.Load() }

// Run subscribes, renders, and re-renders on every notification until ctx
// is cancelled or Close is called, both of which return nil. A store or
// render failure closes the session and is returned.
func (s *Session) Run(ctx context.Context) error {
	s.renderMu.Lock()
	if s.State() != StateActive {
		s.renderMu.Unlock()
		return nil
	}
	s.global = s.cfg.Bus.Subscribe(notify.Global, "")
	s.scoped = s.cfg.Bus.Subscribe(notify.Scoped, s.viewID)
	s.renderMu.Unlock()
	defer s.Close()

	metrics.LiveSessions.Inc()
	defer metrics.LiveSessions.Dec()
	s.logger.Debug("live: session active")

	if err := s.render(ctx); err != nil {
		return s.exitErr(ctx, err)
	}

	var keepalive <-chan time.Time
	pinger, canPing := s.renderer.(Pinger)
	if canPing && s.cfg.Keepalive > 0 {
		ticker := time.NewTicker(s.cfg.Keepalive)
		defer ticker.Stop()
		keepalive = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-s.global.C():
		case <-s.scoped.C():
		case <-keepalive:
			if err := pinger.Ping(); err != nil {
				return s.exitErr(ctx, fmt.Errorf("keepalive: %w", err))
			}
			continue
		}
		if err := s.render(ctx); err != nil {
			return s.exitErr(ctx, err)
		}
	}
}

// Close moves the session to Closing, releases its subscriptions, removes
// its view, and moves it to Closed. It is safe to call more than once and
// from any goroutine; once it has begun, no further render starts.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.renderMu.Lock()
		s.state.Store(int32(StateClosing))
		global, scoped := s.global, s.scoped
		s.renderMu.Unlock()
		close(s.done)

		if global != nil {
			global.Unsubscribe()
		}
		if scoped != nil {
			scoped.Unsubscribe()
		}
		s.cfg.Views.Remove(s.viewID)

		s.state.Store(int32(StateClosed))
		s.logger.Debug("live: session closed", "renders", s.seq.Load())
	})
}

// render runs one query-and-render pass with the view's current filter.
func (s *Session) render(ctx context.Context) error {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	if s.State() != StateActive {
		return nil
	}

	view, ok := s.cfg.Views.Get(s.viewID)
	if !ok {
		return ErrViewRemoved
	}
	filter := view.EffectiveFilter()

	start := time.Now()
	posts, err := s.cfg.Store.QueryPosts(ctx, filter, s.cfg.QueryLimit)
	if err != nil {
		return fmt.Errorf("query posts: %w", err)
	}
	total, err := s.cfg.Store.CountPosts(ctx)
	if err != nil {
		return fmt.Errorf("count posts: %w", err)
	}
	queryDuration := time.Since(start)

	snap := Snapshot{
		ViewID:          s.viewID,
		SessionID:       s.sessionID,
		DisplayName:     s.displayName,
		Filter:          view.Filter,
		EffectiveFilter: filter,
		Posts:           posts,
		Total:           total,
		Seq:             s.seq.Load() + 1,
		QueryDuration:   queryDuration,
		RenderedAt:      time.Now().UTC(),
	}
	if err := s.renderer.Render(ctx, snap); err != nil {
		metrics.Renders.WithLabelValues("error").Inc()
		return fmt.Errorf("render: %w", err)
	}
	s.seq.Add(1)
	metrics.Renders.WithLabelValues("success").Inc()
	return nil
}

// exitErr reports err unless it is only the side effect of cancellation.
func (s *Session) exitErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	s.logger.Warn("live: session ended by error", "err", err)
	return err
}
