package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/skyfeed/internal/events"
	"github.com/alfredjeanlab/skyfeed/internal/metrics"
	"github.com/alfredjeanlab/skyfeed/internal/store"
)

const (
	DefaultRetention     = time.Hour
	DefaultEvictInterval = 60 * time.Second
)

// EvictorConfig configures an Evictor. Zero values select the defaults.
type EvictorConfig struct {
	Retention time.Duration
	Interval  time.Duration
}

// Evictor periodically deletes posts older than the retention window.
type Evictor struct {
	store     store.Store
	publisher events.Publisher
	logger    *slog.Logger
	cfg       EvictorConfig
	now       func() time.Time
}

// NewEvictor creates an Evictor. publisher may be nil.
func NewEvictor(s store.Store, publisher events.Publisher, logger *slog.Logger, cfg EvictorConfig) *Evictor {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultEvictInterval
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evictor{store: s, publisher: publisher, logger: logger, cfg: cfg, now: time.Now}
}

// EvictOnce deletes posts created before now minus the retention window.
// Live sessions are not notified; they drop the rows on their next render.
func (e *Evictor) EvictOnce(ctx context.Context) (int64, error) {
	cutoff := e.now().Add(-e.cfg.Retention)
	deleted, err := e.store.EvictOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.Evicted.Add(float64(deleted))
	if deleted > 0 {
		e.logger.Info("ingest: evicted expired posts", "deleted", deleted, "cutoff", cutoff)
		if err := e.publisher.Publish(ctx, events.TopicPostsEvicted, events.PostsEvicted{
			Deleted: deleted,
			Cutoff:  cutoff.UTC(),
		}); err != nil {
			e.logger.Warn("ingest: failed to publish eviction event", "err", err)
		}
	}
	return deleted, nil
}

// Run evicts every Interval until ctx is cancelled. Store errors are logged
// and the next tick tries again.
func (e *Evictor) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.logger.Info("ingest: evictor started", "retention", e.cfg.Retention, "interval", e.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.EvictOnce(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("ingest: eviction failed", "err", err)
			}
		}
	}
}

// Serve implements suture.Service.
func (e *Evictor) Serve(ctx context.Context) error { return e.Run(ctx) }

func (e *Evictor) String() string { return "ingest-evictor" }
