// Package ingest batches decoded posts into bulk store writes and enforces
// the retention window.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/skyfeed/internal/events"
	"github.com/alfredjeanlab/skyfeed/internal/metrics"
	"github.com/alfredjeanlab/skyfeed/internal/model"
	"github.com/alfredjeanlab/skyfeed/internal/notify"
	"github.com/alfredjeanlab/skyfeed/internal/store"
)

const (
	DefaultFlushSize     = 100
	DefaultFlushInterval = 300 * time.Millisecond
)

// BufferConfig configures a Buffer. Zero values select the defaults.
type BufferConfig struct {
	// FlushSize is the queue length that triggers an immediate flush.
	FlushSize int
	// FlushInterval is the period of the unconditional timer flush.
	FlushInterval time.Duration
}

// Buffer accumulates posts and writes them to the store in batches, either
// when FlushSize posts are queued or on every FlushInterval tick.
type Buffer struct {
	store     store.Store
	bus       *notify.Bus
	publisher events.Publisher
	logger    *slog.Logger
	cfg       BufferConfig

	mu    sync.Mutex
	queue []*model.Post

	// flushMu serializes store writes so batches land in submission order.
	flushMu sync.Mutex
}

// NewBuffer creates a Buffer. publisher may be nil.
func NewBuffer(s store.Store, bus *notify.Bus, publisher events.Publisher, logger *slog.Logger, cfg BufferConfig) *Buffer {
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = DefaultFlushSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Buffer{
		store:     s,
		bus:       bus,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		queue:     make([]*model.Post, 0, cfg.FlushSize),
	}
}

// Submit queues a post. When the queue reaches FlushSize the batch is
// flushed in the calling goroutine before Submit returns.
func (b *Buffer) Submit(p *model.Post) {
	b.mu.Lock()
	b.queue = append(b.queue, p)
	n := len(b.queue)
	b.mu.Unlock()
	metrics.IngestQueued.Set(float64(n))

	if n >= b.cfg.FlushSize {
		b.flush(context.Background(), "size")
	}
}

// Len returns the number of queued posts.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Flush writes everything queued so far and returns the number of rows the
// store reported as newly inserted. An empty queue is a no-op.
func (b *Buffer) Flush(ctx context.Context) int {
	return b.flush(ctx, "timer")
}

// Run flushes on every FlushInterval tick until ctx is cancelled, then
// performs a final flush so nothing queued is lost on shutdown.
func (b *Buffer) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	b.logger.Info("ingest: buffer started",
		"flush_size", b.cfg.FlushSize, "flush_interval", b.cfg.FlushInterval)
	for {
		select {
		case <-ctx.Done():
			// The run context is already done; the final write gets its own.
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			b.flush(final, "shutdown")
			cancel()
			b.logger.Info("ingest: buffer stopped")
			return ctx.Err()
		case <-ticker.C:
			b.flush(ctx, "timer")
		}
	}
}

// Serve implements suture.Service.
func (b *Buffer) Serve(ctx context.Context) error { return b.Run(ctx) }

func (b *Buffer) String() string { return "ingest-buffer" }

func (b *Buffer) flush(ctx context.Context, trigger string) int {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	// Swap the queue out under the lock: a post is in exactly one batch.
	b.mu.Lock()
	batch := b.queue
	if len(batch) == 0 {
		b.mu.Unlock()
		return 0
	}
	b.queue = make([]*model.Post, 0, b.cfg.FlushSize)
	b.mu.Unlock()
	metrics.IngestQueued.Set(0)

	start := time.Now()
	inserted, err := b.store.InsertPosts(ctx, batch)
	metrics.FlushDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.IngestFlushes.WithLabelValues(trigger, "error").Inc()
		b.logger.Error("ingest: flush failed, batch skipped",
			"err", err, "batch", len(batch), "trigger", trigger)
		return 0
	}
	metrics.IngestFlushes.WithLabelValues(trigger, "success").Inc()
	metrics.IngestInserted.Add(float64(inserted))
	metrics.IngestDuplicates.Add(float64(len(batch) - inserted))

	b.logger.Debug("ingest: flushed",
		"batch", len(batch), "inserted", inserted, "trigger", trigger,
		"duration", time.Since(start))

	if inserted == 0 {
		return 0
	}

	if b.bus != nil {
		b.bus.PublishGlobal()
		metrics.Notifications.WithLabelValues(notify.Global.String()).Inc()
	}
	if err := b.publisher.Publish(ctx, events.TopicPostsFlushed, events.PostsFlushed{
		Posts:     batch,
		Inserted:  inserted,
		FlushedAt: time.Now().UTC(),
	}); err != nil {
		b.logger.Warn("ingest: failed to publish flush event", "err", err)
	}
	return inserted
}
