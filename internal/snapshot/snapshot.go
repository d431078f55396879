// Package snapshot periodically exports the retained posts as JSONL to one
// or more destinations (S3, a git repository).
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/skyfeed/internal/store"
)

// Destination is the interface for a snapshot target.
type Destination interface {
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
	// Name identifies the destination in logs.
	Name() string
}

// Scheduler exports the store to its destinations on a fixed interval.
// It implements suture.Service.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger
}

// NewScheduler creates a scheduler that exports from the store to the given
// destinations at the specified interval.
func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

func (s *Scheduler) Serve(ctx context.Context) error { return s.Run(ctx) }

func (s *Scheduler) String() string { return "snapshot-scheduler" }

// Run exports once immediately, then on each tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ExportOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.ExportOnce(ctx)
		}
	}
}

// ExportOnce writes one snapshot to every destination and returns the
// number that succeeded. A failing destination does not stop the others.
func (s *Scheduler) ExportOnce(ctx context.Context) int {
	var buf bytes.Buffer
	n, err := ExportJSONL(ctx, s.store, &buf)
	if err != nil {
		s.logger.Error("snapshot export failed", "err", err)
		return 0
	}
	data := buf.Bytes()

	ok := 0
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			s.logger.Error("snapshot destination write failed", "destination", dest.Name(), "err", err)
			continue
		}
		ok++
	}

	s.logger.Info("snapshot completed",
		"posts", n,
		"destinations", fmt.Sprintf("%d/%d", ok, len(s.destinations)),
		"bytes", len(data),
	)
	return ok
}
