package store

import (
	"context"
	"time"

	"github.com/alfredjeanlab/skyfeed/internal/model"
)

// Store defines the persistence interface for ingested posts.
type Store interface {
	// InsertPosts stores posts whose URI is not already present and returns
	// how many rows were inserted. Duplicates are skipped, not errored.
	InsertPosts(ctx context.Context, posts []*model.Post) (int, error)

	// EvictOlderThan deletes every post authored before cutoff.
	EvictOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// QueryPosts returns up to limit posts, newest first. A non-empty
	// effective filter restricts results to case-sensitive substring matches.
	QueryPosts(ctx context.Context, filter string, limit int) ([]*model.Post, error)

	// CountPosts returns the number of retained posts.
	CountPosts(ctx context.Context) (int, error)

	// ListAllPosts returns every retained post, oldest first.
	ListAllPosts(ctx context.Context) ([]*model.Post, error)

	// Lifecycle
	Close() error
}

// NormalizeQuery applies the shared query rules: short filters are dropped
// and a non-positive limit falls back to the default.
func NormalizeQuery(filter string, limit int) (string, int) {
	if limit <= 0 {
		limit = model.DefaultQueryLimit
	}
	return model.EffectiveFilter(filter), limit
}
