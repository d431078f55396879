// Package events mirrors ingest activity onto an external message bus so
// other processes can follow the feed without reading the store.
package events

import (
	"context"
	"time"

	"github.com/alfredjeanlab/skyfeed/internal/model"
)

// TopicPrefix matches every skyfeed subject (NATS wildcard).
const TopicPrefix = "skyfeed.>"

// Event topic constants
const (
	TopicPostsFlushed  = "skyfeed.posts.flushed"
	TopicPostsEvicted  = "skyfeed.posts.evicted"
	TopicFilterChanged = "skyfeed.view.filter_changed"
)

// PostsFlushed is published after a buffer flush wrote at least one row.
// Posts holds the whole flushed batch, including duplicates the store skipped.
type PostsFlushed struct {
	Posts     []*model.Post `json:"posts"`
	Inserted  int           `json:"inserted"`
	FlushedAt time.Time     `json:"flushed_at"`
}

// PostsEvicted is published after a retention sweep removed rows.
type PostsEvicted struct {
	Deleted int64     `json:"deleted"`
	Cutoff  time.Time `json:"cutoff"`
}

// FilterChanged is published when a viewer changes a view's filter.
type FilterChanged struct {
	ViewID    string `json:"view_id"`
	SessionID string `json:"session_id,omitempty"`
	Filter    string `json:"filter"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
