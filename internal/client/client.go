// Package client talks to a running skyfeed server over its HTTP/JSON API.
package client

import (
	"context"

	"github.com/alfredjeanlab/skyfeed/internal/model"
)

// SkyfeedClient is the interface the CLI commands use to reach the server.
type SkyfeedClient interface {
	ListPosts(ctx context.Context, req *ListPostsRequest) (*model.PostPage, error)
	Stats(ctx context.Context) (*model.Stats, error)
	SetFilter(ctx context.Context, viewID, filter string) error
	Health(ctx context.Context) (string, error)

	// Events streams the server's event mirror until ctx ends or fn
	// returns an error.
	Events(ctx context.Context, topics []string, fn func(Event) error) error

	Close() error
}

// ListPostsRequest selects posts by substring filter.
type ListPostsRequest struct {
	Filter string
	Limit  int
}

// Event is one message from the server's event stream.
type Event struct {
	ID    string
	Topic string
	Data  []byte
}
