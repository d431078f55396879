package snapshot

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/skyfeed/internal/model"
	"github.com/alfredjeanlab/skyfeed/internal/store"
)

// memStore is an in-memory store.Store for snapshot tests.
type memStore struct {
	mu      sync.Mutex
	posts   map[string]*model.Post
	listErr error
}

var _ store.Store = (*memStore)(nil)

func newMemStore(posts ...*model.Post) *memStore {
	m := &memStore{posts: make(map[string]*model.Post)}
	_, _ = m.InsertPosts(context.Background(), posts)
	return m
}

func (m *memStore) InsertPosts(_ context.Context, posts []*model.Post) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range posts {
		if _, ok := m.posts[p.URI]; ok {
			continue
		}
		m.posts[p.URI] = p
		n++
	}
	return n, nil
}

func (m *memStore) EvictOlderThan(context.Context, time.Time) (int64, error) {
	return 0, errors.New("not implemented")
}

func (m *memStore) QueryPosts(context.Context, string, int) ([]*model.Post, error) {
	return nil, errors.New("not implemented")
}

func (m *memStore) CountPosts(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts), nil
}

func (m *memStore) ListAllPosts(context.Context) ([]*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*model.Post, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].URI < out[j].URI
	})
	return out, nil
}

func (m *memStore) Close() error { return nil }

func testPost(uri, text string, millis int64) *model.Post {
	return &model.Post{URI: uri, Author: "did:plc:author", Text: text, CreatedAt: time.UnixMilli(millis).UTC()}
}
