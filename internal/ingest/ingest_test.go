package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/skyfeed/internal/events"
	"github.com/alfredjeanlab/skyfeed/internal/model"
	"github.com/alfredjeanlab/skyfeed/internal/notify"
	"github.com/alfredjeanlab/skyfeed/internal/store"
	"github.com/alfredjeanlab/skyfeed/internal/store/sqlite"
)

func openStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()
	s, err := sqlite.New(sqlite.Config{Path: filepath.Join(t.TempDir(), "posts.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func countPosts(t *testing.T, s store.Store) int {
	t.Helper()
	n, err := s.CountPosts(context.Background())
	if err != nil {
		t.Fatalf("CountPosts: %v", err)
	}
	return n
}

func testPost(i int, createdAt time.Time) *model.Post {
	return &model.Post{
		URI:       fmt.Sprintf("at://did:plc:test/app.bsky.feed.post/%d", i),
		Author:    "did:plc:test",
		Text:      fmt.Sprintf("post number %d", i),
		CreatedAt: createdAt,
	}
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// failingStore rejects every write.
type failingStore struct {
	store.Store
	err error
}

func (f failingStore) InsertPosts(context.Context, []*model.Post) (int, error) { return 0, f.err }

func signalled(s *notify.Subscription) bool {
	select {
	case <-s.C():
		return true
	default:
		return false
	}
}

func TestBuffer_FlushesAtThreshold(t *testing.T) {
	s := openStore(t)
	bus := notify.New()
	sub := bus.Subscribe(notify.Global, "")
	defer sub.Unsubscribe()

	// No Run loop: only the size trigger can flush.
	b := NewBuffer(s, bus, nil, nil, BufferConfig{FlushSize: 100, FlushInterval: time.Hour})
	now := time.Now()

	for i := range 99 {
		b.Submit(testPost(i, now))
	}
	if n := countPosts(t, s); n != 0 {
		t.Fatalf("after 99 submits store has %d rows, want 0", n)
	}
	if b.Len() != 99 {
		t.Fatalf("Len() = %d, want 99", b.Len())
	}
	if signalled(sub) {
		t.Fatal("global notification before any flush")
	}

	b.Submit(testPost(99, now))
	if n := countPosts(t, s); n != 100 {
		t.Fatalf("after 100th submit store has %d rows, want 100", n)
	}
	if b.Len() != 0 {
		t.Fatalf("Len() = %d after flush, want 0", b.Len())
	}
	if !signalled(sub) {
		t.Fatal("no global notification after flush")
	}
}

func TestBuffer_TimerFlush(t *testing.T) {
	s := openStore(t)
	b := NewBuffer(s, notify.New(), nil, nil, BufferConfig{FlushInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Submit(testPost(1, time.Now()))

	deadline := time.Now().Add(5 * time.Second)
	for countPosts(t, s) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("timer flush never happened")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBuffer_FinalFlushOnShutdown(t *testing.T) {
	s := openStore(t)
	b := NewBuffer(s, notify.New(), nil, nil, BufferConfig{FlushInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	b.Submit(testPost(1, time.Now()))
	b.Submit(testPost(2, time.Now()))
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	if n := countPosts(t, s); n != 2 {
		t.Fatalf("store has %d rows after shutdown, want 2", n)
	}
}

func TestBuffer_DuplicatesDoNotNotify(t *testing.T) {
	s := openStore(t)
	bus := notify.New()
	pub := &recordingPublisher{}
	b := NewBuffer(s, bus, pub, nil, BufferConfig{FlushInterval: time.Hour})
	ctx := context.Background()
	now := time.Now()

	b.Submit(testPost(1, now))
	if n := b.Flush(ctx); n != 1 {
		t.Fatalf("Flush() = %d, want 1", n)
	}
	if pub.count() != 1 {
		t.Fatalf("published %d events, want 1", pub.count())
	}

	sub := bus.Subscribe(notify.Global, "")
	defer sub.Unsubscribe()

	b.Submit(testPost(1, now))
	if n := b.Flush(ctx); n != 0 {
		t.Fatalf("Flush() of duplicate = %d, want 0", n)
	}
	if signalled(sub) {
		t.Fatal("duplicate-only flush published a global notification")
	}
	if pub.count() != 1 {
		t.Fatalf("duplicate-only flush published an external event")
	}

	ev, ok := pub.events[0].(events.PostsFlushed)
	if !ok || pub.topics[0] != events.TopicPostsFlushed {
		t.Fatalf("unexpected event %s %T", pub.topics[0], pub.events[0])
	}
	if ev.Inserted != 1 || len(ev.Posts) != 1 {
		t.Fatalf("unexpected PostsFlushed: %+v", ev)
	}
}

func TestBuffer_EmptyFlushIsNoop(t *testing.T) {
	bus := notify.New()
	sub := bus.Subscribe(notify.Global, "")
	defer sub.Unsubscribe()

	b := NewBuffer(failingStore{err: errors.New("must not be called")}, bus, nil, nil, BufferConfig{})
	if n := b.Flush(context.Background()); n != 0 {
		t.Fatalf("Flush() = %d, want 0", n)
	}
	if signalled(sub) {
		t.Fatal("empty flush published a notification")
	}
}

func TestBuffer_StoreErrorSkipsBatch(t *testing.T) {
	bus := notify.New()
	sub := bus.Subscribe(notify.Global, "")
	defer sub.Unsubscribe()

	b := NewBuffer(failingStore{err: errors.New("disk full")}, bus, nil, nil, BufferConfig{FlushInterval: time.Hour})
	b.Submit(testPost(1, time.Now()))

	if n := b.Flush(context.Background()); n != 0 {
		t.Fatalf("Flush() = %d, want 0", n)
	}
	if b.Len() != 0 {
		t.Fatalf("failed batch left %d posts queued", b.Len())
	}
	if signalled(sub) {
		t.Fatal("failed flush published a notification")
	}

	// Ingestion continues after the failure.
	b.Submit(testPost(2, time.Now()))
	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}
}

func TestBuffer_ConcurrentSubmit(t *testing.T) {
	s := openStore(t)
	b := NewBuffer(s, notify.New(), nil, nil, BufferConfig{FlushSize: 10, FlushInterval: time.Hour})
	now := time.Now()

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				b.Submit(testPost(w*1000+i, now))
			}
		}()
	}
	wg.Wait()
	b.Flush(context.Background())

	if n := countPosts(t, s); n != 200 {
		t.Fatalf("store has %d rows, want 200", n)
	}
}

func TestEvictor_EvictOnce(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := s.InsertPosts(ctx, []*model.Post{
		testPost(1, now.Add(-2*time.Hour)),
		testPost(2, now.Add(-30*time.Minute)),
		testPost(3, now),
	}); err != nil {
		t.Fatalf("InsertPosts: %v", err)
	}

	before, err := s.QueryPosts(ctx, "number 1", 100)
	if err != nil {
		t.Fatalf("QueryPosts: %v", err)
	}
	if len(before) != 1 {
		t.Fatalf("expired post missing before eviction: %d results", len(before))
	}

	pub := &recordingPublisher{}
	e := NewEvictor(s, pub, nil, EvictorConfig{Retention: time.Hour})
	e.now = func() time.Time { return now }

	deleted, err := e.EvictOnce(ctx)
	if err != nil {
		t.Fatalf("EvictOnce: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	after, err := s.QueryPosts(ctx, "number 1", 100)
	if err != nil {
		t.Fatalf("QueryPosts: %v", err)
	}
	if len(after) != 0 {
		t.Fatalf("expired post still present after eviction")
	}
	if n := countPosts(t, s); n != 2 {
		t.Fatalf("store has %d rows, want 2", n)
	}
	if pub.count() != 1 || pub.topics[0] != events.TopicPostsEvicted {
		t.Fatalf("expected one eviction event, got %v", pub.topics)
	}

	// Nothing left to evict: no event.
	if _, err := e.EvictOnce(ctx); err != nil {
		t.Fatalf("EvictOnce: %v", err)
	}
	if pub.count() != 1 {
		t.Fatalf("empty eviction published an event")
	}
}

func TestNewEvictor_Defaults(t *testing.T) {
	e := NewEvictor(nil, nil, nil, EvictorConfig{})
	if e.cfg.Retention != time.Hour || e.cfg.Interval != 60*time.Second {
		t.Fatalf("defaults = %+v", e.cfg)
	}
}
