package live

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/skyfeed/internal/model"
	"github.com/alfredjeanlab/skyfeed/internal/notify"
	"github.com/alfredjeanlab/skyfeed/internal/registry"
	"github.com/alfredjeanlab/skyfeed/internal/store/sqlite"
)

// chanRenderer forwards every snapshot to a channel.
type chanRenderer struct {
	ch    chan Snapshot
	err   error
	pings atomic.Int32
}

func newChanRenderer() *chanRenderer {
	return &chanRenderer{ch: make(chan Snapshot, 64)}
}

func (r *chanRenderer) Render(_ context.Context, snap Snapshot) error {
	if r.err != nil {
		return r.err
	}
	r.ch <- snap
	return nil
}

func (r *chanRenderer) Ping() error {
	r.pings.Add(1)
	return nil
}

func (r *chanRenderer) next(t *testing.T) Snapshot {
	t.Helper()
	select {
	case snap := <-r.ch:
		return snap
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for render")
		return Snapshot{}
	}
}

// none asserts no render arrives within a short grace period.
func (r *chanRenderer) none(t *testing.T) {
	t.Helper()
	select {
	case snap := <-r.ch:
		t.Fatalf("unexpected render #%d", snap.Seq)
	case <-time.After(50 * time.Millisecond):
	}
}

type harness struct {
	store *sqlite.SQLiteStore
	bus   *notify.Bus
	views *registry.Views
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s, err := sqlite.New(sqlite.Config{Path: filepath.Join(t.TempDir(), "posts.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	if _, err := s.InsertPosts(ctx, []*model.Post{
		{URI: "u1", Author: "did:plc:a", Text: "hello world", CreatedAt: time.UnixMilli(1000)},
		{URI: "u2", Author: "did:plc:b", Text: "goodbye", CreatedAt: time.UnixMilli(2000)},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return &harness{store: s, bus: notify.New(), views: registry.NewViews()}
}

type running struct {
	session  *Session
	renderer *chanRenderer
	cancel   context.CancelFunc
	done     chan error
}

func (h *harness) start(t *testing.T, viewID string) *running {
	t.Helper()
	view := h.views.GetOrCreate(viewID, "ses-1")
	r := newChanRenderer()
	sess := New(Config{Store: h.store, Bus: h.bus, Views: h.views}, view, "calm-otter", r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()
	t.Cleanup(cancel)

	// Wait for the initial render so subscriptions are in place.
	r.next(t)
	return &running{session: sess, renderer: r, cancel: cancel, done: done}
}

func (r *running) stop(t *testing.T) error {
	t.Helper()
	r.cancel()
	select {
	case err := <-r.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestSession_InitialRender(t *testing.T) {
	h := newHarness(t)
	view := h.views.GetOrCreate("view-a", "ses-1")
	r := newChanRenderer()
	sess := New(Config{Store: h.store, Bus: h.bus, Views: h.views}, view, "calm-otter", r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	snap := r.next(t)
	if snap.Seq != 1 || snap.Total != 2 || len(snap.Posts) != 2 {
		t.Fatalf("unexpected first snapshot: %+v", snap)
	}
	if snap.Posts[0].URI != "u2" || snap.Posts[1].URI != "u1" {
		t.Fatalf("posts not newest first: %s, %s", snap.Posts[0].URI, snap.Posts[1].URI)
	}
	if snap.ViewID != "view-a" || snap.SessionID != "ses-1" || snap.DisplayName != "calm-otter" {
		t.Fatalf("identity fields wrong: %+v", snap)
	}
}

func TestSession_GlobalFanOut(t *testing.T) {
	h := newHarness(t)
	a := h.start(t, "view-a")
	b := h.start(t, "view-b")
	c := h.start(t, "view-c")

	if err := c.stop(t); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if n := h.bus.PublishGlobal(); n != 2 {
		t.Fatalf("PublishGlobal reached %d subscribers, want 2", n)
	}
	for _, r := range []*running{a, b} {
		if snap := r.renderer.next(t); snap.Seq != 2 {
			t.Fatalf("render seq = %d, want 2", snap.Seq)
		}
	}
	a.renderer.none(t)
	b.renderer.none(t)
	c.renderer.none(t)
	if c.session.Renders() != 1 {
		t.Fatalf("closed session rendered %d times, want 1", c.session.Renders())
	}
}

func TestSession_ScopedIsolation(t *testing.T) {
	h := newHarness(t)
	a := h.start(t, "view-a")
	b := h.start(t, "view-b")

	if err := h.views.SetFilter("view-a", "hello"); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	h.bus.PublishScoped("view-a")

	snap := a.renderer.next(t)
	if snap.Filter != "hello" || snap.EffectiveFilter != "hello" {
		t.Fatalf("filter not re-read: %+v", snap)
	}
	if len(snap.Posts) != 1 || snap.Posts[0].URI != "u1" {
		t.Fatalf("filtered posts = %v", snap.Posts)
	}
	b.renderer.none(t)
}

func TestSession_ShortFilterEchoed(t *testing.T) {
	h := newHarness(t)
	a := h.start(t, "view-a")

	if err := h.views.SetFilter("view-a", "he"); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	h.bus.PublishScoped("view-a")

	snap := a.renderer.next(t)
	if snap.Filter != "he" || snap.EffectiveFilter != "" {
		t.Fatalf("Filter=%q EffectiveFilter=%q", snap.Filter, snap.EffectiveFilter)
	}
	if len(snap.Posts) != 2 {
		t.Fatalf("short filter restricted results: %d posts", len(snap.Posts))
	}
}

func TestSession_CleanupOnClose(t *testing.T) {
	h := newHarness(t)
	a := h.start(t, "view-a")

	if h.bus.Len(notify.Global) != 1 || h.bus.Len(notify.Scoped) != 1 {
		t.Fatalf("subscriptions = %d/%d, want 1/1", h.bus.Len(notify.Global), h.bus.Len(notify.Scoped))
	}

	if err := a.stop(t); err != nil {
		t.Fatalf("Run() = %v, want nil on cancellation", err)
	}
	if a.session.State() != StateClosed {
		t.Fatalf("State() = %v, want closed", a.session.State())
	}
	if _, ok := h.views.Get("view-a"); ok {
		t.Fatal("view still registered after close")
	}
	if h.bus.Len(notify.Global) != 0 || h.bus.Len(notify.Scoped) != 0 {
		t.Fatalf("subscriptions leaked: %d/%d", h.bus.Len(notify.Global), h.bus.Len(notify.Scoped))
	}

	// Idempotent.
	a.session.Close()
	a.session.Close()
}

func TestSession_ExternalClose(t *testing.T) {
	h := newHarness(t)
	a := h.start(t, "view-a")

	a.session.Close()
	select {
	case err := <-a.done:
		if err != nil {
			t.Fatalf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	h.bus.PublishGlobal()
	a.renderer.none(t)
}

func TestSession_RenderErrorCloses(t *testing.T) {
	h := newHarness(t)
	a := h.start(t, "view-a")

	boom := errors.New("connection reset")
	a.renderer.err = boom
	h.bus.PublishGlobal()

	select {
	case err := <-a.done:
		if !errors.Is(err, boom) {
			t.Fatalf("Run() = %v, want %v", err, boom)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after render error")
	}
	if _, ok := h.views.Get("view-a"); ok {
		t.Fatal("view still registered after render error")
	}
	if h.bus.Len(notify.Global) != 0 {
		t.Fatal("subscription leaked after render error")
	}
}

func TestSession_ViewRemovedExternally(t *testing.T) {
	h := newHarness(t)
	a := h.start(t, "view-a")

	h.views.Remove("view-a")
	h.bus.PublishGlobal()

	select {
	case err := <-a.done:
		if !errors.Is(err, ErrViewRemoved) {
			t.Fatalf("Run() = %v, want ErrViewRemoved", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestSession_RunAfterClose(t *testing.T) {
	h := newHarness(t)
	view := h.views.GetOrCreate("view-a", "ses-1")
	r := newChanRenderer()
	sess := New(Config{Store: h.store, Bus: h.bus, Views: h.views}, view, "", r)

	sess.Close()
	if err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run() on closed session = %v", err)
	}
	if h.bus.Len(notify.Global) != 0 {
		t.Fatal("closed session subscribed")
	}
	r.none(t)
}

func TestSession_Keepalive(t *testing.T) {
	h := newHarness(t)
	view := h.views.GetOrCreate("view-a", "ses-1")
	r := newChanRenderer()
	sess := New(Config{Store: h.store, Bus: h.bus, Views: h.views, Keepalive: 5 * time.Millisecond}, view, "", r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)
	r.next(t)

	deadline := time.Now().Add(5 * time.Second)
	for r.pings.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("no keepalive pings")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if sess.Renders() != 1 {
		t.Fatalf("keepalive triggered renders: %d", sess.Renders())
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateActive:  "active",
		StateClosing: "closing",
		StateClosed:  "closed",
		State(7):     "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
