package main

import (
	"bufio"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/alfredjeanlab/skyfeed/internal/events"
)

func startNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

// awaitLine publishes via publish until a line with prefix is printed.
// tailNATS subscribes asynchronously, so a single publish could be missed.
func awaitLine(t *testing.T, lines <-chan string, prefix string, publish func()) string {
	t.Helper()
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	publish()
	for {
		select {
		case line := <-lines:
			if strings.HasPrefix(line, prefix) {
				return line
			}
		case <-tick.C:
			publish()
		case <-deadline:
			t.Fatalf("no line starting with %q", prefix)
		}
	}
}

func TestTailNATS_LabelsBySubject(t *testing.T) {
	plainOutput(t)
	url := startNATS(t)

	pub, err := events.NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("NewNATSPublisher: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- tailNATS(ctx, pw, url, nil)
		pw.Close()
	}()

	lines := make(chan string, 64)
	go func() {
		r := bufio.NewReader(pr)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			select {
			case lines <- line:
			default:
			}
		}
	}()

	evicted := awaitLine(t, lines, events.TopicPostsEvicted+"  ", func() {
		_ = pub.Publish(ctx, events.TopicPostsEvicted, events.PostsEvicted{Deleted: 3, Cutoff: time.UnixMilli(1000).UTC()})
	})
	if !strings.Contains(evicted, `"deleted":3`) {
		t.Fatalf("evicted line = %q", evicted)
	}

	changed := awaitLine(t, lines, events.TopicFilterChanged+"  ", func() {
		_ = pub.Publish(ctx, events.TopicFilterChanged, events.FilterChanged{ViewID: "view-a", Filter: "sky"})
	})
	if !strings.Contains(changed, `"view_id":"view-a"`) {
		t.Fatalf("filter line = %q", changed)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("tailNATS: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tailNATS did not return after cancel")
	}
}
