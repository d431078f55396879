package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(FeedDropped.WithLabelValues("json"))
	FeedDropped.WithLabelValues("json").Inc()
	if got := testutil.ToFloat64(FeedDropped.WithLabelValues("json")); got != before+1 {
		t.Fatalf("FeedDropped{json} = %v, want %v", got, before+1)
	}

	LiveSessions.Set(3)
	if got := testutil.ToFloat64(LiveSessions); got != 3 {
		t.Fatalf("LiveSessions = %v, want 3", got)
	}
	LiveSessions.Set(0)
}

func TestMetricsLint(t *testing.T) {
	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, p := range problems {
		if strings.HasPrefix(p.Metric, "skyfeed_") {
			t.Errorf("lint %s: %s", p.Metric, p.Text)
		}
	}
}

func TestHandler(t *testing.T) {
	FeedFrames.Inc()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "skyfeed_feed_frames_total") {
		t.Fatal("exposition missing skyfeed_feed_frames_total")
	}
}
