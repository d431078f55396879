// Package render turns a live snapshot into the JSON fragment pushed to
// viewers as an SSE "patch" event.
package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/alfredjeanlab/skyfeed/internal/live"
	"github.com/alfredjeanlab/skyfeed/internal/model"
)

// MaxTextLength is the number of characters of post text shown before it is
// cut off with an ellipsis. Stored text is never truncated.
const MaxTextLength = 280

// Patch is the fragment sent for one render.
type Patch struct {
	Posts []Post `json:"posts"`
	Stats string `json:"stats"`
	Debug Debug  `json:"debug"`
}

// Post is a post as shown to a viewer.
type Post struct {
	URI       string `json:"uri"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated,omitempty"`
	CreatedAt string `json:"created_at"`
	WebURL    string `json:"web_url,omitempty"`
}

// Debug describes the render itself.
type Debug struct {
	ViewID          string  `json:"view_id"`
	SessionName     string  `json:"session_name,omitempty"`
	Filter          string  `json:"filter"`
	EffectiveFilter string  `json:"effective_filter"`
	Seq             uint64  `json:"seq"`
	QueryMillis     float64 `json:"query_ms"`
	RenderedAt      string  `json:"rendered_at"`
}

// Build converts a snapshot into a Patch.
func Build(snap live.Snapshot) Patch {
	posts := make([]Post, 0, len(snap.Posts))
	for _, p := range snap.Posts {
		text, truncated := Truncate(p.Text, MaxTextLength)
		posts = append(posts, Post{
			URI:       p.URI,
			Author:    p.Author,
			Text:      text,
			Truncated: truncated,
			CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano),
			WebURL:    WebURL(p.URI),
		})
	}
	return Patch{
		Posts: posts,
		Stats: Stats(len(snap.Posts), snap.Total, snap.EffectiveFilter),
		Debug: Debug{
			ViewID:          snap.ViewID,
			SessionName:     snap.DisplayName,
			Filter:          snap.Filter,
			EffectiveFilter: snap.EffectiveFilter,
			Seq:             snap.Seq,
			QueryMillis:     float64(snap.QueryDuration.Microseconds()) / 1000,
			RenderedAt:      snap.RenderedAt.Format(time.RFC3339Nano),
		},
	}
}

// Encode builds and marshals the patch for snap.
func Encode(snap live.Snapshot) ([]byte, error) {
	data, err := json.Marshal(Build(snap))
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}
	return data, nil
}

// Truncate shortens text to at most max characters, replacing the tail with
// an ellipsis, and reports whether it did.
func Truncate(text string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text, false
	}
	runes := []rune(text)
	return strings.TrimRight(string(runes[:max-1]), " ") + "…", true
}

// Stats formats the summary line shown above the post list.
func Stats(shown, total int, filter string) string {
	if filter == "" {
		return fmt.Sprintf("showing %d of %s posts from the last hour", shown, groupThousands(total))
	}
	return fmt.Sprintf("showing %d of %s posts matching %q", shown, groupThousands(total), filter)
}

// WebURL maps an at:// post URI to its bsky.app page, or "" when the URI is
// not a post URI.
func WebURL(uri string) string {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return ""
	}
	did, rkey, ok := strings.Cut(rest, "/"+model.PostCollection+"/")
	if !ok || did == "" || rkey == "" {
		return ""
	}
	return "https://bsky.app/profile/" + did + "/post/" + rkey
}

func groupThousands(n int) string {
	if n < 0 {
		return "-" + groupThousands(-n)
	}
	s := strconv.Itoa(n)
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}
