package snapshot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/alfredjeanlab/skyfeed/internal/model"
	"github.com/alfredjeanlab/skyfeed/internal/store"
)

// FormatVersion is written into every snapshot header.
const FormatVersion = "1"

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version   string    `json:"version"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	PostCount int       `json:"post_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string      `json:"type"`
	Data *model.Post `json:"data"`
}

// ExportJSONL writes every retained post, oldest first, as JSONL to w and
// returns the number of posts written.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) (int, error) {
	posts, err := s.ListAllPosts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list posts: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:   FormatVersion,
		Type:      "header",
		Timestamp: time.Now().UTC(),
		PostCount: len(posts),
	}); err != nil {
		return 0, fmt.Errorf("encode header: %w", err)
	}

	for _, p := range posts {
		if err := enc.Encode(record{Type: "post", Data: p}); err != nil {
			return 0, fmt.Errorf("encode post %s: %w", p.URI, err)
		}
	}
	return len(posts), nil
}

// ReadJSONL parses a snapshot written by ExportJSONL. Unknown record types
// are skipped; the header must come first.
func ReadJSONL(r io.Reader) ([]*model.Post, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)

	var (
		posts      []*model.Post
		sawHeader  bool
		lineNumber int
	)
	for sc.Scan() {
		lineNumber++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		if !sawHeader {
			var h header
			if err := json.Unmarshal(line, &h); err != nil {
				return nil, fmt.Errorf("line %d: decode header: %w", lineNumber, err)
			}
			if h.Type != "header" {
				return nil, fmt.Errorf("line %d: expected header, got %q", lineNumber, h.Type)
			}
			if h.Version != FormatVersion {
				return nil, fmt.Errorf("line %d: unsupported snapshot version %q", lineNumber, h.Version)
			}
			sawHeader = true
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNumber, err)
		}
		if rec.Type != "post" || rec.Data == nil {
			continue
		}
		if err := model.ValidatePost(rec.Data); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNumber, err)
		}
		posts = append(posts, rec.Data)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if !sawHeader {
		return nil, fmt.Errorf("read snapshot: missing header")
	}
	return posts, nil
}
