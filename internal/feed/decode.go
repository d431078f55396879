package feed

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/alfredjeanlab/skyfeed/internal/model"
)

// Reasons a frame is discarded. None of them is fatal; the connector counts
// the drop and reads the next frame.
var (
	ErrInvalidUTF8  = errors.New("frame is not valid UTF-8")
	ErrMalformed    = errors.New("frame is not valid JSON")
	ErrNotPost      = errors.New("frame is not a post creation")
	ErrMissingField = errors.New("frame is missing a required field")
)

// frame is the subset of a Jetstream event that carries a post.
type frame struct {
	DID    string  `json:"did"`
	TimeUS int64   `json:"time_us"`
	Kind   string  `json:"kind"`
	Commit *commit `json:"commit"`
}

type commit struct {
	Operation  string  `json:"operation"`
	Collection string  `json:"collection"`
	RKey       string  `json:"rkey"`
	Record     *record `json:"record"`
}

type record struct {
	Text string `json:"text"`
}

// Decode parses one text frame into a post. now supplies CreatedAt when the
// frame carries no timestamp.
func Decode(data []byte, now func() time.Time) (*model.Post, error) {
	if !utf8.Valid(data) {
		return nil, ErrInvalidUTF8
	}

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, ErrMalformed
	}

	if f.Kind != "commit" || f.Commit == nil ||
		f.Commit.Operation != "create" || f.Commit.Collection != model.PostCollection {
		return nil, ErrNotPost
	}
	if f.DID == "" || f.Commit.RKey == "" || f.Commit.Record == nil || f.Commit.Record.Text == "" {
		return nil, ErrMissingField
	}

	createdAt := now()
	if f.TimeUS > 0 {
		createdAt = time.UnixMicro(f.TimeUS)
	}
	// Millisecond precision is what the store keeps.
	createdAt = createdAt.Truncate(time.Millisecond).UTC()

	return &model.Post{
		URI:       model.PostURI(f.DID, f.Commit.RKey),
		Author:    f.DID,
		Text:      f.Commit.Record.Text,
		CreatedAt: createdAt,
	}, nil
}

// dropReason maps a Decode error to its metrics label.
func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidUTF8):
		return "utf8"
	case errors.Is(err, ErrMalformed):
		return "json"
	case errors.Is(err, ErrNotPost):
		return "kind"
	default:
		return "missing_field"
	}
}
