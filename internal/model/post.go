package model

import (
	"strings"
	"time"
)

// PostCollection is the record collection carried by ingested posts.
const PostCollection = "app.bsky.feed.post"

// Post is a single ingested feed item.
type Post struct {
	URI       string    `json:"uri"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// PostURI builds the AT-URI of a post from its author DID and record key.
// Redelivery of the same record produces the same URI.
func PostURI(did, rkey string) string {
	return "at://" + did + "/" + PostCollection + "/" + rkey
}

// TimestampMillis returns CreatedAt as epoch milliseconds, the unit stored in
// the posts table.
func (p *Post) TimestampMillis() int64 {
	return p.CreatedAt.UnixMilli()
}

// PostFromRow rebuilds a Post from its stored column values.
func PostFromRow(uri, author, text string, timestampMillis int64) *Post {
	return &Post{
		URI:       uri,
		Author:    author,
		Text:      text,
		CreatedAt: time.UnixMilli(timestampMillis).UTC(),
	}
}

// Contains reports whether the post text matches the filter. The match is a
// case-sensitive substring test on the effective filter.
func (p *Post) Contains(filter string) bool {
	f := EffectiveFilter(filter)
	return f == "" || strings.Contains(p.Text, f)
}
