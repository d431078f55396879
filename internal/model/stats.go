package model

// PostPage is the result of a filtered post query.
type PostPage struct {
	Posts           []*Post `json:"posts"`
	Total           int     `json:"total"`
	Filter          string  `json:"filter"`
	EffectiveFilter string  `json:"effective_filter"`
}

// Stats summarizes the running service.
type Stats struct {
	Posts          int       `json:"posts"`
	Queued         int       `json:"queued"`
	Sessions       int       `json:"sessions"`
	ActiveSessions int       `json:"active_sessions"`
	Views          int       `json:"views"`
	Subscribers    Listeners `json:"subscribers"`
	Feed           FeedStats `json:"feed"`
	UptimeSeconds  float64   `json:"uptime_seconds"`
}

// Listeners counts notification subscribers by topic.
type Listeners struct {
	Global int `json:"global"`
	Scoped int `json:"scoped"`
}

// FeedStats describes the upstream connection.
type FeedStats struct {
	State      string `json:"state"`
	Reconnects int64  `json:"reconnects"`
}
