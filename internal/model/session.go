package model

// Session is a visitor identity spanning one or more views.
type Session struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// View is one live viewer (a browser tab) and its current filter.
type View struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`

	// Filter is stored verbatim so the UI can echo what was typed.
	Filter string `json:"filter"`
}

// EffectiveFilter returns the filter applied when querying for this view.
func (v View) EffectiveFilter() string {
	return EffectiveFilter(v.Filter)
}
