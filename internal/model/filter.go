package model

import "unicode/utf8"

// MinFilterLength is the shortest filter, in characters, that restricts a
// query. Anything shorter behaves as no filter.
const MinFilterLength = 3

// DefaultQueryLimit is the number of posts returned when no limit is given.
const DefaultQueryLimit = 100

// EffectiveFilter returns the filter actually applied to queries and display.
func EffectiveFilter(raw string) string {
	if utf8.RuneCountInString(raw) < MinFilterLength {
		return ""
	}
	return raw
}
