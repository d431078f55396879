// Package idgen generates the opaque, URL-safe identifiers handed to
// visitors for sessions and views.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes identify what an ID names when it shows up in logs or cookies.
const (
	SessionPrefix = "ses-"
	ViewPrefix    = "view-"
)

// Alphabet is the character set of the random portion. It needs no escaping
// in cookies, query strings or JSON.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters, excluding the prefix.
const Length = 16

// SessionID returns a fresh session identifier.
func SessionID() string { return mustGenerate(SessionPrefix) }

// ViewID returns a fresh view identifier.
func ViewID() string { return mustGenerate(ViewPrefix) }

// WithPrefix returns prefix followed by Length random characters.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// mustGenerate panics only when the system random source fails, which
// leaves the process unable to hand out unguessable identifiers at all.
func mustGenerate(prefix string) string {
	id, err := WithPrefix(prefix)
	if err != nil {
		panic(err)
	}
	return id
}
