package model

import (
	"strings"
	"unicode/utf8"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidatePost checks a Post for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the post is valid.
func ValidatePost(p *Post) error {
	var ve ValidationError

	if p.URI == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "uri", Message: "is required"})
	}
	if p.Author == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "author", Message: "is required"})
	}
	if p.Text == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "text", Message: "is required"})
	} else if !utf8.ValidString(p.Text) {
		ve.Errors = append(ve.Errors, FieldError{Field: "text", Message: "must be valid UTF-8"})
	}
	if p.CreatedAt.IsZero() {
		ve.Errors = append(ve.Errors, FieldError{Field: "created_at", Message: "is required"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
