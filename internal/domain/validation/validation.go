// Package validation holds the input error shared by domain services.
package validation

import "fmt"

// Error reports a request field that failed validation.
type Error struct {
	Field  string
	Reason string
}

// New returns an Error for field.
func New(field, reason string) *Error {
	return &Error{Field: field, Reason: reason}
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
