package authz

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that a referenced entity does not exist. Store
// implementations translate their backend's missing-row condition into
// this sentinel so callers can match it with errors.Is.
var ErrNotFound = errors.New("not found")

// NotFoundError wraps ErrNotFound with the entity kind and identifier.
// Store implementations use it to report missing rows uniformly.
func NotFoundError(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// ValidationError reports a rejected field during entity construction.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
