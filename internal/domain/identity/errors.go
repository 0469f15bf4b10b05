package identity

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrEmailTaken        = errors.New("email already registered to another account")
	ErrProfileIncomplete = errors.New("tutor profile is not complete")
)

// ValidationError is returned for malformed profile input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
