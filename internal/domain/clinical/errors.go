package clinical

import "errors"

var ErrNotFound = errors.New("not found")

// ValidationError is returned for malformed note or prescription input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
