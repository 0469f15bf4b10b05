package scheduling

import "errors"

var (
	ErrStoreQueryFailed  = errors.New("appointment store query failed")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrSlotTaken         = errors.New("slot already taken")
	ErrPastSlot          = errors.New("slot is in the past")
	ErrInvalidSlot       = errors.New("time is not an offered slot")
	ErrInvalidDate       = errors.New("invalid date")
	ErrPastDate          = errors.New("past date")
	ErrOutOfRange        = errors.New("date is beyond the booking window")
	ErrNotFound          = errors.New("appointment not found")
	ErrNotCancellable    = errors.New("appointment can no longer be cancelled")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError is returned for malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
