package scheduling

import "context"

// AppointmentStore persists appointments. Implementations return
// ErrNotFound for unknown ids and ErrPermissionDenied when the backend
// refuses access; any other error is a failed query.
type AppointmentStore interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id string) (*Appointment, error)
	ListByDate(ctx context.Context, date string) ([]*Appointment, error)
	ListByTutor(ctx context.Context, tutorID string) ([]*Appointment, error)
	UpdateStatus(ctx context.Context, id string, status Status, updatedBy string) error
	Search(ctx context.Context, f SearchFilter, limit, offset int) ([]*Appointment, int, error)
}

// SlotReserver is implemented by stores that can check and create in one
// atomic step. CreateIfFree returns ErrSlotTaken when a non-cancelled
// appointment already holds a.Date and a.Time.
type SlotReserver interface {
	CreateIfFree(ctx context.Context, a *Appointment) error
}
