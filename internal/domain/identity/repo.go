package identity

import (
	"context"

	"github.com/google/uuid"
)

type TutorRepository interface {
	// Upsert inserts the tutor or updates the profile fields of an existing
	// row. The stored role is never changed by an upsert.
	Upsert(ctx context.Context, t *Tutor) error
	GetByID(ctx context.Context, id string) (*Tutor, error)
	Update(ctx context.Context, t *Tutor) error
}

type ChildRepository interface {
	Create(ctx context.Context, c *Child) error
	GetByID(ctx context.Context, id uuid.UUID) (*Child, error)
	ListByTutor(ctx context.Context, tutorID string) ([]*Child, error)
	Update(ctx context.Context, c *Child) error
	Delete(ctx context.Context, id uuid.UUID) error
}
