package clinical

import (
	"context"

	"github.com/google/uuid"
)

type NoteRepository interface {
	// Upsert stores the note keyed by its appointment id. created_at and
	// created_by of an existing row are kept.
	Upsert(ctx context.Context, n *ClinicalNote) error
	GetByAppointment(ctx context.Context, appointmentID string) (*ClinicalNote, error)
	ListByTutor(ctx context.Context, tutorID string) ([]*ClinicalNote, error)
	ListByPatient(ctx context.Context, tutorID, patientID string) ([]*ClinicalNote, error)
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	ListByTutor(ctx context.Context, tutorID string) ([]*Prescription, error)
	ListByChild(ctx context.Context, childID uuid.UUID) ([]*Prescription, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status PrescriptionStatus) (*Prescription, error)
}
