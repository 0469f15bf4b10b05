package clinical

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dentalcare/clinic/internal/domain/identity"
	"github.com/dentalcare/clinic/internal/domain/scheduling"
	"github.com/dentalcare/clinic/internal/platform/events"
)

// Appointments is the slice of the scheduling service clinical records need.
type Appointments interface {
	Get(ctx context.Context, id string) (*scheduling.Appointment, error)
	Complete(ctx context.Context, id, by string) (*scheduling.Appointment, error)
}

// Profiles is the slice of the identity service clinical records need.
type Profiles interface {
	GetTutor(ctx context.Context, tutorID string) (*identity.Tutor, error)
	GetChild(ctx context.Context, tutorID, childID string) (*identity.Child, error)
}

type Service struct {
	notes     NoteRepository
	rx        PrescriptionRepository
	appts     Appointments
	profiles  Profiles
	publisher events.Publisher
	loc       *time.Location
	now       func() time.Time
	logger    zerolog.Logger
}

func NewService(notes NoteRepository, rx PrescriptionRepository, appts Appointments, profiles Profiles,
	pub events.Publisher, loc *time.Location, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		notes:     notes,
		rx:        rx,
		appts:     appts,
		profiles:  profiles,
		publisher: pub,
		loc:       loc,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *Service) today() time.Time {
	return s.now().In(s.loc)
}

// -- Clinical Notes --

// PrepareNote returns the stored note for the appointment, or a draft
// prefilled from the appointment and the tutor and child profiles.
func (s *Service) PrepareNote(ctx context.Context, appointmentID string) (*ClinicalNote, error) {
	appt, err := s.appts.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	existing, err := s.notes.GetByAppointment(ctx, appt.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.draft(ctx, appt), nil
}

// draft builds a note from the appointment. Profile lookups that fail leave
// the corresponding fields empty.
func (s *Service) draft(ctx context.Context, appt *scheduling.Appointment) *ClinicalNote {
	n := &ClinicalNote{
		AppointmentID: appt.ID,
		Date:          appt.Date,
		Time:          appt.Time,
		TutorID:       appt.TutorID,
		TutorName:     appt.TutorName,
		PatientID:     appt.ChildID,
		PatientName:   appt.ChildName,
		Reason:        appt.Reason,
	}
	if n.TutorName == "" {
		n.TutorName = appt.TutorEmail
	}
	if s.profiles == nil {
		return n
	}

	if t, err := s.profiles.GetTutor(ctx, appt.TutorID); err != nil {
		s.logger.Debug().Err(err).Str("tutor_id", appt.TutorID).Msg("tutor profile unavailable for note draft")
	} else {
		if name := t.FullName(); name != "" && (n.TutorName == "" || n.TutorName == appt.TutorEmail) {
			n.TutorName = name
		}
		n.TutorPhone = t.Phone
	}

	if appt.ChildID == "" {
		return n
	}
	c, err := s.profiles.GetChild(ctx, appt.TutorID, appt.ChildID)
	if err != nil {
		s.logger.Debug().Err(err).Str("child_id", appt.ChildID).Msg("child profile unavailable for note draft")
		return n
	}
	if n.PatientName == "" {
		n.PatientName = c.FullName()
	}
	if age := c.AgeOn(s.today()); age >= 0 {
		n.Age = strconv.Itoa(age)
	}
	n.Allergies = c.Allergies
	n.Medications = c.CurrentMedications
	n.IntraoralExam = c.IntraoralExam
	n.MedicalHistory = c.MedicalHistory
	return n
}

// SaveNote stores the dentist's note. With markCompleted the appointment is
// moved to completed first; a failed completion stores nothing.
func (s *Service) SaveNote(ctx context.Context, appointmentID string, in NoteInput, markCompleted bool, by string) (*ClinicalNote, error) {
	if strings.TrimSpace(in.Diagnosis) == "" {
		return nil, &ValidationError{Field: "diagnosis", Message: "is required"}
	}
	appt, err := s.appts.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	complete := markCompleted && appt.Status != scheduling.StatusCompleted
	if complete && !appt.Status.CanTransitionTo(scheduling.StatusCompleted) {
		return nil, fmt.Errorf("%w: %s -> %s", scheduling.ErrInvalidTransition, appt.Status, scheduling.StatusCompleted)
	}

	note, err := s.notes.GetByAppointment(ctx, appt.ID)
	if errors.Is(err, ErrNotFound) {
		note = s.draft(ctx, appt)
	} else if err != nil {
		return nil, err
	}
	in.apply(note)
	note.UpdatedBy = by
	if note.CreatedBy == "" {
		note.CreatedBy = by
	}

	if complete {
		if _, err := s.appts.Complete(ctx, appt.ID, by); err != nil {
			return nil, err
		}
	}
	if err := s.notes.Upsert(ctx, note); err != nil {
		if complete {
			s.logger.Error().Err(err).Str("appointment_id", appt.ID).
				Msg("appointment completed but clinical note was not stored")
		}
		return nil, err
	}
	s.logger.Info().Str("appointment_id", appt.ID).Bool("completed", complete).Msg("clinical note saved")
	return note, nil
}

func (s *Service) GetNote(ctx context.Context, appointmentID string) (*ClinicalNote, error) {
	return s.notes.GetByAppointment(ctx, appointmentID)
}

// ListNotesForTutor is the tutor's consultation history, newest first.
func (s *Service) ListNotesForTutor(ctx context.Context, tutorID string) ([]*ClinicalNote, error) {
	notes, err := s.notes.ListByTutor(ctx, tutorID)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []*ClinicalNote{}
	}
	return notes, nil
}

func (s *Service) ListNotesForChild(ctx context.Context, tutorID, childID string) ([]*ClinicalNote, error) {
	notes, err := s.notes.ListByPatient(ctx, tutorID, childID)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []*ClinicalNote{}
	}
	return notes, nil
}

// -- Prescriptions --

func (s *Service) CreatePrescription(ctx context.Context, in PrescriptionInput, by string) (*Prescription, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}
	childID, err := uuid.Parse(in.ChildID)
	if err != nil {
		return nil, &ValidationError{Field: "child_id", Message: "must be a uuid"}
	}

	if in.AppointmentID != "" {
		appt, err := s.appts.Get(ctx, in.AppointmentID)
		if errors.Is(err, scheduling.ErrNotFound) {
			return nil, &ValidationError{Field: "appointment_id", Message: "appointment not found"}
		}
		if err != nil {
			return nil, err
		}
		if in.TutorID == "" {
			in.TutorID = appt.TutorID
		} else if in.TutorID != appt.TutorID {
			return nil, &ValidationError{Field: "appointment_id", Message: "belongs to another tutor"}
		}
	}
	if in.TutorID == "" {
		return nil, &ValidationError{Field: "tutor_id", Message: "is required"}
	}

	today := s.today()
	if in.Date == "" {
		in.Date = today.Format(scheduling.DateLayout)
	} else if _, err := time.Parse(scheduling.DateLayout, in.Date); err != nil {
		return nil, &ValidationError{Field: "date", Message: "must be YYYY-MM-DD"}
	}

	child, err := s.profiles.GetChild(ctx, in.TutorID, childID.String())
	if errors.Is(err, identity.ErrNotFound) {
		return nil, &ValidationError{Field: "child_id", Message: "is not a child of this tutor"}
	}
	if err != nil {
		return nil, err
	}

	info := in.PatientInfo
	if info == nil {
		info = &PatientInfo{
			Name:               child.FullName(),
			BirthDate:          child.BirthDate,
			Allergies:          child.Allergies,
			CurrentMedications: child.CurrentMedications,
			MedicalHistory:     child.MedicalHistory,
		}
		if age := child.AgeOn(today); age >= 0 {
			info.Age = age
		}
		if t, err := s.profiles.GetTutor(ctx, in.TutorID); err == nil {
			info.TutorName = t.FullName()
			info.TutorPhone = t.Phone
		}
	}

	p := &Prescription{
		TutorID:             in.TutorID,
		ChildID:             childID,
		ChildName:           child.FullName(),
		AppointmentID:       in.AppointmentID,
		Date:                in.Date,
		Doctor:              in.Doctor,
		DoctorRegistration:  in.DoctorRegistration,
		Diagnosis:           in.Diagnosis,
		TreatmentName:       in.TreatmentName,
		Medications:         in.Medications,
		Status:              PrescriptionActive,
		Notes:               in.Notes,
		Cost:                in.Cost,
		GeneralInstructions: in.GeneralInstructions,
		PatientInfo:         info,
	}
	if err := s.rx.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("prescription_id", p.ID.String()).Str("child_id", p.ChildID.String()).Str("by", by).
		Msg("prescription issued")
	s.publish(ctx, events.PrescriptionIssued, p)
	return p, nil
}

func (s *Service) publish(ctx context.Context, eventType string, p *Prescription) {
	evt := events.Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: p.ID.String(),
		OccurredAt:  time.Now().UTC(),
		Data:        p,
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Str("prescription_id", p.ID.String()).Msg("event publish failed")
	}
}

func (s *Service) GetPrescription(ctx context.Context, id string) (*Prescription, error) {
	rid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.rx.GetByID(ctx, rid)
}

// GetPrescriptionForTutor hides prescriptions of other tutors behind ErrNotFound.
func (s *Service) GetPrescriptionForTutor(ctx context.Context, tutorID, id string) (*Prescription, error) {
	p, err := s.GetPrescription(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.TutorID != tutorID {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *Service) ListPrescriptionsByTutor(ctx context.Context, tutorID string) ([]*Prescription, error) {
	list, err := s.rx.ListByTutor(ctx, tutorID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*Prescription{}
	}
	return list, nil
}

func (s *Service) ListPrescriptionsByChild(ctx context.Context, tutorID, childID string) ([]*Prescription, error) {
	child, err := s.profiles.GetChild(ctx, tutorID, childID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	list, err := s.rx.ListByChild(ctx, child.ID)
	if err != nil {
		return nil, err
	}
	out := make([]*Prescription, 0, len(list))
	for _, p := range list {
		if p.TutorID == tutorID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) UpdatePrescriptionStatus(ctx context.Context, id string, status PrescriptionStatus) (*Prescription, error) {
	if !status.Valid() {
		return nil, &ValidationError{Field: "status", Message: "must be active, completed or cancelled"}
	}
	rid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	p, err := s.rx.UpdateStatus(ctx, rid, status)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("prescription_id", id).Str("status", string(status)).Msg("prescription status updated")
	return p, nil
}
