package scheduling

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dentalcare/clinic/internal/platform/clock"
	"github.com/dentalcare/clinic/internal/platform/events"
)

// ErrUnknownChild is returned by a Directory when the child does not exist
// or belongs to another tutor.
var ErrUnknownChild = errors.New("unknown child")

// Directory resolves display names from the tutor and child profiles.
type Directory interface {
	TutorName(ctx context.Context, tutorID string) (string, error)
	ChildName(ctx context.Context, tutorID, childID string) (string, error)
}

const MinReasonLength = 10

const (
	FilterAll       = "all"
	FilterUpcoming  = "upcoming"
	FilterPending   = "pending"
	FilterConfirmed = "confirmed"
	FilterPast      = "past"
)

var tutorFilters = []string{FilterAll, FilterUpcoming, FilterPending, FilterConfirmed, FilterPast}

type Config struct {
	Location     *time.Location
	OfferedTimes []string
	StrictSlots  bool
	MaxDaysAhead int
}

type Service struct {
	store        AppointmentStore
	resolver     *Resolver
	guard        *Guard
	clock        clinicClock
	directory    Directory
	publisher    events.Publisher
	maxDaysAhead int
	logger       zerolog.Logger
}

func NewService(store AppointmentStore, src clock.Source, dir Directory, pub events.Publisher, cfg Config, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:        store,
		resolver:     NewResolver(store, src, loc, cfg.OfferedTimes, logger),
		guard:        NewGuard(store, src, loc, cfg.OfferedTimes, cfg.StrictSlots, cfg.MaxDaysAhead, logger),
		clock:        clinicClock{source: src, loc: loc, logger: logger},
		directory:    dir,
		publisher:    pub,
		maxDaysAhead: cfg.MaxDaysAhead,
		logger:       logger,
	}
}

func (s *Service) Resolver() *Resolver { return s.resolver }

// Availability is ComputeAvailability for a bookable day: past dates are
// rejected with ErrPastDate.
func (s *Service) Availability(ctx context.Context, date string) (*DaySchedule, error) {
	sched, err := s.resolver.ComputeAvailability(ctx, date)
	if err != nil {
		return nil, err
	}
	if sched.IsPast {
		return nil, fmt.Errorf("%w: %s", ErrPastDate, date)
	}
	return sched, nil
}

func (s *Service) Calendar(ctx context.Context, year int, month time.Month) CalendarMonth {
	now := s.clock.now(ctx)
	if year == 0 || month == 0 {
		year, month = now.Year(), now.Month()
	}
	return BuildMonth(year, month, now, s.maxDaysAhead)
}

type BookInput struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	ChildID string `json:"child_id"`
	Reason  string `json:"reason"`
	Notes   string `json:"notes"`
}

func (in BookInput) validate() error {
	switch {
	case strings.TrimSpace(in.Date) == "":
		return &ValidationError{Field: "date", Message: "is required"}
	case strings.TrimSpace(in.Time) == "":
		return &ValidationError{Field: "time", Message: "is required"}
	case strings.TrimSpace(in.ChildID) == "":
		return &ValidationError{Field: "child_id", Message: "is required"}
	case utf8.RuneCountInString(strings.TrimSpace(in.Reason)) < MinReasonLength:
		return &ValidationError{Field: "reason", Message: fmt.Sprintf("must be at least %d characters", MinReasonLength)}
	}
	return nil
}

// Book validates the request, resolves names from the profiles and hands the
// slot to the Guard.
func (s *Service) Book(ctx context.Context, tutorID, tutorEmail string, in BookInput) (*Appointment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	req := BookingRequest{
		TutorID:    tutorID,
		TutorEmail: tutorEmail,
		TutorName:  tutorEmail,
		ChildID:    in.ChildID,
		Reason:     strings.TrimSpace(in.Reason),
		Notes:      strings.TrimSpace(in.Notes),
	}
	if s.directory != nil {
		childName, err := s.directory.ChildName(ctx, tutorID, in.ChildID)
		if err != nil {
			return nil, err
		}
		req.ChildName = childName
		if name, err := s.directory.TutorName(ctx, tutorID); err != nil {
			s.logger.Warn().Err(err).Str("tutor_id", tutorID).Msg("tutor name lookup failed")
		} else if name != "" {
			req.TutorName = name
		}
	}

	appt, err := s.guard.AttemptBook(ctx, in.Date, in.Time, req)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("appointment_id", appt.ID).Str("date", appt.Date).Str("time", appt.Time).Msg("appointment booked")
	s.publish(ctx, events.AppointmentBooked, appt)
	return appt, nil
}

// TutorAppointments is one filtered page of a tutor's appointments plus the
// number of appointments each filter would show.
type TutorAppointments struct {
	Filter string            `json:"filter"`
	Items  []AppointmentView `json:"items"`
	Counts map[string]int    `json:"counts"`
}

func canCancel(a *Appointment, today string) bool {
	return a.Date >= today && a.Status.ConsumesSlot()
}

func matchesFilter(filter string, a *Appointment, today string) bool {
	switch filter {
	case FilterUpcoming:
		return a.Date >= today && a.Status.ConsumesSlot()
	case FilterPending:
		return a.Status == StatusPending
	case FilterConfirmed:
		return a.Status == StatusConfirmed
	case FilterPast:
		return a.Date < today || a.Status == StatusCompleted
	}
	return true
}

func (s *Service) ListForTutor(ctx context.Context, tutorID, filter string) (*TutorAppointments, error) {
	if filter == "" {
		filter = FilterAll
	}
	if !slices.Contains(tutorFilters, filter) {
		return nil, &ValidationError{Field: "filter", Message: "must be one of " + strings.Join(tutorFilters, ", ")}
	}

	appts, err := s.store.ListByTutor(ctx, tutorID)
	if err != nil {
		return nil, storeError("list tutor appointments", err)
	}
	today := s.clock.now(ctx).Format(DateLayout)

	out := &TutorAppointments{Filter: filter, Items: []AppointmentView{}, Counts: make(map[string]int, len(tutorFilters))}
	for _, a := range appts {
		for _, f := range tutorFilters {
			if matchesFilter(f, a, today) {
				out.Counts[f]++
			}
		}
		if matchesFilter(filter, a, today) {
			out.Items = append(out.Items, AppointmentView{Appointment: a, CanCancel: canCancel(a, today)})
		}
	}
	slices.SortFunc(out.Items, func(x, y AppointmentView) int { return newestFirst(x.Appointment, y.Appointment) })
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Appointment, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, storeError("get appointment", err)
	}
	return a, nil
}

// GetForTutor returns the appointment only if tutorID owns it.
func (s *Service) GetForTutor(ctx context.Context, tutorID, id string) (*Appointment, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.TutorID != tutorID {
		return nil, ErrPermissionDenied
	}
	return a, nil
}

func (s *Service) Cancel(ctx context.Context, tutorID, id string) (*Appointment, error) {
	a, err := s.GetForTutor(ctx, tutorID, id)
	if err != nil {
		return nil, err
	}
	today := s.clock.now(ctx).Format(DateLayout)
	if !canCancel(a, today) {
		return nil, ErrNotCancellable
	}
	return s.setStatus(ctx, a, StatusCancelled, tutorID)
}

// Confirm moves a pending appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id, by string) (*Appointment, error) {
	return s.Transition(ctx, id, StatusConfirmed, by)
}

func (s *Service) Complete(ctx context.Context, id, by string) (*Appointment, error) {
	return s.Transition(ctx, id, StatusCompleted, by)
}

// Transition applies a dentist-driven status change.
func (s *Service) Transition(ctx context.Context, id string, to Status, by string) (*Appointment, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, a.Status, to)
	}
	return s.setStatus(ctx, a, to, by)
}

var statusEvents = map[Status]string{
	StatusCancelled: events.AppointmentCancelled,
	StatusConfirmed: events.AppointmentConfirmed,
	StatusCompleted: events.AppointmentCompleted,
}

func (s *Service) setStatus(ctx context.Context, a *Appointment, to Status, by string) (*Appointment, error) {
	if err := s.store.UpdateStatus(ctx, a.ID, to, by); err != nil {
		return nil, storeError("update appointment status", err)
	}
	from := a.Status
	a.Status = to
	a.UpdatedBy = by
	s.logger.Info().Str("appointment_id", a.ID).Str("from", string(from)).Str("to", string(to)).Str("by", by).Msg("appointment status changed")
	s.publish(ctx, statusEvents[to], a)
	return a, nil
}

func (s *Service) Search(ctx context.Context, f SearchFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, &ValidationError{Field: "status", Message: "unknown status " + string(f.Status)}
	}
	items, total, err := s.store.Search(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, storeError("search appointments", err)
	}
	return items, total, nil
}

// publish never fails the caller; a lost event is only logged.
func (s *Service) publish(ctx context.Context, eventType string, a *Appointment) {
	publishEvent(ctx, s.publisher, s.logger, eventType, a)
}

func publishEvent(ctx context.Context, pub events.Publisher, logger zerolog.Logger, eventType string, a *Appointment) error {
	evt := events.Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: a.ID,
		OccurredAt:  time.Now().UTC(),
		Data:        a,
	}
	if err := pub.Publish(ctx, evt); err != nil {
		logger.Warn().Err(err).Str("event_type", eventType).Str("appointment_id", a.ID).Msg("event publish failed")
		return err
	}
	return nil
}
