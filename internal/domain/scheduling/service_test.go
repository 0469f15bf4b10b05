package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"

	"github.com/dentalcare/clinic/internal/platform/clock"
	"github.com/dentalcare/clinic/internal/platform/events"
)

// -- Test fixtures --

var defaultOffered = []string{
	"09:00", "09:30", "10:00", "10:30", "11:00", "11:30", "12:00", "12:30",
	"14:00", "14:30", "15:00", "15:30", "16:00", "16:30", "17:00", "17:30", "18:00",
}

func mexicoCity(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Mexico_City")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

// clinicNow is 2026-10-16 09:15 in Mexico City.
func clinicNow(t *testing.T) time.Time {
	return time.Date(2026, 10, 16, 9, 15, 0, 0, mexicoCity(t))
}

// countingStore records writes on top of the in-memory store.
type countingStore struct {
	*MemoryStore
	mu      sync.Mutex
	creates int
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: NewMemoryStore()}
}

func (s *countingStore) Create(ctx context.Context, a *Appointment) error {
	s.mu.Lock()
	s.creates++
	s.mu.Unlock()
	return s.MemoryStore.Create(ctx, a)
}

func (s *countingStore) CreateIfFree(ctx context.Context, a *Appointment) error {
	err := s.MemoryStore.CreateIfFree(ctx, a)
	if err == nil {
		s.mu.Lock()
		s.creates++
		s.mu.Unlock()
	}
	return err
}

func (s *countingStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

func (s *countingStore) seed(t *testing.T, tutorID, date, slot string, status Status) *Appointment {
	t.Helper()
	a := &Appointment{TutorID: tutorID, Date: date, Time: slot, Status: status, Reason: "revisión general"}
	if err := s.MemoryStore.Create(context.Background(), a); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return a
}

// failingStore fails every read with err.
type failingStore struct {
	*MemoryStore
	err error
}

func (s *failingStore) ListByDate(context.Context, string) ([]*Appointment, error) {
	return nil, s.err
}

func (s *failingStore) ListByTutor(context.Context, string) ([]*Appointment, error) {
	return nil, s.err
}

type mockDirectory struct {
	tutors   map[string]string
	children map[string]map[string]string
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		tutors: map[string]string{"tutor-1": "Ana López"},
		children: map[string]map[string]string{
			"tutor-1": {"child-1": "Mateo López"},
		},
	}
}

func (d *mockDirectory) TutorName(_ context.Context, tutorID string) (string, error) {
	name, ok := d.tutors[tutorID]
	if !ok {
		return "", fmt.Errorf("tutor not found")
	}
	return name, nil
}

func (d *mockDirectory) ChildName(_ context.Context, tutorID, childID string) (string, error) {
	name, ok := d.children[tutorID][childID]
	if !ok {
		return "", ErrUnknownChild
	}
	return name, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestService(t *testing.T) (*Service, *countingStore, *recordingPublisher) {
	t.Helper()
	store := newCountingStore()
	pub := &recordingPublisher{}
	svc := NewService(store, clock.Fixed(clinicNow(t)), newMockDirectory(), pub, Config{
		Location:     mexicoCity(t),
		OfferedTimes: defaultOffered,
		MaxDaysAhead: 60,
	}, zerolog.Nop())
	return svc, store, pub
}

func validBooking(date, slot string) BookInput {
	return BookInput{Date: date, Time: slot, ChildID: "child-1", Reason: "Dolor en una muela"}
}

// -- Book --

func TestService_Book(t *testing.T) {
	svc, store, pub := newTestService(t)

	appt, err := svc.Book(context.Background(), "tutor-1", "ana@example.com", validBooking("2026-10-20", "10:00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != StatusPending {
		t.Errorf("expected pending, got %s", appt.Status)
	}
	if appt.ChildName != "Mateo López" || appt.TutorName != "Ana López" {
		t.Errorf("expected names from the directory, got child=%q tutor=%q", appt.ChildName, appt.TutorName)
	}
	if appt.CreatedAt.IsZero() || appt.UpdatedAt.IsZero() {
		t.Error("expected server timestamps")
	}
	if store.writes() != 1 {
		t.Errorf("expected exactly one write, got %d", store.writes())
	}
	if got := pub.types(); len(got) != 1 || got[0] != events.AppointmentBooked {
		t.Errorf("expected one booked event, got %v", got)
	}
}

func TestService_Book_Validation(t *testing.T) {
	svc, store, _ := newTestService(t)

	tests := []struct {
		name string
		in   BookInput
	}{
		{"missing date", BookInput{Time: "10:00", ChildID: "child-1", Reason: "Dolor en una muela"}},
		{"missing time", BookInput{Date: "2026-10-20", ChildID: "child-1", Reason: "Dolor en una muela"}},
		{"missing child", BookInput{Date: "2026-10-20", Time: "10:00", Reason: "Dolor en una muela"}},
		{"short reason", BookInput{Date: "2026-10-20", Time: "10:00", ChildID: "child-1", Reason: "dolor"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Book(context.Background(), "tutor-1", "", tt.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if store.writes() != 0 {
		t.Errorf("expected no writes, got %d", store.writes())
	}
}

func TestService_Book_UnknownChild(t *testing.T) {
	svc, store, _ := newTestService(t)
	in := validBooking("2026-10-20", "10:00")
	in.ChildID = "someone-elses-child"

	if _, err := svc.Book(context.Background(), "tutor-1", "", in); !errors.Is(err, ErrUnknownChild) {
		t.Fatalf("expected ErrUnknownChild, got %v", err)
	}
	if store.writes() != 0 {
		t.Errorf("expected no writes, got %d", store.writes())
	}
}

func TestService_Book_PublishFailureDoesNotFail(t *testing.T) {
	svc, _, pub := newTestService(t)
	pub.err = errors.New("broker down")

	if _, err := svc.Book(context.Background(), "tutor-1", "", validBooking("2026-10-20", "10:00")); err != nil {
		t.Fatalf("expected booking to succeed despite publish failure, got %v", err)
	}
}

// -- Availability --

func TestService_Availability_PastDate(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Availability(context.Background(), "2026-10-15"); !errors.Is(err, ErrPastDate) {
		t.Fatalf("expected ErrPastDate, got %v", err)
	}
}

func TestService_Availability_Today(t *testing.T) {
	svc, _, _ := newTestService(t)
	sched, err := svc.Availability(context.Background(), "2026-10-16")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sched.IsToday {
		t.Error("expected is_today")
	}
}

// -- Tutor list --

func TestService_ListForTutor(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.seed(t, "tutor-1", "2026-10-20", "10:00", StatusPending)
	store.seed(t, "tutor-1", "2026-10-20", "16:00", StatusConfirmed)
	store.seed(t, "tutor-1", "2026-10-16", "09:00", StatusConfirmed)
	store.seed(t, "tutor-1", "2026-10-01", "11:00", StatusCompleted)
	store.seed(t, "tutor-1", "2026-10-25", "11:00", StatusCancelled)
	store.seed(t, "tutor-2", "2026-10-21", "11:00", StatusPending)

	list, err := svc.ListForTutor(context.Background(), "tutor-1", FilterAll)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list.Items) != 5 {
		t.Fatalf("expected 5 appointments, got %d", len(list.Items))
	}

	wantOrder := []string{"2026-10-25 11:00", "2026-10-20 16:00", "2026-10-20 10:00", "2026-10-16 09:00", "2026-10-01 11:00"}
	for i, item := range list.Items {
		if got := item.Date + " " + item.Time; got != wantOrder[i] {
			t.Errorf("item %d: expected %s, got %s", i, wantOrder[i], got)
		}
	}

	wantCancel := map[string]bool{
		"2026-10-25 11:00": false, // cancelled
		"2026-10-20 16:00": true,
		"2026-10-20 10:00": true,
		"2026-10-16 09:00": true, // today still counts
		"2026-10-01 11:00": false,
	}
	for _, item := range list.Items {
		key := item.Date + " " + item.Time
		if item.CanCancel != wantCancel[key] {
			t.Errorf("%s: expected can_cancel=%v", key, wantCancel[key])
		}
	}

	wantCounts := map[string]int{FilterAll: 5, FilterUpcoming: 3, FilterPending: 1, FilterConfirmed: 2, FilterPast: 1}
	for f, want := range wantCounts {
		if list.Counts[f] != want {
			t.Errorf("count %s: expected %d, got %d", f, want, list.Counts[f])
		}
	}

	upcoming, err := svc.ListForTutor(context.Background(), "tutor-1", FilterUpcoming)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(upcoming.Items) != 3 {
		t.Errorf("expected 3 upcoming, got %d", len(upcoming.Items))
	}
}

func TestService_ListForTutor_UnknownFilter(t *testing.T) {
	svc, _, _ := newTestService(t)
	var verr *ValidationError
	if _, err := svc.ListForTutor(context.Background(), "tutor-1", "tomorrow"); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

// -- Cancel / transitions --

func TestService_Cancel(t *testing.T) {
	svc, store, pub := newTestService(t)
	a := store.seed(t, "tutor-1", "2026-10-20", "10:00", StatusConfirmed)

	got, err := svc.Cancel(context.Background(), "tutor-1", a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
	stored, _ := store.GetByID(context.Background(), a.ID)
	if stored.Status != StatusCancelled || stored.UpdatedBy != "tutor-1" {
		t.Errorf("expected stored status cancelled by tutor-1, got %s by %q", stored.Status, stored.UpdatedBy)
	}
	if types := pub.types(); len(types) != 1 || types[0] != events.AppointmentCancelled {
		t.Errorf("expected cancelled event, got %v", types)
	}
}

func TestService_Cancel_Rejections(t *testing.T) {
	svc, store, _ := newTestService(t)
	mine := store.seed(t, "tutor-1", "2026-10-20", "10:00", StatusPending)
	past := store.seed(t, "tutor-1", "2026-10-01", "10:00", StatusConfirmed)
	done := store.seed(t, "tutor-1", "2026-10-20", "12:00", StatusCompleted)

	if _, err := svc.Cancel(context.Background(), "tutor-2", mine.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("other tutor: expected ErrPermissionDenied, got %v", err)
	}
	if _, err := svc.Cancel(context.Background(), "tutor-1", past.ID); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("past: expected ErrNotCancellable, got %v", err)
	}
	if _, err := svc.Cancel(context.Background(), "tutor-1", done.ID); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("completed: expected ErrNotCancellable, got %v", err)
	}
	if _, err := svc.Cancel(context.Background(), "tutor-1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: expected ErrNotFound, got %v", err)
	}
}

func TestService_Confirm(t *testing.T) {
	svc, store, pub := newTestService(t)
	pending := store.seed(t, "tutor-1", "2026-10-20", "10:00", StatusPending)

	got, err := svc.Confirm(context.Background(), pending.ID, "dentist-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", got.Status)
	}
	if _, err := svc.Confirm(context.Background(), pending.ID, "dentist-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition confirming twice, got %v", err)
	}
	if _, err := svc.Complete(context.Background(), pending.ID, "dentist-1"); err != nil {
		t.Errorf("expected confirmed to complete, got %v", err)
	}
	if types := pub.types(); len(types) != 2 || types[0] != events.AppointmentConfirmed || types[1] != events.AppointmentCompleted {
		t.Errorf("unexpected events %v", types)
	}
}

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

// -- Search --

func TestService_Search(t *testing.T) {
	svc, store, _ := newTestService(t)
	for i, name := range []string{"Mateo López", "Lucía Pérez", "Mateo Ruiz"} {
		a := &Appointment{
			TutorID: "t", TutorName: "Ana", TutorEmail: "ana@example.com", ChildName: name,
			Date: "2026-10-2" + fmt.Sprint(i), Time: "10:00", Reason: "Limpieza dental", Status: StatusPending,
		}
		store.MemoryStore.Create(context.Background(), a)
	}

	items, total, err := svc.Search(context.Background(), SearchFilter{Patient: "mateo"}, 1, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 1 {
		t.Fatalf("expected 1 of 2 results, got %d of %d", len(items), total)
	}
	if items[0].ChildName != "Mateo Ruiz" {
		t.Errorf("expected newest first, got %s", items[0].ChildName)
	}

	if _, _, err := svc.Search(context.Background(), SearchFilter{Status: "lost"}, 10, 0); err == nil {
		t.Error("expected error for unknown status")
	}
}

// -- Calendar --

func TestService_Calendar_DefaultsToCurrentMonth(t *testing.T) {
	svc, _, _ := newTestService(t)
	cal := svc.Calendar(context.Background(), 0, 0)
	if cal.Year != 2026 || cal.Month != 10 {
		t.Errorf("expected 2026-10, got %d-%d", cal.Year, cal.Month)
	}
}
