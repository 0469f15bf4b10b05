package scheduling

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dentalcare/clinic/internal/platform/clock"
)

func slotMap(sched DaySchedule) map[string]bool {
	m := make(map[string]bool, len(sched.Slots))
	for _, s := range sched.Slots {
		m[s.Time] = s.Available
	}
	return m
}

func TestAnnotateSlots_TodayAt0915(t *testing.T) {
	now := clinicNow(t)
	sched := annotateSlots(defaultOffered, nil, "2026-10-16", now)

	if !sched.IsToday || sched.IsPast {
		t.Fatalf("expected today and not past, got today=%v past=%v", sched.IsToday, sched.IsPast)
	}
	if len(sched.Slots) != len(defaultOffered) {
		t.Fatalf("expected %d slots, got %d", len(defaultOffered), len(sched.Slots))
	}
	slots := slotMap(sched)
	if slots["09:00"] {
		t.Error("09:00 has started and must be unavailable")
	}
	for _, tm := range defaultOffered[1:] {
		if !slots[tm] {
			t.Errorf("%s should be available", tm)
		}
	}
}

func TestAnnotateSlots_BoundaryMinute(t *testing.T) {
	loc := mexicoCity(t)
	now := time.Date(2026, 10, 16, 9, 30, 0, 0, loc)
	slots := slotMap(annotateSlots(defaultOffered, nil, "2026-10-16", now))
	if slots["09:30"] {
		t.Error("a slot starting at the current minute must be unavailable")
	}
	if !slots["10:00"] {
		t.Error("10:00 should be available")
	}

	now = time.Date(2026, 10, 16, 18, 0, 0, 0, loc)
	sched := annotateSlots(defaultOffered, nil, "2026-10-16", now)
	if got := sched.AvailableTimes(); len(got) != 0 {
		t.Errorf("expected no slots left at 18:00, got %v", got)
	}
}

func TestAnnotateSlots_OrderPreserved(t *testing.T) {
	offered := []string{"16:00", "09:00", "12:30"}
	sched := annotateSlots(offered, nil, "2026-10-20", clinicNow(t))
	for i, s := range sched.Slots {
		if s.Time != offered[i] {
			t.Errorf("slot %d: expected %s, got %s", i, offered[i], s.Time)
		}
	}
}

func TestAnnotateSlots_PastDate(t *testing.T) {
	sched := annotateSlots(defaultOffered, nil, "2026-10-15", clinicNow(t))
	if !sched.IsPast {
		t.Fatal("expected is_past")
	}
	if got := sched.AvailableTimes(); len(got) != 0 {
		t.Errorf("expected every slot unavailable on a past date, got %v", got)
	}
}

func newTestResolver(t *testing.T, store AppointmentStore, src clock.Source) *Resolver {
	return NewResolver(store, src, mexicoCity(t), defaultOffered, zerolog.Nop())
}

func TestResolver_FutureDayWithAppointments(t *testing.T) {
	store := newCountingStore()
	store.seed(t, "tutor-1", "2026-10-21", "10:00", StatusConfirmed)
	store.seed(t, "tutor-1", "2026-10-21", "11:00", StatusPending)
	store.seed(t, "tutor-1", "2026-10-21", "12:00", StatusCancelled)
	store.seed(t, "tutor-1", "2026-10-21", "14:00", StatusCompleted)
	store.seed(t, "tutor-1", "2026-10-22", "15:00", StatusConfirmed)

	sched, err := newTestResolver(t, store, clock.Fixed(clinicNow(t))).ComputeAvailability(context.Background(), "2026-10-21")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sched.IsToday || sched.IsPast {
		t.Error("expected a future day")
	}
	slots := slotMap(*sched)
	for tm, want := range map[string]bool{
		"10:00": false, "11:00": false, "12:00": true, "14:00": true, "15:00": true, "09:00": true,
	} {
		if slots[tm] != want {
			t.Errorf("%s: expected available=%v", tm, want)
		}
	}
	if sched.Date != "2026-10-21" || !sched.GeneratedAt.Equal(clinicNow(t)) {
		t.Errorf("expected date and generated_at echoed, got %s %v", sched.Date, sched.GeneratedAt)
	}
}

func TestResolver_Idempotent(t *testing.T) {
	store := newCountingStore()
	store.seed(t, "tutor-1", "2026-10-21", "10:00", StatusConfirmed)
	r := newTestResolver(t, store, clock.Fixed(clinicNow(t)))

	first, err := r.ComputeAvailability(context.Background(), "2026-10-21")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.ComputeAvailability(context.Background(), "2026-10-21")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical results, got %+v and %+v", first, second)
	}
	if store.writes() != 0 {
		t.Errorf("availability must not write, got %d writes", store.writes())
	}
}

func TestResolver_ClockFailureFallsBack(t *testing.T) {
	failing := clock.Func(func(context.Context) (time.Time, error) {
		return time.Time{}, clock.ErrUnavailable
	})
	r := newTestResolver(t, newCountingStore(), failing)

	before := time.Now()
	sched, err := r.ComputeAvailability(context.Background(), "2099-01-05")
	if err != nil {
		t.Fatalf("clock failure must not fail the query, got %v", err)
	}
	if sched.GeneratedAt.Before(before.Add(-time.Second)) || sched.GeneratedAt.After(time.Now().Add(time.Second)) {
		t.Errorf("expected system time, got %v", sched.GeneratedAt)
	}
	if sched.GeneratedAt.Location().String() != "America/Mexico_City" {
		t.Errorf("expected clinic timezone, got %s", sched.GeneratedAt.Location())
	}
}

func TestResolver_StoreFailure(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(), err: errors.New("connection reset")}
	_, err := newTestResolver(t, store, clock.Fixed(clinicNow(t))).ComputeAvailability(context.Background(), "2026-10-21")
	if !errors.Is(err, ErrStoreQueryFailed) {
		t.Fatalf("expected ErrStoreQueryFailed, got %v", err)
	}
}

func TestResolver_PermissionDenied(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(), err: ErrPermissionDenied}
	_, err := newTestResolver(t, store, clock.Fixed(clinicNow(t))).ComputeAvailability(context.Background(), "2026-10-21")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if errors.Is(err, ErrStoreQueryFailed) || errors.Is(err, ErrSlotTaken) {
		t.Errorf("permission failure must stay distinct, got %v", err)
	}
}

func TestResolver_InvalidDate(t *testing.T) {
	r := newTestResolver(t, newCountingStore(), clock.Fixed(clinicNow(t)))
	for _, d := range []string{"", "16/10/2026", "2026-13-01"} {
		if _, err := r.ComputeAvailability(context.Background(), d); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("%q: expected ErrInvalidDate, got %v", d, err)
		}
	}
}
