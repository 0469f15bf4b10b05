package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dentalcare/clinic/internal/platform/clock"
	"github.com/dentalcare/clinic/internal/platform/telemetry"
)

var tracer = telemetry.Tracer("github.com/dentalcare/clinic/internal/domain/scheduling")

// clinicClock reads "now" in the clinic timezone. When the source fails it
// degrades to the local system clock; the degradation is logged, not fixed.
type clinicClock struct {
	source clock.Source
	loc    *time.Location
	logger zerolog.Logger
}

func (c clinicClock) now(ctx context.Context) time.Time {
	t, err := c.source.Now(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("clock source failed, using system clock")
		return time.Now().In(c.loc)
	}
	return t.In(c.loc)
}

// Resolver computes which offered times of a day are still bookable.
type Resolver struct {
	store   AppointmentStore
	clock   clinicClock
	offered []string
}

func NewResolver(store AppointmentStore, src clock.Source, loc *time.Location, offered []string, logger zerolog.Logger) *Resolver {
	return &Resolver{
		store:   store,
		clock:   clinicClock{source: src, loc: loc, logger: logger},
		offered: offered,
	}
}

// ComputeAvailability annotates every offered time of date. A store failure
// is returned as ErrStoreQueryFailed, never as an empty day.
func (r *Resolver) ComputeAvailability(ctx context.Context, date string) (*DaySchedule, error) {
	ctx, span := tracer.Start(ctx, "scheduling.ComputeAvailability")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.date", date))

	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	now := r.clock.now(ctx)

	appts, err := r.store.ListByDate(ctx, date)
	if err != nil {
		span.RecordError(err)
		return nil, storeError("list appointments for "+date, err)
	}

	taken := make(map[string]bool, len(appts))
	for _, a := range appts {
		if a.Status.ConsumesSlot() {
			taken[a.Time] = true
		}
	}

	sched := annotateSlots(r.offered, taken, date, now)
	return &sched, nil
}

// annotateSlots is the pure core of availability: one "now" in, annotated
// slots out, in offered order.
func annotateSlots(offered []string, taken map[string]bool, date string, now time.Time) DaySchedule {
	today := now.Format(DateLayout)
	sched := DaySchedule{
		Date:        date,
		IsToday:     date == today,
		IsPast:      date < today,
		Slots:       make([]TimeSlot, 0, len(offered)),
		GeneratedAt: now,
	}
	for _, t := range offered {
		available := !taken[t] && !sched.IsPast
		if available && sched.IsToday && slotStarted(t, now) {
			available = false
		}
		sched.Slots = append(sched.Slots, TimeSlot{Time: t, Available: available})
	}
	return sched
}

// slotStarted reports whether the HH:MM slot has begun at now. A slot
// starting at the current minute counts as started.
func slotStarted(slot string, now time.Time) bool {
	h, m, ok := parseClock(slot)
	if !ok {
		return true
	}
	return now.Hour() > h || (now.Hour() == h && now.Minute() >= m)
}

// storeError wraps a store failure as ErrStoreQueryFailed unless it already
// carries one of the store's own sentinels.
func storeError(op string, err error) error {
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreQueryFailed, err)
}
