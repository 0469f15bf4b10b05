package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dentalcare/clinic/internal/platform/clock"
)

// Guard re-checks a slot immediately before writing a booking.
//
// By default the check and the create are separate store calls, so two
// concurrent bookings of one slot can both succeed. With strict set and a
// store implementing SlotReserver the two steps become one atomic write.
type Guard struct {
	store   AppointmentStore
	clock   clinicClock
	offered map[string]bool
	strict  bool
	// maxDaysAhead bounds how far ahead a slot may be booked; zero means no bound.
	maxDaysAhead int
}

func NewGuard(store AppointmentStore, src clock.Source, loc *time.Location, offered []string, strict bool, maxDaysAhead int, logger zerolog.Logger) *Guard {
	set := make(map[string]bool, len(offered))
	for _, t := range offered {
		set[t] = true
	}
	return &Guard{
		store:   store,
		clock:   clinicClock{source: src, loc: loc, logger: logger},
		offered: set,
		strict:  strict,

		maxDaysAhead: maxDaysAhead,
	}
}

// Strict reports whether bookings go through the store's atomic path.
func (g *Guard) Strict() bool {
	_, ok := g.store.(SlotReserver)
	return g.strict && ok
}

// AttemptBook creates a pending appointment at date and slot, or rejects
// with ErrInvalidSlot, ErrPastSlot or ErrSlotTaken without writing.
func (g *Guard) AttemptBook(ctx context.Context, date, slot string, req BookingRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "scheduling.AttemptBook")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointment.date", date),
		attribute.String("appointment.time", slot),
		attribute.Bool("booking.strict", g.Strict()),
	)

	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	if !g.offered[slot] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}

	now := g.clock.now(ctx)
	today := now.Format(DateLayout)
	if date < today || (date == today && slotStarted(slot, now)) {
		return nil, fmt.Errorf("%w: %s %s", ErrPastSlot, date, slot)
	}
	if g.maxDaysAhead > 0 {
		limit := time.Date(now.Year(), now.Month(), now.Day()+g.maxDaysAhead, 0, 0, 0, 0, now.Location())
		if date > limit.Format(DateLayout) {
			return nil, fmt.Errorf("%w: %s", ErrOutOfRange, date)
		}
	}

	appt := &Appointment{
		TutorID:    req.TutorID,
		TutorEmail: req.TutorEmail,
		TutorName:  req.TutorName,
		ChildID:    req.ChildID,
		ChildName:  req.ChildName,
		Date:       date,
		Time:       slot,
		Reason:     req.Reason,
		Notes:      req.Notes,
		Status:     StatusPending,
	}

	if reserver, ok := g.store.(SlotReserver); ok && g.strict {
		if err := reserver.CreateIfFree(ctx, appt); err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return nil, fmt.Errorf("%w: %s %s", ErrSlotTaken, date, slot)
			}
			span.RecordError(err)
			return nil, storeError("reserve slot", err)
		}
		return appt, nil
	}

	existing, err := g.store.ListByDate(ctx, date)
	if err != nil {
		span.RecordError(err)
		return nil, storeError("list appointments for "+date, err)
	}
	for _, a := range existing {
		if a.Time == slot && a.Status != StatusCancelled {
			return nil, fmt.Errorf("%w: %s %s", ErrSlotTaken, date, slot)
		}
	}

	if err := g.store.Create(ctx, appt); err != nil {
		span.RecordError(err)
		return nil, storeError("create appointment", err)
	}
	return appt, nil
}
