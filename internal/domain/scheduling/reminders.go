package scheduling

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dentalcare/clinic/internal/platform/clock"
	"github.com/dentalcare/clinic/internal/platform/events"
)

// ReminderWorker publishes a reminder event for each confirmed appointment of
// the next day. Every appointment is announced once per process.
type ReminderWorker struct {
	store     AppointmentStore
	clock     clinicClock
	publisher events.Publisher
	interval  time.Duration
	logger    zerolog.Logger

	// sent holds the ids already published, keyed by appointment date.
	sent map[string]map[string]bool
}

func NewReminderWorker(store AppointmentStore, src clock.Source, loc *time.Location, pub events.Publisher, interval time.Duration, logger zerolog.Logger) *ReminderWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	logger = logger.With().Str("component", "reminders").Logger()
	return &ReminderWorker{
		store:     store,
		clock:     clinicClock{source: src, loc: loc, logger: logger},
		publisher: pub,
		interval:  interval,
		logger:    logger,
		sent:      make(map[string]map[string]bool),
	}
}

// Run ticks until ctx is cancelled. The first pass runs immediately.
func (w *ReminderWorker) Run(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("reminder worker started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if n, err := w.RunOnce(ctx); err != nil {
			w.logger.Error().Err(err).Msg("reminder pass failed")
		} else if n > 0 {
			w.logger.Info().Int("published", n).Msg("reminders published")
		}

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("reminder worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce publishes the reminders still due and returns how many it sent.
func (w *ReminderWorker) RunOnce(ctx context.Context) (int, error) {
	now := w.clock.now(ctx)
	tomorrow := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location()).Format(DateLayout)

	for date := range w.sent {
		if date < tomorrow {
			delete(w.sent, date)
		}
	}

	appts, err := w.store.ListByDate(ctx, tomorrow)
	if err != nil {
		return 0, storeError("list appointments for "+tomorrow, err)
	}

	seen := w.sent[tomorrow]
	if seen == nil {
		seen = make(map[string]bool)
		w.sent[tomorrow] = seen
	}

	published := 0
	for _, a := range appts {
		if a.Status != StatusConfirmed || seen[a.ID] {
			continue
		}
		if err := publishEvent(ctx, w.publisher, w.logger, events.AppointmentReminderDue, a); err != nil {
			continue
		}
		seen[a.ID] = true
		published++
	}
	return published, nil
}
