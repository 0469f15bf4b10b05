package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dentalcare/clinic/internal/domain/scheduling"
	"github.com/dentalcare/clinic/internal/platform/db"
)

func slotsCmd() *cobra.Command {
	var (
		date     string
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print the slot availability for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loc, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fbApp, err := newFirebaseApp(ctx, cfg)
			if err != nil {
				return err
			}
			store, closeStore, err := buildAppointmentStore(ctx, cfg, pool, fbApp, loc)
			if err != nil {
				return err
			}
			defer closeStore()

			src := buildClock(cfg, loc, logger)
			resolver := scheduling.NewResolver(store, src, loc, cfg.OfferedTimes(), logger)

			if date == "" {
				now, err := src.Now(ctx)
				if err != nil {
					now = time.Now()
				}
				date = now.In(loc).Format(scheduling.DateLayout)
			}

			if !watch {
				sched, err := resolver.ComputeAvailability(ctx, date)
				if err != nil {
					return err
				}
				printSchedule(os.Stdout, sched)
				return nil
			}
			return watchSchedule(ctx, os.Stdout, resolver, date, interval)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to inspect as YYYY-MM-DD (default today in the clinic zone)")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep refreshing until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "refresh interval in watch mode")
	return cmd
}

type availabilityFunc func(ctx context.Context, date string) (*scheduling.DaySchedule, error)

type scheduleResult struct {
	seq   uint64
	sched *scheduling.DaySchedule
	err   error
}

// watchSchedule refreshes the day on every tick. Lookups run concurrently, so
// a slow response can land after a newer one; the tracker drops it.
func watchSchedule(ctx context.Context, w io.Writer, resolver *scheduling.Resolver, date string, interval time.Duration) error {
	return watchWith(ctx, w, resolver.ComputeAvailability, date, interval)
}

func watchWith(ctx context.Context, w io.Writer, lookup availabilityFunc, date string, interval time.Duration) error {
	var tracker scheduling.SelectionTracker
	results := make(chan scheduleResult, 4)

	request := func() {
		seq := tracker.Select(date)
		go func() {
			sched, err := lookup(ctx, date)
			select {
			case results <- scheduleResult{seq: seq, sched: sched, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	request()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			request()
		case res := <-results:
			if !tracker.Accept(res.seq, date) {
				continue
			}
			if res.err != nil {
				fmt.Fprintf(w, "error: %v\n", res.err)
				continue
			}
			printSchedule(w, res.sched)
		}
	}
}

func printSchedule(w io.Writer, sched *scheduling.DaySchedule) {
	var label []string
	if sched.IsToday {
		label = append(label, "today")
	}
	if sched.IsPast {
		label = append(label, "past")
	}
	header := sched.Date
	if len(label) > 0 {
		header += " (" + strings.Join(label, ", ") + ")"
	}
	fmt.Fprintf(w, "%s  generated %s\n", header, sched.GeneratedAt.Format(time.RFC3339))

	free := 0
	for _, s := range sched.Slots {
		state := "unavailable"
		if s.Available {
			state = "free"
			free++
		}
		fmt.Fprintf(w, "  %s  %s\n", s.Time, state)
	}
	fmt.Fprintf(w, "%d of %d slots free\n", free, len(sched.Slots))
}
