// Package clock provides the clinic's notion of "now". The authoritative time
// comes from a remote time service; when that is unreachable the local system
// clock is used instead, converted to the clinic timezone.
package clock

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnavailable is returned when a Source cannot produce the current time.
var ErrUnavailable = errors.New("clock source unavailable")

// Source returns the current instant expressed in the source's timezone.
type Source interface {
	Now(ctx context.Context) (time.Time, error)
}

// Func adapts a plain function to a Source.
type Func func(ctx context.Context) (time.Time, error)

func (f Func) Now(ctx context.Context) (time.Time, error) { return f(ctx) }

// Fixed returns a Source that always reports t.
func Fixed(t time.Time) Source {
	return Func(func(context.Context) (time.Time, error) { return t, nil })
}

// System reads the local clock.
type System struct {
	Location *time.Location
}

func (s System) Now(context.Context) (time.Time, error) {
	if s.Location == nil {
		return time.Now(), nil
	}
	return time.Now().In(s.Location), nil
}

// Fallback tries Primary and degrades to Secondary on any error. The
// degradation is logged; results from Secondary are returned without error.
type Fallback struct {
	Primary   Source
	Secondary Source
	Logger    zerolog.Logger
}

func NewFallback(primary, secondary Source, logger zerolog.Logger) *Fallback {
	return &Fallback{Primary: primary, Secondary: secondary, Logger: logger}
}

func (f *Fallback) Now(ctx context.Context) (time.Time, error) {
	now, err := f.Primary.Now(ctx)
	if err == nil {
		return now, nil
	}
	f.Logger.Warn().Err(err).Msg("authoritative clock unavailable, using local clock")
	return f.Secondary.Now(ctx)
}
