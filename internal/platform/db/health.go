package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 3 * time.Second

// Pinger is the subset of *pgxpool.Pool the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
	Stat() *pgxpool.Stat
}

type poolReport struct {
	Total      int32   `json:"total"`
	Idle       int32   `json:"idle"`
	InUse      int32   `json:"in_use"`
	Max        int32   `json:"max"`
	Acquires   int64   `json:"acquires"`
	AvgWaitMS  float64 `json:"avg_wait_ms"`
	EmptyWaits int64   `json:"empty_acquires"`
}

type healthReport struct {
	Status    string      `json:"status"`
	Error     string      `json:"error,omitempty"`
	LatencyMS int64       `json:"latency_ms"`
	Pool      *poolReport `json:"pool,omitempty"`
}

func reportPool(stat *pgxpool.Stat) *poolReport {
	if stat == nil {
		return nil
	}
	r := &poolReport{
		Total:      stat.TotalConns(),
		Idle:       stat.IdleConns(),
		InUse:      stat.AcquiredConns(),
		Max:        stat.MaxConns(),
		Acquires:   stat.AcquireCount(),
		EmptyWaits: stat.EmptyAcquireCount(),
	}
	if r.Acquires > 0 {
		r.AvgWaitMS = float64(stat.AcquireDuration().Milliseconds()) / float64(r.Acquires)
	}
	return r
}

// HealthHandler serves /health/db: a bounded ping plus pool counters. Profiles
// and clinical records live in postgres, so a failed ping is a 503.
func HealthHandler(p Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		start := time.Now()
		err := p.Ping(ctx)
		report := healthReport{
			Status:    "ok",
			LatencyMS: time.Since(start).Milliseconds(),
			Pool:      reportPool(p.Stat()),
		}
		if err != nil {
			report.Status = "unavailable"
			report.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}
