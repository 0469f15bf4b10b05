package db

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

func TestMigrationFS_ContainsOrderedGooseFiles(t *testing.T) {
	names, err := fs.Glob(MigrationFS(), "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	want := []string{"001_identity.sql", "002_appointments.sql", "003_clinical.sql"}
	if len(names) != len(want) {
		t.Fatalf("expected %d migrations, got %v", len(want), names)
	}
	for i, name := range names {
		if name != want[i] {
			t.Errorf("migration %d: expected %s, got %s", i, want[i], name)
		}
		body, err := fs.ReadFile(MigrationFS(), name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !strings.Contains(string(body), "-- +goose Up") || !strings.Contains(string(body), "-- +goose Down") {
			t.Errorf("%s is missing goose Up/Down annotations", name)
		}
	}
}

func TestMigrationFS_AppointmentsHaveNoSlotUniqueness(t *testing.T) {
	body, err := fs.ReadFile(MigrationFS(), "002_appointments.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	upper := strings.ToUpper(string(body))
	if strings.Contains(upper, "CREATE UNIQUE") || strings.Contains(upper, "UNIQUE (") {
		t.Error("appointments must not carry a (date, time) unique constraint")
	}
}

// -- WithTx --

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(context.Context) error   { f.committed = true; return nil }
func (f *fakeTx) Rollback(context.Context) error { f.rolledBack = true; return nil }

type fakeBeginner struct {
	tx     *fakeTx
	begins int
}

func (b *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	b.begins++
	return b.tx, nil
}

func TestWithTx_CommitsAndExposesTx(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	err := WithTx(context.Background(), b, func(ctx context.Context) error {
		if ConnFromContext(ctx) == nil {
			t.Error("expected transaction in context")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.tx.committed {
		t.Error("expected commit")
	}
}

func TestWithTx_ErrorSkipsCommit(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	boom := errors.New("boom")
	err := WithTx(context.Background(), b, func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if b.tx.committed {
		t.Error("expected no commit on error")
	}
	if !b.tx.rolledBack {
		t.Error("expected rollback on error")
	}
}

func TestWithTx_NestedReusesOuter(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	_ = WithTx(context.Background(), b, func(ctx context.Context) error {
		return WithTx(ctx, b, func(context.Context) error { return nil })
	})
	if b.begins != 1 {
		t.Errorf("expected a single Begin, got %d", b.begins)
	}
}

func TestConnFromContext_Empty(t *testing.T) {
	if ConnFromContext(context.Background()) != nil {
		t.Error("expected nil without a transaction")
	}
}

// -- HealthHandler --

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }
func (f fakePinger) Stat() *pgxpool.Stat        { return nil }

func TestHealthHandler(t *testing.T) {
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)
	if err := HealthHandler(fakePinger{})(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)
	if err := HealthHandler(fakePinger{err: errors.New("down")})(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"unavailable"`) || !strings.Contains(rec.Body.String(), `"error":"down"`) {
		t.Errorf("expected unavailable report, got %s", rec.Body.String())
	}
}
