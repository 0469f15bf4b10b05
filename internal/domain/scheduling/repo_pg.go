package scheduling

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentalcare/clinic/internal/platform/db"
)

type AppointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) *AppointmentRepoPG {
	return &AppointmentRepoPG{pool: pool}
}

func (r *AppointmentRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const apptCols = `id::text, tutor_id, tutor_email, tutor_name, COALESCE(child_id::text, ''), child_name,
	to_char(appt_date, 'YYYY-MM-DD'), appt_time, reason, notes, status, COALESCE(updated_by, ''),
	created_at, updated_at`

func (r *AppointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.TutorID, &a.TutorEmail, &a.TutorName, &a.ChildID, &a.ChildName,
		&a.Date, &a.Time, &a.Reason, &a.Notes, &a.Status, &a.UpdatedBy,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapPGError(err)
	}
	return &a, nil
}

// mapPGError translates driver errors into the store's sentinel errors.
func mapPGError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42501" {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, pgErr.Message)
	}
	return err
}

func (r *AppointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	return r.insert(ctx, r.conn(ctx), a)
}

func (r *AppointmentRepoPG) insert(ctx context.Context, q db.Queryable, a *Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	err := q.QueryRow(ctx, `
		INSERT INTO appointments (id, tutor_id, tutor_email, tutor_name, child_id, child_name,
			appt_date, appt_time, reason, notes, status)
		VALUES ($1::uuid, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7::date, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		a.ID, a.TutorID, a.TutorEmail, a.TutorName, a.ChildID, a.ChildName,
		a.Date, a.Time, a.Reason, a.Notes, a.Status).Scan(&a.CreatedAt, &a.UpdatedAt)
	return mapPGError(err)
}

// slotLockKey derives the advisory lock key for one (date, time) pair.
func slotLockKey(date, slot string) int64 {
	h := fnv.New64a()
	h.Write([]byte("appointment-slot:" + date + "T" + slot))
	return int64(h.Sum64())
}

// CreateIfFree serialises bookings of the same slot with a transaction-scoped
// advisory lock, then re-checks and inserts.
func (r *AppointmentRepoPG) CreateIfFree(ctx context.Context, a *Appointment) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, slotLockKey(a.Date, a.Time)); err != nil {
			return mapPGError(err)
		}
		var taken bool
		err := q.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM appointments
				WHERE appt_date = $1::date AND appt_time = $2 AND status <> 'cancelled')`,
			a.Date, a.Time).Scan(&taken)
		if err != nil {
			return mapPGError(err)
		}
		if taken {
			return ErrSlotTaken
		}
		return r.insert(ctx, q, a)
	})
}

func (r *AppointmentRepoPG) GetByID(ctx context.Context, id string) (*Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1::uuid`, id))
}

func (r *AppointmentRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, mapPGError(err)
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, mapPGError(rows.Err())
}

func (r *AppointmentRepoPG) ListByDate(ctx context.Context, date string) ([]*Appointment, error) {
	return r.list(ctx, `SELECT `+apptCols+` FROM appointments WHERE appt_date = $1::date ORDER BY appt_time`, date)
}

func (r *AppointmentRepoPG) ListByTutor(ctx context.Context, tutorID string) ([]*Appointment, error) {
	return r.list(ctx, `SELECT `+apptCols+` FROM appointments WHERE tutor_id = $1
		ORDER BY appt_date DESC, appt_time DESC`, tutorID)
}

func (r *AppointmentRepoPG) UpdateStatus(ctx context.Context, id string, status Status, updatedBy string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status = $2, updated_by = $3, updated_at = NOW()
		WHERE id = $1::uuid`, id, status, updatedBy)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns user text into an ILIKE pattern that matches it as a
// literal substring, the way SearchFilter.Matches does.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(s)) + "%"
}

func (r *AppointmentRepoPG) Search(ctx context.Context, f SearchFilter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Date != "" {
		where += fmt.Sprintf(` AND appt_date = $%d::date`, idx)
		args = append(args, f.Date)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Tutor != "" {
		where += fmt.Sprintf(` AND (tutor_name || ' ' || tutor_email) ILIKE $%d ESCAPE '\'`, idx)
		args = append(args, containsPattern(f.Tutor))
		idx++
	}
	if f.Patient != "" {
		where += fmt.Sprintf(` AND child_name ILIKE $%d ESCAPE '\'`, idx)
		args = append(args, containsPattern(f.Patient))
		idx++
	}
	if f.Reason != "" {
		where += fmt.Sprintf(` AND reason ILIKE $%d ESCAPE '\'`, idx)
		args = append(args, containsPattern(f.Reason))
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, mapPGError(err)
	}

	query := `SELECT ` + apptCols + ` FROM appointments` + where +
		fmt.Sprintf(` ORDER BY appt_date DESC, appt_time DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	items, err := r.list(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
