package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentalcare/clinic/internal/platform/db"
)

// mapPGError translates driver errors into the package's sentinel errors.
func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrEmailTaken
		case "23503":
			return ErrProfileIncomplete
		}
	}
	return err
}

// -- Tutor Repository --

type tutorRepoPG struct {
	pool *pgxpool.Pool
}

func NewTutorRepo(pool *pgxpool.Pool) TutorRepository {
	return &tutorRepoPG{pool: pool}
}

func (r *tutorRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const tutorCols = `id, email, first_name, paternal_surname, maternal_surname, phone, role,
	profile_complete, created_at, updated_at`

func (r *tutorRepoPG) scanTutor(row pgx.Row) (*Tutor, error) {
	var t Tutor
	err := row.Scan(&t.ID, &t.Email, &t.FirstName, &t.PaternalSurname, &t.MaternalSurname,
		&t.Phone, &t.Role, &t.ProfileComplete, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, mapPGError(err)
	}
	return &t, nil
}

func (r *tutorRepoPG) Upsert(ctx context.Context, t *Tutor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO tutors (id, email, first_name, paternal_surname, maternal_surname, phone, role, profile_complete)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			paternal_surname = EXCLUDED.paternal_surname,
			maternal_surname = EXCLUDED.maternal_surname,
			phone = EXCLUDED.phone,
			profile_complete = EXCLUDED.profile_complete,
			updated_at = NOW()
		RETURNING role, created_at, updated_at`,
		t.ID, t.Email, t.FirstName, t.PaternalSurname, t.MaternalSurname, t.Phone, t.Role, t.ProfileComplete,
	).Scan(&t.Role, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert tutor: %w", mapPGError(err))
	}
	return nil
}

func (r *tutorRepoPG) GetByID(ctx context.Context, id string) (*Tutor, error) {
	return r.scanTutor(r.conn(ctx).QueryRow(ctx, `SELECT `+tutorCols+` FROM tutors WHERE id = $1`, id))
}

func (r *tutorRepoPG) Update(ctx context.Context, t *Tutor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE tutors SET first_name = $2, paternal_surname = $3, maternal_surname = $4,
			phone = $5, profile_complete = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.FirstName, t.PaternalSurname, t.MaternalSurname, t.Phone, t.ProfileComplete,
	).Scan(&t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update tutor: %w", mapPGError(err))
	}
	return nil
}

// -- Child Repository --

type childRepoPG struct {
	pool *pgxpool.Pool
}

func NewChildRepo(pool *pgxpool.Pool) ChildRepository {
	return &childRepoPG{pool: pool}
}

func (r *childRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const childCols = `id, tutor_id, first_name, paternal_surname, maternal_surname,
	to_char(birth_date, 'YYYY-MM-DD'), sex, COALESCE(allergies, ''), COALESCE(medical_history, ''),
	COALESCE(current_medications, ''), COALESCE(intraoral_exam, ''), created_at, updated_at`

func (r *childRepoPG) scanChild(row pgx.Row) (*Child, error) {
	var c Child
	err := row.Scan(&c.ID, &c.TutorID, &c.FirstName, &c.PaternalSurname, &c.MaternalSurname,
		&c.BirthDate, &c.Sex, &c.Allergies, &c.MedicalHistory, &c.CurrentMedications, &c.IntraoralExam,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapPGError(err)
	}
	return &c, nil
}

func (r *childRepoPG) Create(ctx context.Context, c *Child) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO children (id, tutor_id, first_name, paternal_surname, maternal_surname, birth_date, sex,
			allergies, medical_history, current_medications, intraoral_exam)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''))
		RETURNING created_at, updated_at`,
		c.ID, c.TutorID, c.FirstName, c.PaternalSurname, c.MaternalSurname, c.BirthDate, c.Sex,
		c.Allergies, c.MedicalHistory, c.CurrentMedications, c.IntraoralExam,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create child: %w", mapPGError(err))
	}
	return nil
}

func (r *childRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Child, error) {
	return r.scanChild(r.conn(ctx).QueryRow(ctx, `SELECT `+childCols+` FROM children WHERE id = $1`, id))
}

func (r *childRepoPG) ListByTutor(ctx context.Context, tutorID string) ([]*Child, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+childCols+` FROM children
		WHERE tutor_id = $1 ORDER BY created_at, first_name`, tutorID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var out []*Child
	for rows.Next() {
		c, err := r.scanChild(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *childRepoPG) Update(ctx context.Context, c *Child) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE children SET first_name = $2, paternal_surname = $3, maternal_surname = $4,
			birth_date = $5::date, sex = $6, allergies = NULLIF($7, ''), medical_history = NULLIF($8, ''),
			current_medications = NULLIF($9, ''), intraoral_exam = NULLIF($10, ''), updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.FirstName, c.PaternalSurname, c.MaternalSurname, c.BirthDate, c.Sex,
		c.Allergies, c.MedicalHistory, c.CurrentMedications, c.IntraoralExam,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update child: %w", mapPGError(err))
	}
	return nil
}

func (r *childRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM children WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete child: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
