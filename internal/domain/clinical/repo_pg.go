package clinical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentalcare/clinic/internal/platform/db"
)

func mapPGError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// -- Clinical Note Repository --

type noteRepoPG struct {
	pool *pgxpool.Pool
}

func NewNoteRepo(pool *pgxpool.Pool) NoteRepository {
	return &noteRepoPG{pool: pool}
}

func (r *noteRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const noteCols = `appointment_id, to_char(appt_date, 'YYYY-MM-DD'), appt_time, tutor_id, tutor_name,
	COALESCE(tutor_phone, ''), COALESCE(patient_id::text, ''), patient_name, COALESCE(age, ''),
	COALESCE(allergies, ''), COALESCE(medications, ''), COALESCE(intraoral_exam, ''),
	COALESCE(medical_history, ''), COALESCE(professional, ''), COALESCE(reason, ''),
	COALESCE(diagnosis, ''), COALESCE(treatment, ''), COALESCE(next_appointment, ''),
	COALESCE(observations, ''), COALESCE(created_by, ''), COALESCE(updated_by, ''),
	created_at, updated_at`

func (r *noteRepoPG) scanNote(row pgx.Row) (*ClinicalNote, error) {
	var n ClinicalNote
	err := row.Scan(&n.AppointmentID, &n.Date, &n.Time, &n.TutorID, &n.TutorName,
		&n.TutorPhone, &n.PatientID, &n.PatientName, &n.Age,
		&n.Allergies, &n.Medications, &n.IntraoralExam,
		&n.MedicalHistory, &n.Professional, &n.Reason,
		&n.Diagnosis, &n.Treatment, &n.NextAppointment,
		&n.Observations, &n.CreatedBy, &n.UpdatedBy,
		&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, mapPGError(err)
	}
	return &n, nil
}

func (r *noteRepoPG) Upsert(ctx context.Context, n *ClinicalNote) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical_notes (appointment_id, appt_date, appt_time, tutor_id, tutor_name, tutor_phone,
			patient_id, patient_name, age, allergies, medications, intraoral_exam, medical_history,
			professional, reason, diagnosis, treatment, next_appointment, observations, created_by, updated_by)
		VALUES ($1, $2::date, $3, $4, $5, NULLIF($6, ''),
			NULLIF($7, '')::uuid, $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''),
			NULLIF($14, ''), NULLIF($15, ''), NULLIF($16, ''), NULLIF($17, ''), NULLIF($18, ''), NULLIF($19, ''),
			NULLIF($20, ''), NULLIF($21, ''))
		ON CONFLICT (appointment_id) DO UPDATE SET
			tutor_name = EXCLUDED.tutor_name,
			tutor_phone = EXCLUDED.tutor_phone,
			patient_name = EXCLUDED.patient_name,
			age = EXCLUDED.age,
			allergies = EXCLUDED.allergies,
			medications = EXCLUDED.medications,
			intraoral_exam = EXCLUDED.intraoral_exam,
			medical_history = EXCLUDED.medical_history,
			professional = EXCLUDED.professional,
			reason = EXCLUDED.reason,
			diagnosis = EXCLUDED.diagnosis,
			treatment = EXCLUDED.treatment,
			next_appointment = EXCLUDED.next_appointment,
			observations = EXCLUDED.observations,
			updated_by = EXCLUDED.updated_by,
			updated_at = NOW()
		RETURNING COALESCE(created_by, ''), created_at, updated_at`,
		n.AppointmentID, n.Date, n.Time, n.TutorID, n.TutorName, n.TutorPhone,
		n.PatientID, n.PatientName, n.Age, n.Allergies, n.Medications, n.IntraoralExam, n.MedicalHistory,
		n.Professional, n.Reason, n.Diagnosis, n.Treatment, n.NextAppointment, n.Observations,
		n.CreatedBy, n.UpdatedBy,
	).Scan(&n.CreatedBy, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert clinical note: %w", err)
	}
	return nil
}

func (r *noteRepoPG) GetByAppointment(ctx context.Context, appointmentID string) (*ClinicalNote, error) {
	return r.scanNote(r.conn(ctx).QueryRow(ctx,
		`SELECT `+noteCols+` FROM clinical_notes WHERE appointment_id = $1`, appointmentID))
}

func (r *noteRepoPG) list(ctx context.Context, where string, args ...interface{}) ([]*ClinicalNote, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+noteCols+` FROM clinical_notes WHERE `+where+`
		ORDER BY appt_date DESC, appt_time DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list clinical notes: %w", err)
	}
	defer rows.Close()

	var out []*ClinicalNote
	for rows.Next() {
		n, err := r.scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *noteRepoPG) ListByTutor(ctx context.Context, tutorID string) ([]*ClinicalNote, error) {
	return r.list(ctx, `tutor_id = $1`, tutorID)
}

func (r *noteRepoPG) ListByPatient(ctx context.Context, tutorID, patientID string) ([]*ClinicalNote, error) {
	return r.list(ctx, `tutor_id = $1 AND patient_id::text = $2`, tutorID, patientID)
}

// -- Prescription Repository --

type prescriptionRepoPG struct {
	pool *pgxpool.Pool
}

func NewPrescriptionRepo(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const rxCols = `id, tutor_id, child_id, child_name, COALESCE(appointment_id, ''), to_char(rx_date, 'YYYY-MM-DD'),
	doctor, COALESCE(doctor_registration, ''), diagnosis, treatment_name, medications, status,
	COALESCE(notes, ''), cost::float8, COALESCE(general_instructions, ''), patient_info,
	created_at, updated_at`

func (r *prescriptionRepoPG) scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	var meds, info []byte
	err := row.Scan(&p.ID, &p.TutorID, &p.ChildID, &p.ChildName, &p.AppointmentID, &p.Date,
		&p.Doctor, &p.DoctorRegistration, &p.Diagnosis, &p.TreatmentName, &meds, &p.Status,
		&p.Notes, &p.Cost, &p.GeneralInstructions, &info,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapPGError(err)
	}
	if err := json.Unmarshal(meds, &p.Medications); err != nil {
		return nil, fmt.Errorf("decode medications: %w", err)
	}
	if len(info) > 0 {
		p.PatientInfo = &PatientInfo{}
		if err := json.Unmarshal(info, p.PatientInfo); err != nil {
			return nil, fmt.Errorf("decode patient_info: %w", err)
		}
	}
	return &p, nil
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	meds, err := json.Marshal(p.Medications)
	if err != nil {
		return fmt.Errorf("encode medications: %w", err)
	}
	var info []byte
	if p.PatientInfo != nil {
		if info, err = json.Marshal(p.PatientInfo); err != nil {
			return fmt.Errorf("encode patient_info: %w", err)
		}
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescriptions (id, tutor_id, child_id, child_name, appointment_id, rx_date, doctor,
			doctor_registration, diagnosis, treatment_name, medications, status, notes, cost,
			general_instructions, patient_info)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6::date, $7, NULLIF($8, ''), $9, $10, $11::jsonb, $12,
			NULLIF($13, ''), $14, NULLIF($15, ''), $16::jsonb)
		RETURNING created_at, updated_at`,
		p.ID, p.TutorID, p.ChildID, p.ChildName, p.AppointmentID, p.Date, p.Doctor,
		p.DoctorRegistration, p.Diagnosis, p.TreatmentName, meds, p.Status, p.Notes, p.Cost,
		p.GeneralInstructions, info,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create prescription: %w", err)
	}
	return nil
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.scanPrescription(r.conn(ctx).QueryRow(ctx, `SELECT `+rxCols+` FROM prescriptions WHERE id = $1`, id))
}

func (r *prescriptionRepoPG) list(ctx context.Context, where string, arg interface{}) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+rxCols+` FROM prescriptions WHERE `+where+`
		ORDER BY rx_date DESC, created_at DESC`, arg)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	defer rows.Close()

	var out []*Prescription
	for rows.Next() {
		p, err := r.scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *prescriptionRepoPG) ListByTutor(ctx context.Context, tutorID string) ([]*Prescription, error) {
	return r.list(ctx, `tutor_id = $1`, tutorID)
}

func (r *prescriptionRepoPG) ListByChild(ctx context.Context, childID uuid.UUID) ([]*Prescription, error) {
	return r.list(ctx, `child_id = $1`, childID)
}

func (r *prescriptionRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status PrescriptionStatus) (*Prescription, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE prescriptions SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return nil, fmt.Errorf("update prescription status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}
