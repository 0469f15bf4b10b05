package clinical

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ClinicalNote is the dentist's record of one visit, keyed by appointment.
type ClinicalNote struct {
	AppointmentID   string    `json:"appointment_id"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	TutorID         string    `json:"tutor_id"`
	TutorName       string    `json:"tutor_name"`
	TutorPhone      string    `json:"tutor_phone,omitempty"`
	PatientID       string    `json:"patient_id,omitempty"`
	PatientName     string    `json:"patient_name"`
	Age             string    `json:"age,omitempty"`
	Allergies       string    `json:"allergies,omitempty"`
	Medications     string    `json:"medications,omitempty"`
	IntraoralExam   string    `json:"intraoral_exam,omitempty"`
	MedicalHistory  string    `json:"medical_history,omitempty"`
	Professional    string    `json:"professional,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Diagnosis       string    `json:"diagnosis,omitempty"`
	Treatment       string    `json:"treatment,omitempty"`
	NextAppointment string    `json:"next_appointment,omitempty"`
	Observations    string    `json:"observations,omitempty"`
	CreatedBy       string    `json:"created_by,omitempty"`
	UpdatedBy       string    `json:"updated_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NoteInput is the dentist-editable part of a note. Empty patient fields
// keep the values prefilled from the child's profile.
type NoteInput struct {
	Age             string `json:"age"`
	Allergies       string `json:"allergies"`
	Medications     string `json:"medications"`
	IntraoralExam   string `json:"intraoral_exam"`
	MedicalHistory  string `json:"medical_history"`
	Professional    string `json:"professional"`
	Reason          string `json:"reason"`
	Diagnosis       string `json:"diagnosis"`
	Treatment       string `json:"treatment"`
	NextAppointment string `json:"next_appointment"`
	Observations    string `json:"observations"`
}

func (in NoteInput) apply(n *ClinicalNote) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&n.Age, in.Age)
	set(&n.Allergies, in.Allergies)
	set(&n.Medications, in.Medications)
	set(&n.IntraoralExam, in.IntraoralExam)
	set(&n.MedicalHistory, in.MedicalHistory)
	set(&n.Reason, in.Reason)
	n.Professional = strings.TrimSpace(in.Professional)
	n.Diagnosis = strings.TrimSpace(in.Diagnosis)
	n.Treatment = strings.TrimSpace(in.Treatment)
	n.NextAppointment = strings.TrimSpace(in.NextAppointment)
	n.Observations = strings.TrimSpace(in.Observations)
}

type PrescriptionStatus string

const (
	PrescriptionActive    PrescriptionStatus = "active"
	PrescriptionCompleted PrescriptionStatus = "completed"
	PrescriptionCancelled PrescriptionStatus = "cancelled"
)

func (s PrescriptionStatus) Valid() bool {
	switch s {
	case PrescriptionActive, PrescriptionCompleted, PrescriptionCancelled:
		return true
	}
	return false
}

type Medication struct {
	Name             string `json:"name"`
	Dosage           string `json:"dosage"`
	Frequency        string `json:"frequency"`
	Duration         string `json:"duration,omitempty"`
	Instructions     string `json:"instructions,omitempty"`
	ActiveIngredient string `json:"active_ingredient,omitempty"`
}

// PatientInfo is a snapshot of the patient's data at prescription time.
type PatientInfo struct {
	Name               string `json:"name,omitempty"`
	BirthDate          string `json:"birth_date,omitempty"`
	Age                int    `json:"age,omitempty"`
	Weight             string `json:"weight,omitempty"`
	Allergies          string `json:"allergies,omitempty"`
	CurrentMedications string `json:"current_medications,omitempty"`
	MedicalHistory     string `json:"medical_history,omitempty"`
	TutorName          string `json:"tutor_name,omitempty"`
	TutorPhone         string `json:"tutor_phone,omitempty"`
}

type Prescription struct {
	ID                  uuid.UUID          `json:"id"`
	TutorID             string             `json:"tutor_id"`
	ChildID             uuid.UUID          `json:"child_id"`
	ChildName           string             `json:"child_name"`
	AppointmentID       string             `json:"appointment_id,omitempty"`
	Date                string             `json:"date"`
	Doctor              string             `json:"doctor"`
	DoctorRegistration  string             `json:"doctor_registration,omitempty"`
	Diagnosis           string             `json:"diagnosis"`
	TreatmentName       string             `json:"treatment_name"`
	Medications         []Medication       `json:"medications"`
	Status              PrescriptionStatus `json:"status"`
	Notes               string             `json:"notes,omitempty"`
	Cost                *float64           `json:"cost,omitempty"`
	GeneralInstructions string             `json:"general_instructions,omitempty"`
	PatientInfo         *PatientInfo       `json:"patient_info,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// PrescriptionInput is the body of POST /prescriptions.
type PrescriptionInput struct {
	TutorID             string       `json:"tutor_id"`
	ChildID             string       `json:"child_id"`
	AppointmentID       string       `json:"appointment_id"`
	Date                string       `json:"date"`
	Doctor              string       `json:"doctor"`
	DoctorRegistration  string       `json:"doctor_registration"`
	Diagnosis           string       `json:"diagnosis"`
	TreatmentName       string       `json:"treatment_name"`
	Medications         []Medication `json:"medications"`
	Notes               string       `json:"notes"`
	Cost                *float64     `json:"cost"`
	GeneralInstructions string       `json:"general_instructions"`
	PatientInfo         *PatientInfo `json:"patient_info"`
}

func (in *PrescriptionInput) normalize() {
	in.TutorID = strings.TrimSpace(in.TutorID)
	in.ChildID = strings.TrimSpace(in.ChildID)
	in.AppointmentID = strings.TrimSpace(in.AppointmentID)
	in.Date = strings.TrimSpace(in.Date)
	in.Doctor = strings.TrimSpace(in.Doctor)
	in.DoctorRegistration = strings.TrimSpace(in.DoctorRegistration)
	in.Diagnosis = strings.TrimSpace(in.Diagnosis)
	in.TreatmentName = strings.TrimSpace(in.TreatmentName)
	in.Notes = strings.TrimSpace(in.Notes)
	in.GeneralInstructions = strings.TrimSpace(in.GeneralInstructions)
	for i := range in.Medications {
		m := &in.Medications[i]
		m.Name = strings.TrimSpace(m.Name)
		m.Dosage = strings.TrimSpace(m.Dosage)
		m.Frequency = strings.TrimSpace(m.Frequency)
		m.Duration = strings.TrimSpace(m.Duration)
		m.Instructions = strings.TrimSpace(m.Instructions)
		m.ActiveIngredient = strings.TrimSpace(m.ActiveIngredient)
	}
}

func (in PrescriptionInput) validate() error {
	switch {
	case in.ChildID == "":
		return &ValidationError{Field: "child_id", Message: "is required"}
	case in.Doctor == "":
		return &ValidationError{Field: "doctor", Message: "is required"}
	case in.Diagnosis == "":
		return &ValidationError{Field: "diagnosis", Message: "is required"}
	case in.TreatmentName == "":
		return &ValidationError{Field: "treatment_name", Message: "is required"}
	case len(in.Medications) == 0:
		return &ValidationError{Field: "medications", Message: "at least one medication is required"}
	}
	for i, m := range in.Medications {
		if m.Name == "" || m.Dosage == "" || m.Frequency == "" {
			return &ValidationError{
				Field:   "medications[" + strconv.Itoa(i) + "]",
				Message: "name, dosage and frequency are required",
			}
		}
	}
	if in.Cost != nil && *in.Cost < 0 {
		return &ValidationError{Field: "cost", Message: "cannot be negative"}
	}
	return nil
}
