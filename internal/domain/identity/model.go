package identity

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const DateLayout = "2006-01-02"

// Tutor is the parent or guardian account. ID is the auth subject.
type Tutor struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	FirstName       string    `json:"first_name"`
	PaternalSurname string    `json:"paternal_surname"`
	MaternalSurname string    `json:"maternal_surname"`
	Phone           string    `json:"phone"`
	Role            string    `json:"role"`
	ProfileComplete bool      `json:"profile_complete"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (t *Tutor) FullName() string {
	return joinName(t.FirstName, t.PaternalSurname, t.MaternalSurname)
}

// Child is a patient registered under a tutor.
type Child struct {
	ID                 uuid.UUID `json:"id"`
	TutorID            string    `json:"tutor_id"`
	FirstName          string    `json:"first_name"`
	PaternalSurname    string    `json:"paternal_surname"`
	MaternalSurname    string    `json:"maternal_surname"`
	BirthDate          string    `json:"birth_date"`
	Sex                string    `json:"sex"`
	Allergies          string    `json:"allergies,omitempty"`
	MedicalHistory     string    `json:"medical_history,omitempty"`
	CurrentMedications string    `json:"current_medications,omitempty"`
	IntraoralExam      string    `json:"intraoral_exam,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (c *Child) FullName() string {
	return joinName(c.FirstName, c.PaternalSurname, c.MaternalSurname)
}

// AgeOn returns the age in whole years on the given day, or -1 when the
// birth date cannot be parsed.
func (c *Child) AgeOn(now time.Time) int {
	born, err := time.ParseInLocation(DateLayout, c.BirthDate, now.Location())
	if err != nil {
		return -1
	}
	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// Profile is what GET /me returns.
type Profile struct {
	Tutor    *Tutor   `json:"tutor"`
	Children []*Child `json:"children"`
}

// TutorInput carries the editable tutor fields.
type TutorInput struct {
	FirstName       string `json:"first_name"`
	PaternalSurname string `json:"paternal_surname"`
	MaternalSurname string `json:"maternal_surname"`
	Phone           string `json:"phone"`
}

func (in *TutorInput) normalize() {
	in.FirstName = collapseSpaces(in.FirstName)
	in.PaternalSurname = collapseSpaces(in.PaternalSurname)
	in.MaternalSurname = collapseSpaces(in.MaternalSurname)
	in.Phone = strings.TrimSpace(in.Phone)
}

func (in TutorInput) validate() error {
	for _, f := range []struct{ field, value string }{
		{"first_name", in.FirstName},
		{"paternal_surname", in.PaternalSurname},
		{"maternal_surname", in.MaternalSurname},
	} {
		if f.value == "" {
			return &ValidationError{Field: f.field, Message: "is required"}
		}
		if !lettersOnly(f.value) {
			return &ValidationError{Field: f.field, Message: "may contain only letters and spaces"}
		}
	}
	if !tenDigits(in.Phone) {
		return &ValidationError{Field: "phone", Message: "must be exactly 10 digits"}
	}
	return nil
}

// ChildInput carries the editable child fields.
type ChildInput struct {
	FirstName          string `json:"first_name"`
	PaternalSurname    string `json:"paternal_surname"`
	MaternalSurname    string `json:"maternal_surname"`
	BirthDate          string `json:"birth_date"`
	Sex                string `json:"sex"`
	Allergies          string `json:"allergies"`
	MedicalHistory     string `json:"medical_history"`
	CurrentMedications string `json:"current_medications"`
	IntraoralExam      string `json:"intraoral_exam"`
}

func (in *ChildInput) normalize() {
	in.FirstName = collapseSpaces(in.FirstName)
	in.PaternalSurname = collapseSpaces(in.PaternalSurname)
	in.MaternalSurname = collapseSpaces(in.MaternalSurname)
	in.BirthDate = strings.TrimSpace(in.BirthDate)
	in.Sex = strings.ToUpper(strings.TrimSpace(in.Sex))
	in.Allergies = strings.TrimSpace(in.Allergies)
	in.MedicalHistory = strings.TrimSpace(in.MedicalHistory)
	in.CurrentMedications = strings.TrimSpace(in.CurrentMedications)
	in.IntraoralExam = strings.TrimSpace(in.IntraoralExam)
}

// validate checks the input against today's date in the clinic zone.
func (in ChildInput) validate(today time.Time) error {
	for _, f := range []struct {
		field, value string
		required     bool
	}{
		{"first_name", in.FirstName, true},
		{"paternal_surname", in.PaternalSurname, true},
		{"maternal_surname", in.MaternalSurname, false},
	} {
		if f.value == "" {
			if f.required {
				return &ValidationError{Field: f.field, Message: "is required"}
			}
			continue
		}
		if !lettersOnly(f.value) {
			return &ValidationError{Field: f.field, Message: "may contain only letters and spaces"}
		}
	}
	born, err := time.ParseInLocation(DateLayout, in.BirthDate, today.Location())
	if err != nil {
		return &ValidationError{Field: "birth_date", Message: "must be YYYY-MM-DD"}
	}
	y, m, d := today.Date()
	if born.After(time.Date(y, m, d, 0, 0, 0, 0, today.Location())) {
		return &ValidationError{Field: "birth_date", Message: "cannot be in the future"}
	}
	if in.Sex != "M" && in.Sex != "F" {
		return &ValidationError{Field: "sex", Message: "must be M or F"}
	}
	return nil
}

func (in ChildInput) apply(c *Child) {
	c.FirstName = in.FirstName
	c.PaternalSurname = in.PaternalSurname
	c.MaternalSurname = in.MaternalSurname
	c.BirthDate = in.BirthDate
	c.Sex = in.Sex
	c.Allergies = in.Allergies
	c.MedicalHistory = in.MedicalHistory
	c.CurrentMedications = in.CurrentMedications
	c.IntraoralExam = in.IntraoralExam
}

func lettersOnly(s string) bool {
	for _, r := range s {
		if r != ' ' && !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func tenDigits(s string) bool {
	if len(s) != 10 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func joinName(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
