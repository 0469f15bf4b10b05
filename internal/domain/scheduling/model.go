package scheduling

import (
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ConsumesSlot reports whether an appointment in this status makes its
// (date, time) unavailable to others.
func (s Status) ConsumesSlot() bool {
	return s == StatusPending || s == StatusConfirmed
}

var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID         string    `json:"id"`
	TutorID    string    `json:"tutor_id"`
	TutorEmail string    `json:"tutor_email,omitempty"`
	TutorName  string    `json:"tutor_name,omitempty"`
	ChildID    string    `json:"child_id,omitempty"`
	ChildName  string    `json:"child_name,omitempty"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	Reason     string    `json:"reason"`
	Notes      string    `json:"notes,omitempty"`
	Status     Status    `json:"status"`
	UpdatedBy  string    `json:"updated_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AppointmentView is an appointment as its tutor sees it.
type AppointmentView struct {
	*Appointment
	CanCancel bool `json:"can_cancel"`
}

type TimeSlot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type DaySchedule struct {
	Date        string     `json:"date"`
	IsToday     bool       `json:"is_today"`
	IsPast      bool       `json:"is_past"`
	Slots       []TimeSlot `json:"slots"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// AvailableTimes returns the times that can still be booked, in offered order.
func (d *DaySchedule) AvailableTimes() []string {
	var out []string
	for _, s := range d.Slots {
		if s.Available {
			out = append(out, s.Time)
		}
	}
	return out
}

// BookingRequest carries everything about a booking except its slot.
type BookingRequest struct {
	TutorID    string
	TutorEmail string
	TutorName  string
	ChildID    string
	ChildName  string
	Reason     string
	Notes      string
}

// SearchFilter narrows the dentist's consultation list. Text fields match
// case-insensitively as substrings.
type SearchFilter struct {
	Date    string
	Tutor   string
	Patient string
	Reason  string
	Status  Status
}

func (f SearchFilter) Matches(a *Appointment) bool {
	if f.Date != "" && a.Date != f.Date {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Tutor != "" && !containsFold(a.TutorName+" "+a.TutorEmail, f.Tutor) {
		return false
	}
	if f.Patient != "" && !containsFold(a.ChildName, f.Patient) {
		return false
	}
	if f.Reason != "" && !containsFold(a.Reason, f.Reason) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(sub)))
}

// parseClock splits an HH:MM string.
func parseClock(s string) (hour, minute int, ok bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(s[:2])
	m, err2 := strconv.Atoi(s[3:])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// newestFirst orders appointments by date then time, most recent first.
func newestFirst(a, b *Appointment) int {
	if a.Date != b.Date {
		return strings.Compare(b.Date, a.Date)
	}
	return strings.Compare(b.Time, a.Time)
}
