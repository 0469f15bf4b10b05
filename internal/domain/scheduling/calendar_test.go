package scheduling

import (
	"testing"
	"time"
)

func TestBuildMonth(t *testing.T) {
	cal := BuildMonth(2026, time.October, clinicNow(t), 60)

	if cal.Padding != 4 {
		t.Errorf("expected 1 Oct 2026 (Thursday) to be padded by 4, got %d", cal.Padding)
	}
	if len(cal.Days) != 31 {
		t.Fatalf("expected 31 days, got %d", len(cal.Days))
	}

	day := func(n int) CalendarDay { return cal.Days[n-1] }
	if d := day(15); !d.IsPast || d.Selectable {
		t.Errorf("15th: expected past and not selectable, got %+v", d)
	}
	if d := day(16); !d.IsToday || d.IsPast || !d.Selectable {
		t.Errorf("16th: expected selectable today, got %+v", d)
	}
	if d := day(31); d.IsPast || !d.Selectable || d.Date != "2026-10-31" {
		t.Errorf("31st: expected selectable, got %+v", d)
	}
}

func TestBuildMonth_BookingWindow(t *testing.T) {
	now := clinicNow(t)

	dec := BuildMonth(2026, time.December, now, 60)
	// 60 days after 16 Oct is 15 Dec.
	if !dec.Days[14].Selectable {
		t.Error("15 Dec should be the last selectable day")
	}
	if dec.Days[15].Selectable {
		t.Error("16 Dec is beyond the booking window")
	}

	jan := BuildMonth(2027, time.January, now, 60)
	for _, d := range jan.Days {
		if d.Selectable {
			t.Fatalf("%s should not be selectable", d.Date)
		}
	}
}

func TestBuildMonth_Normalises(t *testing.T) {
	cal := BuildMonth(2026, 13, clinicNow(t), 60)
	if cal.Year != 2027 || cal.Month != 1 {
		t.Errorf("expected month 13 to roll into 2027-01, got %d-%d", cal.Year, cal.Month)
	}
}
