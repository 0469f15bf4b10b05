package scheduling

import "time"

type CalendarDay struct {
	Date       string `json:"date"`
	Day        int    `json:"day"`
	IsToday    bool   `json:"is_today"`
	IsPast     bool   `json:"is_past"`
	Selectable bool   `json:"selectable"`
}

type CalendarMonth struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	// Padding is the number of blank cells before day 1 in a Sunday-first week.
	Padding int           `json:"padding"`
	Days    []CalendarDay `json:"days"`
}

// BuildMonth lays out a month relative to now. A day is selectable when it
// is not past and falls within maxDaysAhead of today.
func BuildMonth(year int, month time.Month, now time.Time, maxDaysAhead int) CalendarMonth {
	loc := now.Location()
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	today := now.Format(DateLayout)
	lastSelectable := time.Date(now.Year(), now.Month(), now.Day()+maxDaysAhead, 0, 0, 0, 0, loc).Format(DateLayout)

	cal := CalendarMonth{
		Year:    first.Year(),
		Month:   int(first.Month()),
		Padding: int(first.Weekday()),
	}
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		date := d.Format(DateLayout)
		day := CalendarDay{
			Date:    date,
			Day:     d.Day(),
			IsToday: date == today,
			IsPast:  date < today,
		}
		day.Selectable = !day.IsPast && date <= lastSelectable
		cal.Days = append(cal.Days, day)
	}
	return cal
}
