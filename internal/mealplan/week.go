package mealplan

import (
	"errors"
	"fmt"
	"time"

	"mealweek/internal/recipe"
)

// DateKeyLayout is the layout of plan keys.
const DateKeyLayout = "2006-01-02"

// ErrInvalidDate is returned for strings that are not YYYY-MM-DD dates.
var ErrInvalidDate = errors.New("invalid date")

// DateKey formats t's calendar date in its own location.
func DateKey(t time.Time) string {
	return t.Format(DateKeyLayout)
}

// ParseDateKey parses a YYYY-MM-DD key as midnight local time.
func ParseDateKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(DateKeyLayout, key, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: expected YYYY-MM-DD", ErrInvalidDate, key)
	}
	return t, nil
}

// WeekDates returns the seven days of t's week, Monday first.
// Sunday belongs to the week that started on the previous Monday.
func WeekDates(t time.Time) []time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // days since Monday
	monday := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, t.Location())

	dates := make([]time.Time, 7)
	for i := range dates {
		dates[i] = monday.AddDate(0, 0, i)
	}
	return dates
}

// DayName returns the short weekday name, e.g. "Mon".
func DayName(t time.Time) string {
	return t.Format("Mon")
}

// DisplayDate formats t for display, e.g. "Mon, Jan 20".
func DisplayDate(t time.Time) string {
	return t.Format("Mon, Jan 2")
}

// Day is one row of the weekly grid.
type Day struct {
	Key     string         `json:"date"`
	Name    string         `json:"day"`
	Display string         `json:"display"`
	Recipe  *recipe.Recipe `json:"recipe"`
}

// Week lays plan out over the week containing t.
func Week(plan Plan, t time.Time) []Day {
	dates := WeekDates(t)
	days := make([]Day, len(dates))
	for i, d := range dates {
		key := DateKey(d)
		days[i] = Day{
			Key:     key,
			Name:    DayName(d),
			Display: DisplayDate(d),
			Recipe:  plan[key],
		}
	}
	return days
}
