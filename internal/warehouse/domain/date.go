package domain

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// DateKeyFromTime returns the YYYYMMDD integer key for a calendar date.
func DateKeyFromTime(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// NewDateDimension derives the calendar attributes for one date row.
// Day-of-week counts Monday as 0, the week number follows ISO 8601.
func NewDateDimension(t time.Time) DateDimension {
	_, isoWeek := t.ISOWeek()
	month := int(t.Month())
	dayOfWeek := (int(t.Weekday()) + 6) % 7

	return DateDimension{
		DateKey:   DateKeyFromTime(t),
		FullDate:  time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
		Year:      t.Year(),
		Quarter:   (month + 2) / 3,
		Month:     month,
		Day:       t.Day(),
		DayOfWeek: dayOfWeek,
		ISOWeek:   isoWeek,
		IsWeekend: dayOfWeek >= 5,
	}
}

// DateDimensionFromString parses a creation date and derives its row.
// Accepts calendar dates and RFC 3339 timestamps, which are truncated to the
// day.
func DateDimensionFromString(value string) (DateDimension, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return DateDimension{}, fmt.Errorf("%w: empty creation date", ErrInvalidDate)
	}

	t, err := time.Parse(dateLayout, trimmed)
	if err != nil {
		t, err = time.Parse(time.RFC3339, trimmed)
		if err != nil {
			return DateDimension{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
		}
	}
	return NewDateDimension(t.UTC()), nil
}
