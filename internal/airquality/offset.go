package airquality

import (
	"fmt"
	"strings"
	"time"
)

const fileDateLayout = "20060102"

// HoursPerDay is the number of hourly readings each station publishes per day.
const HoursPerDay = 24

// ParseCreationDate parses a datacreationdate value such as "2025-04-01 05:30".
func ParseCreationDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty %s", ErrTimestampUnparsable, CreationDateField)
	}
	t, err := time.Parse(CreationDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrTimestampUnparsable, s, err)
	}
	return t, nil
}

// StartOffset returns the number of rows published on latest's day, up to and
// including latest's hour. Skipping them lands on 23:00 of the previous day.
// The minute is irrelevant.
func StartOffset(latest time.Time, stationsPerDay int) int {
	return (latest.Hour() + 1) * stationsPerDay
}

// TargetRecords is the number of rows covering days full days.
func TargetRecords(days, stationsPerDay int) int {
	return days * stationsPerDay * HoursPerDay
}

// DateRange returns the inclusive day range [latest day - days, latest day - 1].
func DateRange(latest time.Time, days int) (start, end time.Time) {
	day := time.Date(latest.Year(), latest.Month(), latest.Day(), 0, 0, 0, 0, latest.Location())
	end = day.AddDate(0, 0, -1)
	start = end.AddDate(0, 0, -(days - 1))
	return start, end
}

// OutputName encodes the date range as YYYYMMDD_YYYYMMDD.csv.
func OutputName(start, end time.Time) string {
	return start.Format(fileDateLayout) + "_" + end.Format(fileDateLayout) + ".csv"
}
