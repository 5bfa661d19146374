package shared

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod indicates a malformed period key.
var ErrInvalidPeriod = errors.New("period must be formatted YYYY-MM")

// ParsePeriod validates a YYYY-MM period key and returns its first day.
func ParsePeriod(period string) (time.Time, error) {
	t, err := time.Parse("2006-01", period)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	return t, nil
}

// PeriodOf formats the period key containing the given date.
func PeriodOf(date time.Time) string {
	return date.Format("2006-01")
}

// PeriodEnd returns the last day of the period.
func PeriodEnd(period string) (time.Time, error) {
	start, err := ParsePeriod(period)
	if err != nil {
		return time.Time{}, err
	}
	return start.AddDate(0, 1, -1), nil
}
