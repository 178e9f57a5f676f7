package utils

import (
	"errors"
	"strings"
	"time"
)

var errInvalidDate = errors.New("invalid date")

// ParseDate accepts YYYY-MM-DD or RFC3339 and returns midnight UTC of that day.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errInvalidDate
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errInvalidDate
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
