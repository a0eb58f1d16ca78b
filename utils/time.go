// Package utils provides utility functions for the application.
package utils

import (
	"time"
)

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// UTCNowPtr returns a pointer to the current time in UTC
func UTCNowPtr() *time.Time {
	now := UTCNow()
	return &now
}

// UTCNowAdd returns the current UTC time plus the given duration
func UTCNowAdd(d time.Duration) time.Time {
	return UTCNow().Add(d)
}

// StartOfDay truncates the given time to midnight UTC
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfMonth truncates the given time to the first of the month, UTC
func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// StartOfWeek truncates the given time to the most recent occurrence of the
// given weekday at midnight UTC
func StartOfWeek(t time.Time, anchor time.Weekday) time.Time {
	day := StartOfDay(t)
	diff := int(day.Weekday()) - int(anchor)
	if diff < 0 {
		diff += 7
	}
	return day.AddDate(0, 0, -diff)
}

// AnchoredDayOfMonth returns the most recent occurrence of the given
// day-of-month at midnight UTC, clamping days past the month's end.
func AnchoredDayOfMonth(t time.Time, day int) time.Time {
	if day < 1 {
		day = 1
	}
	if day > 28 {
		day = 28
	}
	t = t.UTC()
	anchor := time.Date(t.Year(), t.Month(), day, 0, 0, 0, 0, time.UTC)
	if anchor.After(t) {
		anchor = anchor.AddDate(0, -1, 0)
	}
	return anchor
}

// IsExpired checks if the given time is in the past
func IsExpired(t time.Time) bool {
	return UTCNow().After(t)
}

// TimeToUTC converts a time to UTC if it's not already
func TimeToUTC(t time.Time) time.Time {
	return t.UTC()
}

// TimeToUTCPtr converts a time pointer to UTC if it's not already
func TimeToUTCPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
