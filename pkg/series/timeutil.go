package series

import (
	"fmt"
	"strconv"
	"time"
)

// Bucket boundary helpers. All bucketing is done in UTC and the right edge
// of a bucket is the last second inside it, so [left, right] covers the
// bucket without overlapping its neighbors.

// HourlyLeft returns the first second of the UTC hour containing ts.
func HourlyLeft(ts int64) int64 {
	t := time.Unix(ts, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC).Unix()
}

// HourlyRight returns the last second of the UTC hour containing ts.
func HourlyRight(ts int64) int64 {
	return HourlyLeft(ts) + 3600 - 1
}

// DailyLeft returns the first second of the UTC day containing ts.
func DailyLeft(ts int64) int64 {
	t := time.Unix(ts, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

// DailyRight returns the last second of the UTC day containing ts.
func DailyRight(ts int64) int64 {
	return DailyLeft(ts) + 24*3600 - 1
}

// WeeklyLeft returns the first second of the ISO week (Monday start)
// containing ts.
func WeeklyLeft(ts int64) int64 {
	t := time.Unix(ts, 0).UTC()
	back := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -back).Unix()
}

// WeeklyRight returns the last second of the ISO week containing ts.
func WeeklyRight(ts int64) int64 {
	return WeeklyLeft(ts) + 7*24*3600 - 1
}

// MonthlyLeft returns the first second of the UTC month containing ts.
func MonthlyLeft(ts int64) int64 {
	t := time.Unix(ts, 0).UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).Unix()
}

// MonthlyRight returns the last second of the UTC month containing ts.
func MonthlyRight(ts int64) int64 {
	t := time.Unix(ts, 0).UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0).Unix() - 1
}

// DailyTimestamps returns the UTC day boundary of every day touched by the
// inclusive range [from, to], in ascending order.
func DailyTimestamps(from, to int64) []int64 {
	if to < from {
		return nil
	}
	out := make([]int64, 0, (to-from)/86400+1)
	for ts := DailyLeft(from); ts <= to; ts += 24 * 3600 {
		out = append(out, ts)
	}
	return out
}

// ReverseDayKey formats the UTC day of ts as an 8-digit key whose ascending
// lexical order is descending chronological order: the year is subtracted
// from 5000, the month from 50 and the day from 50. Only defined for years
// up to 4999.
func ReverseDayKey(ts int64) string {
	return ReverseDayKeyTime(time.Unix(ts, 0).UTC())
}

// ReverseDayKeyTime is ReverseDayKey for a time.Time, evaluated in UTC.
func ReverseDayKeyTime(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%04d%02d%02d", 5000-t.Year(), 50-int(t.Month()), 50-t.Day())
}

// ParseReverseDayKey inverts ReverseDayKey, returning the day as "YYYYMMDD".
func ParseReverseDayKey(key string) (string, error) {
	if len(key) != 8 {
		return "", fmt.Errorf("reverse day key %q must be 8 digits: %w", key, ErrArgument)
	}
	year, err := strconv.Atoi(key[0:4])
	if err != nil {
		return "", fmt.Errorf("reverse day key %q: %w", key, ErrArgument)
	}
	month, err := strconv.Atoi(key[4:6])
	if err != nil {
		return "", fmt.Errorf("reverse day key %q: %w", key, ErrArgument)
	}
	day, err := strconv.Atoi(key[6:8])
	if err != nil {
		return "", fmt.Errorf("reverse day key %q: %w", key, ErrArgument)
	}
	return fmt.Sprintf("%04d%02d%02d", 5000-year, 50-month, 50-day), nil
}
