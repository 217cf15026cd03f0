package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCorral_Series_Timeutil_Buckets(t *testing.T) {
	t.Parallel()

	// 2015-02-05 12:30:30 UTC
	ts := time.Date(2015, 2, 5, 12, 30, 30, 0, time.UTC).Unix()

	t.Run("hourly bounds", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, time.Date(2015, 2, 5, 12, 0, 0, 0, time.UTC).Unix(), HourlyLeft(ts))
		require.Equal(t, time.Date(2015, 2, 5, 12, 59, 59, 0, time.UTC).Unix(), HourlyRight(ts))
	})

	t.Run("daily bounds", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, time.Date(2015, 2, 5, 0, 0, 0, 0, time.UTC).Unix(), DailyLeft(ts))
		require.Equal(t, time.Date(2015, 2, 5, 23, 59, 59, 0, time.UTC).Unix(), DailyRight(ts))
	})

	t.Run("weekly starts monday", func(t *testing.T) {
		t.Parallel()
		// 2015-02-05 is a Thursday, the week starts 2015-02-02.
		require.Equal(t, time.Date(2015, 2, 2, 0, 0, 0, 0, time.UTC).Unix(), WeeklyLeft(ts))
		require.Equal(t, time.Date(2015, 2, 8, 23, 59, 59, 0, time.UTC).Unix(), WeeklyRight(ts))
	})

	t.Run("weekly identity on monday", func(t *testing.T) {
		t.Parallel()
		monday := time.Date(2015, 2, 2, 0, 0, 0, 0, time.UTC).Unix()
		require.Equal(t, monday, WeeklyLeft(monday))
	})

	t.Run("monthly bounds", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, time.Date(2015, 2, 1, 0, 0, 0, 0, time.UTC).Unix(), MonthlyLeft(ts))
		require.Equal(t, time.Date(2015, 2, 28, 23, 59, 59, 0, time.UTC).Unix(), MonthlyRight(ts))
	})

	t.Run("monthly bounds in leap february", func(t *testing.T) {
		t.Parallel()
		leap := time.Date(2016, 2, 15, 8, 0, 0, 0, time.UTC).Unix()
		require.Equal(t, time.Date(2016, 2, 29, 23, 59, 59, 0, time.UTC).Unix(), MonthlyRight(leap))
	})
}

func TestCorral_Series_Timeutil_DailyTimestamps(t *testing.T) {
	t.Parallel()

	t.Run("covers every touched day inclusively", func(t *testing.T) {
		t.Parallel()
		from := time.Date(2015, 2, 5, 22, 0, 0, 0, time.UTC).Unix()
		to := time.Date(2015, 2, 8, 1, 0, 0, 0, time.UTC).Unix()
		days := DailyTimestamps(from, to)
		require.Len(t, days, 4)
		require.Equal(t, time.Date(2015, 2, 5, 0, 0, 0, 0, time.UTC).Unix(), days[0])
		require.Equal(t, time.Date(2015, 2, 8, 0, 0, 0, 0, time.UTC).Unix(), days[3])
	})

	t.Run("single day when range stays inside one day", func(t *testing.T) {
		t.Parallel()
		from := time.Date(2015, 2, 5, 8, 0, 0, 0, time.UTC).Unix()
		days := DailyTimestamps(from, from+3600)
		require.Len(t, days, 1)
	})

	t.Run("empty when to is before from", func(t *testing.T) {
		t.Parallel()
		require.Empty(t, DailyTimestamps(100, 99))
	})
}

func TestCorral_Series_Timeutil_ReverseDayKey(t *testing.T) {
	t.Parallel()

	t.Run("known values", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "29854845", ReverseDayKeyTime(time.Date(2015, 2, 5, 12, 0, 0, 0, time.UTC)))
		require.Equal(t, "29774435", ReverseDayKeyTime(time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)))
		require.Equal(t, "29764948", ReverseDayKeyTime(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("later days sort lexically earlier", func(t *testing.T) {
		t.Parallel()
		older := ReverseDayKeyTime(time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC))
		newer := ReverseDayKeyTime(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
		require.Greater(t, older, newer)
	})

	t.Run("adjacent days sort lexically in reverse", func(t *testing.T) {
		t.Parallel()
		day := time.Date(2015, 12, 31, 5, 0, 0, 0, time.UTC)
		next := day.AddDate(0, 0, 1)
		require.Less(t, ReverseDayKeyTime(next), ReverseDayKeyTime(day))
	})

	t.Run("timestamp and time forms agree", func(t *testing.T) {
		t.Parallel()
		at := time.Date(2020, 7, 1, 13, 37, 0, 0, time.UTC)
		require.Equal(t, ReverseDayKeyTime(at), ReverseDayKey(at.Unix()))
	})

	t.Run("parse inverts the encoding", func(t *testing.T) {
		t.Parallel()
		day, err := ParseReverseDayKey("29774435")
		require.NoError(t, err)
		require.Equal(t, "20230615", day)
	})

	t.Run("parse rejects malformed keys", func(t *testing.T) {
		t.Parallel()
		_, err := ParseReverseDayKey("297744")
		require.ErrorIs(t, err, ErrArgument)

		_, err = ParseReverseDayKey("2977xx35")
		require.ErrorIs(t, err, ErrArgument)
	})
}
