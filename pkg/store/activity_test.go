package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grazelabs/corral/pkg/store"
)

func TestCorral_Store_Activity_IncrementAndReadBack(t *testing.T) {
	conn := newConnection(t)
	ctx := t.Context()
	day := int64(1640995200) // 2022-01-01 00:00 UTC
	ts := day + 10*3600

	for i := int64(1); i <= 3; i++ {
		res, err := conn.Activity.Increment(ctx, "readerA", "devX", ts, []string{"orgA"}, 1)
		require.NoError(t, err)
		require.Equal(t, []int64{i, i}, res)
	}

	t.Run("reader view counts per device", func(t *testing.T) {
		acts, err := conn.Activity.GetForReader(ctx, "readerA", ts, ts)
		require.NoError(t, err)
		require.Len(t, acts, 1)
		require.Equal(t, "2022010110", acts[0].DayHour)
		require.Equal(t, map[string][]int64{"devX": {3}}, acts[0].Devices)
	})

	t.Run("parent day view lists devices per reader", func(t *testing.T) {
		acts, err := conn.Activity.GetForDay(ctx, "orgA", day)
		require.NoError(t, err)
		require.Len(t, acts, 1)
		require.Equal(t, "2022010110", acts[0].DayHour)
		require.Equal(t, map[string][]string{"readerA": {"devX"}}, acts[0].Readers)
	})

	t.Run("total day view covers every parent", func(t *testing.T) {
		acts, err := conn.Activity.GetTotalForDay(ctx, day)
		require.NoError(t, err)
		require.Len(t, acts, 1)
		require.Equal(t, map[string][]string{"readerA": {"devX"}}, acts[0].Readers)
	})
}

func TestCorral_Store_Activity_MultipleHoursAndReaders(t *testing.T) {
	conn := newConnection(t)
	ctx := t.Context()
	day := int64(1640995200)

	_, err := conn.Activity.Increment(ctx, "readerA", "devX", day+8*3600, []string{"orgA"}, 1)
	require.NoError(t, err)
	_, err = conn.Activity.Increment(ctx, "readerB", "devY", day+9*3600, []string{"orgA"}, 1)
	require.NoError(t, err)
	_, err = conn.Activity.Increment(ctx, "readerB", "devZ", day+9*3600, []string{"orgA"}, 1)
	require.NoError(t, err)

	acts, err := conn.Activity.GetForDay(ctx, "orgA", day)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	require.Equal(t, "2022010108", acts[0].DayHour)
	require.Equal(t, map[string][]string{"readerA": {"devX"}}, acts[0].Readers)
	require.Equal(t, "2022010109", acts[1].DayHour)
	require.ElementsMatch(t, []string{"devY", "devZ"}, acts[1].Readers["readerB"])

	t.Run("reader view spans multiple days", func(t *testing.T) {
		_, err := conn.Activity.Increment(ctx, "readerA", "devX", day+86400, nil, 1)
		require.NoError(t, err)

		acts, err := conn.Activity.GetForReader(ctx, "readerA", day, day+86400)
		require.NoError(t, err)
		require.Len(t, acts, 2)
		require.Equal(t, "2022010108", acts[0].DayHour)
		require.Equal(t, "2022010200", acts[1].DayHour)
	})
}

func TestCorral_Store_Activity_Guards(t *testing.T) {
	conn := connect(t, testConfig())
	ctx := t.Context()

	t.Run("reader id too short", func(t *testing.T) {
		_, err := conn.Activity.Increment(ctx, "ab", "devX", 0, nil, 1)
		require.ErrorIs(t, err, store.ErrArgument)
	})

	t.Run("too many parents", func(t *testing.T) {
		parents := []string{"org1", "org2", "org3", "org4"}
		_, err := conn.Activity.Increment(ctx, "readerA", "devX", 0, parents, 1)
		require.ErrorIs(t, err, store.ErrArgument)
	})

	t.Run("parent id too long", func(t *testing.T) {
		parent := "p012345678901234567890123456789012"
		_, err := conn.Activity.Increment(ctx, "readerA", "devX", 0, []string{parent}, 1)
		require.ErrorIs(t, err, store.ErrArgument)
	})

	t.Run("inverted reader range", func(t *testing.T) {
		_, err := conn.Activity.GetForReader(ctx, "readerA", 100, 0)
		require.ErrorIs(t, err, store.ErrArgument)
	})

	t.Run("reader range at the 90 day cap", func(t *testing.T) {
		_, err := conn.Activity.GetForReader(ctx, "readerA", 0, 90*24*3600)
		require.ErrorIs(t, err, store.ErrArgument)
	})
}
