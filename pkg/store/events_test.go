package store_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grazelabs/corral/pkg/series"
	"github.com/grazelabs/corral/pkg/store"
)

func TestCorral_Store_Events_InsertAndGet(t *testing.T) {
	conn := newConnection(t)
	ctx := t.Context()
	base := int64(1640995200)

	el, err := series.NewEventList("device1", "ph_alert",
		series.Event{TS: base + 600, Data: series.Dict{"ph": 4.5, "note": "acid"}},
		series.Event{TS: base + 86400 + 600, Data: series.Dict{"ph": 9.5, "note": "alkaline"}},
	)
	require.NoError(t, err)

	written, err := conn.Events.Insert(ctx, el)
	require.NoError(t, err)
	require.Equal(t, 2, written)

	got, err := conn.Events.Get(ctx, "device1", "ph_alert", base, base+2*86400)
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())

	events := got.Events()
	require.Equal(t, base+600, events[0].TS)
	require.Equal(t, 4.5, events[0].Data["ph"])
	require.Equal(t, "acid", events[0].Data["note"])
	require.Equal(t, "alkaline", events[1].Data["note"])

	t.Run("range filter excludes the earlier day", func(t *testing.T) {
		got, err := conn.Events.Get(ctx, "device1", "ph_alert", base+86400, base+2*86400)
		require.NoError(t, err)
		require.Equal(t, 1, got.Len())
		require.Equal(t, base+86400+600, got.TSMin())
	})
}

func TestCorral_Store_Events_GetLast(t *testing.T) {
	conn := newConnection(t)
	ctx := t.Context()
	base := int64(1640995200)

	for day := 0; day < 3; day++ {
		_, err := conn.Events.InsertOne(ctx, "device2", "ph_alert", base+int64(day)*86400, series.Dict{"day": float64(day)})
		require.NoError(t, err)
	}

	t.Run("defaults to the newest event", func(t *testing.T) {
		got, err := conn.Events.GetLast(ctx, "device2", "ph_alert", 0, 0, 0)
		require.NoError(t, err)
		require.Equal(t, 1, got.Len())
		require.Equal(t, base+2*86400, got.TSMax())
	})

	t.Run("count spans day rows", func(t *testing.T) {
		got, err := conn.Events.GetLast(ctx, "device2", "ph_alert", 2, 0, 0)
		require.NoError(t, err)
		require.Equal(t, 2, got.Len())
		require.Equal(t, base+86400, got.TSMin())
	})

	t.Run("max days bounds the scan", func(t *testing.T) {
		got, err := conn.Events.GetLast(ctx, "device2", "ph_alert", 10, 2, 0)
		require.NoError(t, err)
		require.Equal(t, 2, got.Len())
		require.Equal(t, base+86400, got.TSMin())
	})
}

func TestCorral_Store_Events_DeleteDays(t *testing.T) {
	conn := newConnection(t)
	ctx := t.Context()
	base := int64(1640995200)

	for day := 0; day < 2; day++ {
		_, err := conn.Events.InsertOne(ctx, "device3", "ph_alert", base+int64(day)*86400+60, series.Dict{"day": float64(day)})
		require.NoError(t, err)
	}

	deleted, err := conn.Events.DeleteDays(ctx, "device3", "ph_alert", base, base)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	got, err := conn.Events.Get(ctx, "device3", "ph_alert", base, base+2*86400-1)
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	require.Equal(t, base+86400+60, got.TSMin())
}

func TestCorral_Store_Events_Guards(t *testing.T) {
	conn := newConnection(t)
	ctx := t.Context()

	t.Run("batch of one hundred is refused", func(t *testing.T) {
		evs := make([]series.Event, 0, 100)
		for i := 0; i < 100; i++ {
			evs = append(evs, series.Event{TS: int64(i * 60), Data: series.Dict{"seq": fmt.Sprint(i)}})
		}
		el, err := series.NewEventList("device4", "overflow", evs...)
		require.NoError(t, err)

		_, err = conn.Events.Insert(ctx, el)
		require.ErrorIs(t, err, store.ErrArgument)
	})

	t.Run("empty batch is refused", func(t *testing.T) {
		el, err := series.NewEventList("device4", "overflow")
		require.NoError(t, err)

		_, err = conn.Events.Insert(ctx, el)
		require.ErrorIs(t, err, store.ErrArgument)
	})

	t.Run("range at the 45 day cap", func(t *testing.T) {
		_, err := conn.Events.Get(ctx, "device4", "ph_alert", 0, 45*24*3600)
		require.ErrorIs(t, err, store.ErrArgument)
	})

	t.Run("inverted delete range", func(t *testing.T) {
		_, err := conn.Events.DeleteDays(ctx, "device4", "ph_alert", 100, 0)
		require.ErrorIs(t, err, store.ErrArgument)
	})
}
