package client_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grazelabs/corral/pkg/client"
	"github.com/grazelabs/corral/pkg/series"
	"github.com/grazelabs/corral/pkg/store"
)

func TestCorral_Client_TimeSeries(t *testing.T) {
	c := newClient(t)
	ctx := t.Context()
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	written, err := c.PutTimeseries(ctx, "sensor1", "temp", floatPoints(base.Unix(), 3, 600, 21.5))
	require.NoError(t, err)
	require.Equal(t, 3, written)

	t.Run("windowed get returns the inserted points", func(t *testing.T) {
		out, err := c.GetTimeseries(ctx, "sensor1", []string{"temp"}, base, base.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, out, 1)
		require.Equal(t, 3, out[0].Len())
		require.Equal(t, base.Unix(), out[0].TSMin())
		require.Equal(t, base.Unix()+1200, out[0].TSMax())
		require.Equal(t, series.Float(21.5), out[0].At(0).Value)
	})

	t.Run("last values returns the newest point per metric", func(t *testing.T) {
		out, err := c.GetLastValues(ctx, "sensor1", []string{"temp", "ph"})
		require.NoError(t, err)
		require.Len(t, out, 2)
		require.Equal(t, 1, out[0].Len())
		require.Equal(t, base.Unix()+1200, out[0].TSMax())
		require.Equal(t, 0, out[1].Len())
	})

	t.Run("delete removes the whole day", func(t *testing.T) {
		n, err := c.DeleteTimeseries(ctx, "sensor1", []string{"temp"}, base, base)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		out, err := c.GetTimeseries(ctx, "sensor1", []string{"temp"}, base, base.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, out, 1)
		require.Equal(t, 0, out[0].Len())
	})
}

func TestCorral_Client_MultiUpload(t *testing.T) {
	c := newClient(t)
	ctx := t.Context()
	base := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)

	uploads := []client.TimeSeriesUpload{
		{Key: "sensor1", Metric: "temp", Points: floatPoints(base.Unix(), 4, 600, 20)},
		{Key: "sensor1", Metric: "ph", Points: floatPoints(base.Unix(), 2, 600, 7)},
		{Key: "sensor2", Metric: "temp", Points: floatPoints(base.Unix(), 3, 600, 19.5)},
	}
	counts, err := c.PutTimeseriesMulti(ctx, uploads)
	require.NoError(t, err)
	require.Equal(t, []int{4, 2, 3}, counts)

	out, err := c.GetTimeseries(ctx, "sensor2", []string{"temp"}, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 3, out[0].Len())

	t.Run("unknown metric fails the batch", func(t *testing.T) {
		_, err := c.PutTimeseriesMulti(ctx, []client.TimeSeriesUpload{
			{Key: "sensor1", Metric: "nope", Points: floatPoints(base.Unix(), 1, 600, 1)},
		})
		require.ErrorIs(t, err, store.ErrUnknownMetric)
	})
}

func TestCorral_Client_Events(t *testing.T) {
	c := newClient(t)
	ctx := t.Context()
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	written, err := c.PutEvents(ctx, "sensor1", "ph_alert", []series.Event{
		{TS: base.Unix() + 60, Data: series.Dict{"ph": 5.5, "unit": "ph"}},
		{TS: base.Unix() + 120, Data: series.Dict{"ph": 5.1, "unit": "ph"}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, written)

	t.Run("windowed get decodes the payloads", func(t *testing.T) {
		out, err := c.GetEvents(ctx, "sensor1", "ph_alert", base, base.Add(time.Hour))
		require.NoError(t, err)
		require.Equal(t, 2, out.Len())
		first := out.Events()[0]
		require.Equal(t, base.Unix()+60, first.TS)
		require.Equal(t, 5.5, first.Data["ph"])
		require.Equal(t, "ph", first.Data["unit"])
	})

	t.Run("last events returns the newest entry", func(t *testing.T) {
		out, err := c.GetLastEvents(ctx, "sensor1", "ph_alert")
		require.NoError(t, err)
		require.Equal(t, 1, out.Len())
		require.Equal(t, base.Unix()+120, out.Events()[0].TS)
	})

	t.Run("delete removes the whole day", func(t *testing.T) {
		n, err := c.DeleteEvents(ctx, "sensor1", "ph_alert", base, base)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		out, err := c.GetEvents(ctx, "sensor1", "ph_alert", base, base.Add(time.Hour))
		require.NoError(t, err)
		require.Equal(t, 0, out.Len())
	})
}

func TestCorral_Client_Metadata(t *testing.T) {
	c := newClient(t)
	ctx := t.Context()

	n, err := c.PutMetadata(ctx, "device", "dev1", "location", series.Dict{"city": "porto"}, false)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = c.PutMetadata(ctx, "device", "dev1", "calibration", series.Dict{"slope": 1.5}, true)
	require.NoError(t, err)

	t.Run("public read hides internal namespaces", func(t *testing.T) {
		items, err := c.GetMetadata(ctx, "device", "dev1", nil, false)
		require.NoError(t, err)
		require.Len(t, items, 1)
		require.Equal(t, "location", items[0].Namespace)
		require.Equal(t, "porto", items[0].Data["city"])
	})

	t.Run("internal read sees every namespace", func(t *testing.T) {
		items, err := c.GetMetadata(ctx, "device", "dev1", nil, true)
		require.NoError(t, err)
		require.Len(t, items, 2)
		require.Equal(t, "calibration", items[0].Namespace)
		require.True(t, items[0].Internal)
		require.Equal(t, "location", items[1].Namespace)
		require.False(t, items[1].Internal)
	})
}

func TestCorral_Client_Activity(t *testing.T) {
	c := newClient(t)
	ctx := t.Context()
	day := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	at := day.Add(10*time.Hour + 30*time.Minute)

	vals, err := c.IncrActivity(ctx, "readerA", "devX", at, []string{"orgA"}, 1)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 1}, vals)
	vals, err = c.IncrActivity(ctx, "readerA", "devX", at, []string{"orgA"}, 2)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 3}, vals)

	t.Run("reader view counts per device", func(t *testing.T) {
		acts, err := c.GetReaderActivity(ctx, "readerA", day, day.Add(23*time.Hour))
		require.NoError(t, err)
		require.Len(t, acts, 1)
		require.Equal(t, "2022010110", acts[0].DayHour)
		require.Equal(t, map[string][]int64{"devX": {3}}, acts[0].Devices)
	})

	t.Run("day views list devices per reader", func(t *testing.T) {
		acts, err := c.GetDayActivity(ctx, "orgA", at)
		require.NoError(t, err)
		require.Len(t, acts, 1)
		require.Equal(t, "2022010110", acts[0].DayHour)
		require.Equal(t, map[string][]string{"readerA": {"devX"}}, acts[0].Readers)

		total, err := c.GetTotalActivity(ctx, at)
		require.NoError(t, err)
		require.Equal(t, acts, total)
	})
}

func TestCorral_Client_ReadOnly(t *testing.T) {
	cfg := testConfig()
	cfg.ReadOnly = true
	c, err := client.New(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Logf("failed to close client: %v", err)
		}
	})
	require.True(t, c.ReadOnly())

	ctx := t.Context()
	at := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err = c.PutTimeseries(ctx, "sensor1", "temp", floatPoints(at.Unix(), 1, 600, 1))
	require.ErrorIs(t, err, store.ErrReadOnly)
	_, err = c.PutTimeseriesMulti(ctx, []client.TimeSeriesUpload{{Key: "sensor1", Metric: "temp"}})
	require.ErrorIs(t, err, store.ErrReadOnly)
	_, err = c.DeleteTimeseries(ctx, "sensor1", []string{"temp"}, at, at)
	require.ErrorIs(t, err, store.ErrReadOnly)
	_, err = c.PutEvents(ctx, "sensor1", "ph_alert", []series.Event{{TS: at.Unix(), Data: series.Dict{"ph": 5.5}}})
	require.ErrorIs(t, err, store.ErrReadOnly)
	_, err = c.DeleteEvents(ctx, "sensor1", "ph_alert", at, at)
	require.ErrorIs(t, err, store.ErrReadOnly)
	_, err = c.PutMetadata(ctx, "device", "dev1", "location", series.Dict{"city": "porto"}, false)
	require.ErrorIs(t, err, store.ErrReadOnly)
	_, err = c.IncrActivity(ctx, "readerA", "devX", at, nil, 1)
	require.ErrorIs(t, err, store.ErrReadOnly)
}
