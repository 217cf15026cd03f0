package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grazelabs/corral/pkg/series"
	"github.com/grazelabs/corral/pkg/store"
)

// Result carries the outcome of one background job.
type Result[T any] struct {
	Value T
	Err   error
}

// AsyncClient fronts a Client with a bounded worker pool. Every method
// submits the matching synchronous call as a background job and returns a
// buffered channel that receives the single result. Jobs carry an id for
// log correlation. Close waits until every submitted job finished, it does
// not close the wrapped client.
type AsyncClient struct {
	log    *slog.Logger
	client *Client

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewAsync wraps client with a pool of the given size. Size zero falls back
// to the connection pool size.
func NewAsync(client *Client, workers int) *AsyncClient {
	if workers <= 0 {
		workers = client.conn.PoolSize()
	}
	return &AsyncClient{
		log:    client.log,
		client: client,
		sem:    make(chan struct{}, workers),
	}
}

// Close blocks until all submitted jobs ran to completion.
func (a *AsyncClient) Close() error {
	a.wg.Wait()
	return nil
}

// submit queues one job. The result channel is buffered, a worker never
// blocks on an abandoned result.
func submit[T any](a *AsyncClient, ctx context.Context, op string, fn func(context.Context) (T, error)) <-chan Result[T] {
	id := uuid.New()
	out := make(chan Result[T], 1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		select {
		case <-ctx.Done():
			out <- Result[T]{Err: ctx.Err()}
			return
		default:
		}
		select {
		case a.sem <- struct{}{}:
		case <-ctx.Done():
			out <- Result[T]{Err: ctx.Err()}
			return
		}
		defer func() { <-a.sem }()

		start := time.Now()
		v, err := fn(ctx)
		if err != nil {
			a.log.Warn("client: async job failed", "job", id, "op", op, "error", err, "duration", time.Since(start))
		} else {
			a.log.Debug("client: async job completed", "job", id, "op", op, "duration", time.Since(start))
		}
		out <- Result[T]{Value: v, Err: err}
	}()
	return out
}

func (a *AsyncClient) GetTimeseries(ctx context.Context, key string, metrics []string, from, to time.Time) <-chan Result[[]*series.TimeSeries] {
	return submit(a, ctx, "get_timeseries", func(ctx context.Context) ([]*series.TimeSeries, error) {
		return a.client.GetTimeseries(ctx, key, metrics, from, to)
	})
}

func (a *AsyncClient) GetLastValues(ctx context.Context, key string, metrics []string) <-chan Result[[]*series.TimeSeries] {
	return submit(a, ctx, "get_last_values", func(ctx context.Context) ([]*series.TimeSeries, error) {
		return a.client.GetLastValues(ctx, key, metrics)
	})
}

func (a *AsyncClient) PutTimeseries(ctx context.Context, key, metric string, points []series.Point) <-chan Result[int] {
	return submit(a, ctx, "put_timeseries", func(ctx context.Context) (int, error) {
		return a.client.PutTimeseries(ctx, key, metric, points)
	})
}

func (a *AsyncClient) PutTimeseriesMulti(ctx context.Context, uploads []TimeSeriesUpload) <-chan Result[[]int] {
	return submit(a, ctx, "put_timeseries_multi", func(ctx context.Context) ([]int, error) {
		return a.client.PutTimeseriesMulti(ctx, uploads)
	})
}

func (a *AsyncClient) DeleteTimeseries(ctx context.Context, key string, metrics []string, from, to time.Time) <-chan Result[int] {
	return submit(a, ctx, "delete_timeseries", func(ctx context.Context) (int, error) {
		return a.client.DeleteTimeseries(ctx, key, metrics, from, to)
	})
}

func (a *AsyncClient) PutEvents(ctx context.Context, key, name string, events []series.Event) <-chan Result[int] {
	return submit(a, ctx, "put_events", func(ctx context.Context) (int, error) {
		return a.client.PutEvents(ctx, key, name, events)
	})
}

func (a *AsyncClient) GetEvents(ctx context.Context, key, name string, from, to time.Time) <-chan Result[*series.EventList] {
	return submit(a, ctx, "get_events", func(ctx context.Context) (*series.EventList, error) {
		return a.client.GetEvents(ctx, key, name, from, to)
	})
}

func (a *AsyncClient) GetLastEvents(ctx context.Context, key, name string) <-chan Result[*series.EventList] {
	return submit(a, ctx, "get_last_events", func(ctx context.Context) (*series.EventList, error) {
		return a.client.GetLastEvents(ctx, key, name)
	})
}

func (a *AsyncClient) DeleteEvents(ctx context.Context, key, name string, from, to time.Time) <-chan Result[int] {
	return submit(a, ctx, "delete_events", func(ctx context.Context) (int, error) {
		return a.client.DeleteEvents(ctx, key, name, from, to)
	})
}

func (a *AsyncClient) PutMetadata(ctx context.Context, objectName, objectKey, namespace string, data series.Dict, internal bool) <-chan Result[int] {
	return submit(a, ctx, "put_metadata", func(ctx context.Context) (int, error) {
		return a.client.PutMetadata(ctx, objectName, objectKey, namespace, data, internal)
	})
}

func (a *AsyncClient) GetMetadata(ctx context.Context, objectName, objectKey string, namespaces []string, internal bool) <-chan Result[[]store.MetaDataItem] {
	return submit(a, ctx, "get_metadata", func(ctx context.Context) ([]store.MetaDataItem, error) {
		return a.client.GetMetadata(ctx, objectName, objectKey, namespaces, internal)
	})
}

func (a *AsyncClient) IncrActivity(ctx context.Context, readerID, deviceID string, at time.Time, parentIDs []string, value int64) <-chan Result[[]int64] {
	return submit(a, ctx, "incr_activity", func(ctx context.Context) ([]int64, error) {
		return a.client.IncrActivity(ctx, readerID, deviceID, at, parentIDs, value)
	})
}

func (a *AsyncClient) GetTotalActivity(ctx context.Context, at time.Time) <-chan Result[[]store.ReaderActivity] {
	return submit(a, ctx, "get_total_activity", func(ctx context.Context) ([]store.ReaderActivity, error) {
		return a.client.GetTotalActivity(ctx, at)
	})
}

func (a *AsyncClient) GetDayActivity(ctx context.Context, parentID string, at time.Time) <-chan Result[[]store.ReaderActivity] {
	return submit(a, ctx, "get_day_activity", func(ctx context.Context) ([]store.ReaderActivity, error) {
		return a.client.GetDayActivity(ctx, parentID, at)
	})
}

func (a *AsyncClient) GetReaderActivity(ctx context.Context, readerID string, from, to time.Time) <-chan Result[[]store.DeviceActivity] {
	return submit(a, ctx, "get_reader_activity", func(ctx context.Context) ([]store.DeviceActivity, error) {
		return a.client.GetReaderActivity(ctx, readerID, from, to)
	})
}
