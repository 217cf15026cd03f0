package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/grazelabs/corral/pkg/series"
	"github.com/grazelabs/corral/pkg/store"
)

// Client is the synchronous call surface over a store connection. Callers
// hand in wall-clock time.Time values, the conversion to UTC unix seconds
// happens here, the stores below only ever see unix seconds.
type Client struct {
	log  *slog.Logger
	conn *store.Connection
}

// New connects to the backend and returns a ready client. With
// cfg.ReadOnly set every mutating call fails with store.ErrReadOnly.
func New(ctx context.Context, cfg store.Config) (*Client, error) {
	conn, err := store.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Client{log: cfg.Logger, conn: conn}, nil
}

// Close releases the underlying backend connections.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Connection exposes the wrapped store connection for admin and debugging
// paths that the client surface does not cover.
func (c *Client) Connection() *store.Connection {
	return c.conn
}

// ReadOnly reports whether mutating calls are refused.
func (c *Client) ReadOnly() bool {
	return c.conn.ReadOnly()
}

// writable gates mutating calls before they reach a store. The stores
// enforce the same gate again on their write paths.
func (c *Client) writable() error {
	if c.conn.ReadOnly() {
		return store.ErrReadOnly
	}
	return nil
}

// GetTimeseries reads the named metrics of one key over [from, to].
func (c *Client) GetTimeseries(ctx context.Context, key string, metrics []string, from, to time.Time) ([]*series.TimeSeries, error) {
	return c.conn.TimeSeries.Get(ctx, key, metrics, from.Unix(), to.Unix())
}

// GetLastValues reads the newest stored value of each named metric.
func (c *Client) GetLastValues(ctx context.Context, key string, metrics []string) ([]*series.TimeSeries, error) {
	return c.conn.TimeSeries.GetLastValues(ctx, key, metrics, 0, 0, 0)
}

// PutTimeseries inserts points for one key and metric. The value variant
// comes from the metric registry, points with a mismatched value fail.
func (c *Client) PutTimeseries(ctx context.Context, key, metric string, points []series.Point) (int, error) {
	if err := c.writable(); err != nil {
		return 0, err
	}
	md, err := c.conn.Metric(metric)
	if err != nil {
		return 0, err
	}
	ts, err := series.New(key, metric, md.Type)
	if err != nil {
		return 0, err
	}
	if _, err := ts.Insert(points); err != nil {
		return 0, err
	}
	return c.conn.TimeSeries.Insert(ctx, ts)
}

// TimeSeriesUpload is one series of points inside a bulk insert.
type TimeSeriesUpload struct {
	Key    string
	Metric string
	Points []series.Point
}

// PutTimeseriesMulti inserts several series concurrently, bounded by the
// connection pool size. The returned counts keep the input order. On error
// the already finished uploads stay written.
func (c *Client) PutTimeseriesMulti(ctx context.Context, uploads []TimeSeriesUpload) ([]int, error) {
	if err := c.writable(); err != nil {
		return nil, err
	}
	start := time.Now()
	counts := make([]int, len(uploads))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.conn.PoolSize())
	for i, up := range uploads {
		g.Go(func() error {
			n, err := c.PutTimeseries(ctx, up.Key, up.Metric, up.Points)
			if err != nil {
				return fmt.Errorf("upload %s/%s: %w", up.Key, up.Metric, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	c.log.Debug("client: multi insert completed", "series", len(uploads), "duration", time.Since(start))
	return counts, nil
}

// DeleteTimeseries removes whole days of the named metrics, bounded by the
// days [from, to] fall into.
func (c *Client) DeleteTimeseries(ctx context.Context, key string, metrics []string, from, to time.Time) (int, error) {
	if err := c.writable(); err != nil {
		return 0, err
	}
	return c.conn.TimeSeries.Delete(ctx, key, metrics, from.Unix(), to.Unix())
}

// PutEvents appends events to the named stream of one key.
func (c *Client) PutEvents(ctx context.Context, key, name string, events []series.Event) (int, error) {
	if err := c.writable(); err != nil {
		return 0, err
	}
	list, err := series.NewEventList(key, name, events...)
	if err != nil {
		return 0, err
	}
	return c.conn.Events.Insert(ctx, list)
}

// GetEvents reads the events of one stream over [from, to].
func (c *Client) GetEvents(ctx context.Context, key, name string, from, to time.Time) (*series.EventList, error) {
	return c.conn.Events.Get(ctx, key, name, from.Unix(), to.Unix())
}

// GetLastEvents reads the newest event of one stream.
func (c *Client) GetLastEvents(ctx context.Context, key, name string) (*series.EventList, error) {
	return c.conn.Events.GetLast(ctx, key, name, 0, 0, 0)
}

// DeleteEvents removes whole days of one stream, bounded by the days
// [from, to] fall into.
func (c *Client) DeleteEvents(ctx context.Context, key, name string, from, to time.Time) (int, error) {
	if err := c.writable(); err != nil {
		return 0, err
	}
	return c.conn.Events.DeleteDays(ctx, key, name, from.Unix(), to.Unix())
}

// PutMetadata stores one namespace dict of an object.
func (c *Client) PutMetadata(ctx context.Context, objectName, objectKey, namespace string, data series.Dict, internal bool) (int, error) {
	if err := c.writable(); err != nil {
		return 0, err
	}
	return c.conn.Metadata.Put(ctx, objectName, objectKey, namespace, data, internal)
}

// GetMetadata reads the namespace dicts of an object. With internal set the
// result includes internal namespaces as well.
func (c *Client) GetMetadata(ctx context.Context, objectName, objectKey string, namespaces []string, internal bool) ([]store.MetaDataItem, error) {
	return c.conn.Metadata.Get(ctx, objectName, objectKey, namespaces, internal)
}

// IncrActivity adds value to the hourly activity counters of a reader and
// device, fanning out to the total row and every parent row. It returns the
// new counter values, total row first.
func (c *Client) IncrActivity(ctx context.Context, readerID, deviceID string, at time.Time, parentIDs []string, value int64) ([]int64, error) {
	if err := c.writable(); err != nil {
		return nil, err
	}
	return c.conn.Activity.Increment(ctx, readerID, deviceID, at.Unix(), parentIDs, value)
}

// GetTotalActivity reads the activity of every reader on the day at falls
// into.
func (c *Client) GetTotalActivity(ctx context.Context, at time.Time) ([]store.ReaderActivity, error) {
	return c.conn.Activity.GetTotalForDay(ctx, at.Unix())
}

// GetDayActivity reads the activity below one parent on the day at falls
// into.
func (c *Client) GetDayActivity(ctx context.Context, parentID string, at time.Time) ([]store.ReaderActivity, error) {
	return c.conn.Activity.GetForDay(ctx, parentID, at.Unix())
}

// GetReaderActivity reads the per-device counters of one reader over
// [from, to].
func (c *Client) GetReaderActivity(ctx context.Context, readerID string, from, to time.Time) ([]store.DeviceActivity, error) {
	return c.conn.Activity.GetForReader(ctx, readerID, from.Unix(), to.Unix())
}
