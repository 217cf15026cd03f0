package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/grazelabs/corral/pkg/bigtable"
	"github.com/grazelabs/corral/pkg/metrics"
	"github.com/grazelabs/corral/pkg/series"
)

// maxSeriesRange bounds a single get to 400 days of data.
const maxSeriesRange = 400 * 24 * 3600

const (
	defaultLastValueCount = 1
	defaultLastValueDays  = 365
)

// TimeSeriesStore reads and writes metric series. Cells live in the
// timeseries table, one row per key and day, one column per point under the
// metric's column family.
type TimeSeriesStore struct {
	log  *slog.Logger
	conn *Connection
}

func newTimeSeriesStore(conn *Connection) *TimeSeriesStore {
	return &TimeSeriesStore{log: conn.log, conn: conn}
}

// resolve maps metric names to their definitions and builds one empty
// result container per metric, indexed by column family id.
func (s *TimeSeriesStore) resolve(key string, metricNames []string) ([]*series.TimeSeries, map[string]*series.TimeSeries, []string, error) {
	if len(metricNames) == 0 {
		return nil, nil, nil, fmt.Errorf("no metrics given: %w", ErrArgument)
	}
	out := make([]*series.TimeSeries, 0, len(metricNames))
	byFamily := make(map[string]*series.TimeSeries, len(metricNames))
	families := make([]string, 0, len(metricNames))
	for _, name := range metricNames {
		md, err := s.conn.Metric(name)
		if err != nil {
			return nil, nil, nil, err
		}
		ts, err := series.New(key, md.Name, md.Type)
		if err != nil {
			return nil, nil, nil, err
		}
		out = append(out, ts)
		byFamily[md.ID] = ts
		families = append(families, md.ID)
	}
	return out, byFamily, families, nil
}

// Insert writes every point of ts, bucketed into daily rows with one column
// per point. Returns the number of points written.
func (s *TimeSeriesStore) Insert(ctx context.Context, ts *series.TimeSeries) (int, error) {
	if err := s.conn.guardWrite(); err != nil {
		return 0, err
	}
	md, err := s.conn.Metric(ts.Metric())
	if err != nil {
		return 0, err
	}
	if ts.Len() == 0 {
		return 0, fmt.Errorf("series %s/%s is empty: %w", ts.Key(), ts.Metric(), ErrArgument)
	}
	if err := ts.Validate(); err != nil {
		return 0, err
	}

	start := time.Now()
	buckets, err := ts.DailyBuckets()
	if err != nil {
		return 0, err
	}
	upserts := make([]bigtable.RowUpsert, 0, len(buckets))
	count := 0
	for _, bucket := range buckets {
		cells := make(map[string][]byte, len(bucket.Items))
		for _, item := range bucket.Items {
			cells[fmt.Sprintf("%s:%d", md.ID, item.TS)] = item.Cell
			count++
		}
		upserts = append(upserts, bigtable.RowUpsert{
			Key:   seriesRowKey(ts.Key(), bucket.Day),
			Cells: cells,
		})
	}

	tbl, err := s.conn.table(ctx, tableTimeSeries)
	if err != nil {
		return 0, err
	}
	if err := tbl.Upsert(ctx, upserts); err != nil {
		metrics.StoreOpTotal.WithLabelValues("timeseries", "insert", "error").Inc()
		return 0, backendErr("insert timeseries", err)
	}

	metrics.StoreOpDuration.WithLabelValues("timeseries", "insert").Observe(time.Since(start).Seconds())
	metrics.StoreOpTotal.WithLabelValues("timeseries", "insert", "success").Inc()
	metrics.PointsWritten.WithLabelValues(ts.Metric()).Add(float64(count))
	s.log.Debug("timeseries: insert completed", "key", ts.Key(), "metric", ts.Metric(), "points", count, "days", len(upserts))
	return count, nil
}

// InsertBulk inserts several series one after another and returns the points
// written per series, in input order. On error the already finished inserts
// stay written.
func (s *TimeSeriesStore) InsertBulk(ctx context.Context, list []*series.TimeSeries) ([]int, error) {
	counts := make([]int, 0, len(list))
	for _, ts := range list {
		n, err := s.Insert(ctx, ts)
		if err != nil {
			return nil, fmt.Errorf("bulk insert %s/%s: %w", ts.Key(), ts.Metric(), err)
		}
		counts = append(counts, n)
	}
	return counts, nil
}

// Get reads the points of each named metric for key with from <= ts <= to.
// The result holds one series per requested metric, in request order, empty
// when no points exist in the range.
func (s *TimeSeriesStore) Get(ctx context.Context, key string, metricNames []string, from, to int64) ([]*series.TimeSeries, error) {
	if to < from {
		return nil, fmt.Errorf("invalid range %d..%d: %w", from, to, ErrArgument)
	}
	if to-from >= maxSeriesRange {
		return nil, fmt.Errorf("range wider than 400 days: %w", ErrArgument)
	}
	out, byFamily, families, err := s.resolve(key, metricNames)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	days := series.DailyTimestamps(from, to)
	rowKeys := make([]string, 0, len(days))
	for _, day := range days {
		rowKeys = append(rowKeys, seriesRowKey(out[0].Key(), day))
	}

	tbl, err := s.conn.table(ctx, tableTimeSeries)
	if err != nil {
		return nil, err
	}
	rows, err := tbl.ReadRows(ctx, rowKeys, families)
	if err != nil {
		metrics.StoreOpTotal.WithLabelValues("timeseries", "get", "error").Inc()
		return nil, backendErr("get timeseries", err)
	}

	read := 0
	for _, row := range rows {
		for _, cell := range row.Cells {
			target, ok := byFamily[cell.Family]
			if !ok {
				continue
			}
			pointTS, err := strconv.ParseInt(cell.Qualifier, 10, 64)
			if err != nil {
				continue
			}
			if _, err := target.InsertStorageItem(pointTS, cell.Value, false); err != nil {
				return nil, err
			}
			read++
		}
	}
	for _, ts := range out {
		ts.Trim(from, to)
	}

	metrics.StoreOpDuration.WithLabelValues("timeseries", "get").Observe(time.Since(start).Seconds())
	metrics.StoreOpTotal.WithLabelValues("timeseries", "get", "success").Inc()
	for _, ts := range out {
		metrics.PointsRead.WithLabelValues(ts.Metric()).Add(float64(ts.Len()))
	}
	s.log.Debug("timeseries: get completed", "key", out[0].Key(), "metrics", len(out), "cells", read)
	return out, nil
}

// GetSingle reads one metric for key in [from, to].
func (s *TimeSeriesStore) GetSingle(ctx context.Context, key, metric string, from, to int64) (*series.TimeSeries, error) {
	list, err := s.Get(ctx, key, []string{metric}, from, to)
	if err != nil {
		return nil, err
	}
	return list[0], nil
}

// GetLastValues reads the newest count points of each named metric by
// scanning day rows backwards in time from maxTS. The scan gives up after
// maxDays day rows. Zero values fall back to one point, 365 days, and
// tomorrow respectively.
func (s *TimeSeriesStore) GetLastValues(ctx context.Context, key string, metricNames []string, count, maxDays int, maxTS int64) ([]*series.TimeSeries, error) {
	if count <= 0 {
		count = defaultLastValueCount
	}
	if maxDays <= 0 {
		maxDays = defaultLastValueDays
	}
	if maxTS <= 0 {
		maxTS = s.conn.clock.Now().Unix() + 24*3600
	}
	out, byFamily, families, err := s.resolve(key, metricNames)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	startKey := seriesRowKey(out[0].Key(), maxTS)
	prefix := out[0].Key() + "#"

	tbl, err := s.conn.table(ctx, tableTimeSeries)
	if err != nil {
		return nil, err
	}
	var scanErr error
	err = tbl.Scan(ctx, startKey, int64(maxDays), families, func(row bigtable.Row) bool {
		if !strings.HasPrefix(row.Key, prefix) {
			return false
		}
		for _, cell := range row.Cells {
			target, ok := byFamily[cell.Family]
			if !ok {
				continue
			}
			pointTS, err := strconv.ParseInt(cell.Qualifier, 10, 64)
			if err != nil {
				continue
			}
			if _, err := target.InsertStorageItem(pointTS, cell.Value, false); err != nil {
				scanErr = err
				return false
			}
		}
		for _, ts := range out {
			if ts.Len() < count {
				return true
			}
		}
		return false
	})
	if err != nil {
		metrics.StoreOpTotal.WithLabelValues("timeseries", "get_last_values", "error").Inc()
		return nil, backendErr("get last values", err)
	}
	if scanErr != nil {
		metrics.StoreOpTotal.WithLabelValues("timeseries", "get_last_values", "error").Inc()
		return nil, scanErr
	}

	for _, ts := range out {
		ts.TrimCountNewest(count)
	}

	metrics.StoreOpDuration.WithLabelValues("timeseries", "get_last_values").Observe(time.Since(start).Seconds())
	metrics.StoreOpTotal.WithLabelValues("timeseries", "get_last_values", "success").Inc()
	return out, nil
}

// Delete removes whole days of the named metrics for key between from and
// to. Every metric must allow deletion. Returns the number of day rows
// touched.
func (s *TimeSeriesStore) Delete(ctx context.Context, key string, metricNames []string, from, to int64) (int, error) {
	if err := s.conn.guardWrite(); err != nil {
		return 0, err
	}
	if len(metricNames) == 0 {
		return 0, fmt.Errorf("no metrics given: %w", ErrArgument)
	}
	if to < from {
		return 0, fmt.Errorf("invalid range %d..%d: %w", from, to, ErrArgument)
	}
	families := make([]string, 0, len(metricNames))
	for _, name := range metricNames {
		md, err := s.conn.Metric(name)
		if err != nil {
			return 0, err
		}
		if !md.DeletePossible {
			return 0, fmt.Errorf("%w %s", ErrDeleteForbidden, md.Name)
		}
		families = append(families, md.ID)
	}

	start := time.Now()
	lowKey := strings.ToLower(key)
	days := series.DailyTimestamps(from, to)
	rowKeys := make([]string, 0, len(days))
	for _, day := range days {
		rowKeys = append(rowKeys, seriesRowKey(lowKey, day))
	}

	tbl, err := s.conn.table(ctx, tableTimeSeries)
	if err != nil {
		return 0, err
	}
	if err := tbl.DeleteFamilies(ctx, rowKeys, families); err != nil {
		metrics.StoreOpTotal.WithLabelValues("timeseries", "delete", "error").Inc()
		return 0, backendErr("delete timeseries", err)
	}

	metrics.StoreOpDuration.WithLabelValues("timeseries", "delete").Observe(time.Since(start).Seconds())
	metrics.StoreOpTotal.WithLabelValues("timeseries", "delete", "success").Inc()
	s.log.Debug("timeseries: delete completed", "key", lowKey, "metrics", len(families), "days", len(rowKeys))
	return len(rowKeys), nil
}
