package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/grazelabs/corral/pkg/bigtable"
	"github.com/grazelabs/corral/pkg/metrics"
	"github.com/grazelabs/corral/pkg/series"
)

// maxEventRange bounds a single get to 45 days of events.
const maxEventRange = 45 * 24 * 3600

const (
	maxEventBatch        = 100
	defaultLastEventDays = 45
)

// EventStore reads and writes named event streams. Events live in the
// events table under the single column family "e", one row per key, name
// and day, one JSON-encoded column per event.
type EventStore struct {
	log  *slog.Logger
	conn *Connection
}

func newEventStore(conn *Connection) *EventStore {
	return &EventStore{log: conn.log, conn: conn}
}

// Insert writes every event of the list. Batches must stay below one
// hundred events. Returns the number of events written.
func (s *EventStore) Insert(ctx context.Context, events *series.EventList) (int, error) {
	if err := s.conn.guardWrite(); err != nil {
		return 0, err
	}
	n := events.Len()
	if n < 1 || n >= maxEventBatch {
		return 0, fmt.Errorf("event batch size %d not in [1, %d): %w", n, maxEventBatch, ErrArgument)
	}

	start := time.Now()
	byRow := make(map[string]map[string][]byte)
	var order []string
	for _, ev := range events.Events() {
		payload, err := json.Marshal(map[string]any(ev.Data))
		if err != nil {
			return 0, fmt.Errorf("failed to encode event data: %w", err)
		}
		rowKey := eventsRowKey(events.Key(), events.Name(), ev.TS)
		cells, ok := byRow[rowKey]
		if !ok {
			cells = make(map[string][]byte)
			byRow[rowKey] = cells
			order = append(order, rowKey)
		}
		cells[fmt.Sprintf("%s:%d", familyEvents, ev.TS)] = payload
	}
	upserts := make([]bigtable.RowUpsert, 0, len(order))
	for _, rowKey := range order {
		upserts = append(upserts, bigtable.RowUpsert{Key: rowKey, Cells: byRow[rowKey]})
	}

	tbl, err := s.conn.table(ctx, tableEvents)
	if err != nil {
		return 0, err
	}
	if err := tbl.Upsert(ctx, upserts); err != nil {
		metrics.StoreOpTotal.WithLabelValues("events", "insert", "error").Inc()
		return 0, backendErr("insert events", err)
	}

	metrics.StoreOpDuration.WithLabelValues("events", "insert").Observe(time.Since(start).Seconds())
	metrics.StoreOpTotal.WithLabelValues("events", "insert", "success").Inc()
	s.log.Debug("events: insert completed", "key", events.Key(), "name", events.Name(), "events", n)
	return n, nil
}

// InsertOne writes a single event.
func (s *EventStore) InsertOne(ctx context.Context, key, name string, ts int64, data series.Dict) (int, error) {
	el, err := series.NewEventList(key, name, series.Event{TS: ts, Data: data})
	if err != nil {
		return 0, err
	}
	return s.Insert(ctx, el)
}

// Get reads the events of (key, name) with from <= ts <= to.
func (s *EventStore) Get(ctx context.Context, key, name string, from, to int64) (*series.EventList, error) {
	if to < from {
		return nil, fmt.Errorf("invalid range %d..%d: %w", from, to, ErrArgument)
	}
	if to-from >= maxEventRange {
		return nil, fmt.Errorf("range wider than 45 days: %w", ErrArgument)
	}
	out, err := series.NewEventList(key, name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	days := series.DailyTimestamps(from, to)
	rowKeys := make([]string, 0, len(days))
	for _, day := range days {
		rowKeys = append(rowKeys, eventsRowKey(out.Key(), out.Name(), day))
	}

	tbl, err := s.conn.table(ctx, tableEvents)
	if err != nil {
		return nil, err
	}
	rows, err := tbl.ReadRows(ctx, rowKeys, []string{familyEvents})
	if err != nil {
		metrics.StoreOpTotal.WithLabelValues("events", "get", "error").Inc()
		return nil, backendErr("get events", err)
	}

	for _, row := range rows {
		if err := insertEventCells(out, row, from, to); err != nil {
			return nil, err
		}
	}

	metrics.StoreOpDuration.WithLabelValues("events", "get").Observe(time.Since(start).Seconds())
	metrics.StoreOpTotal.WithLabelValues("events", "get", "success").Inc()
	s.log.Debug("events: get completed", "key", out.Key(), "name", out.Name(), "events", out.Len())
	return out, nil
}

// GetLast reads the newest count events of (key, name) by scanning day rows
// backwards in time from maxTS. The scan gives up after maxDays day rows.
// Zero values fall back to one event, 45 days, and tomorrow respectively.
func (s *EventStore) GetLast(ctx context.Context, key, name string, count, maxDays int, maxTS int64) (*series.EventList, error) {
	if count <= 0 {
		count = 1
	}
	if maxDays <= 0 {
		maxDays = defaultLastEventDays
	}
	if maxTS <= 0 {
		maxTS = s.conn.clock.Now().Unix() + 24*3600
	}
	out, err := series.NewEventList(key, name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	startKey := eventsRowKey(out.Key(), out.Name(), maxTS)
	prefix := fmt.Sprintf("%s#%s#", out.Key(), out.Name())

	tbl, err := s.conn.table(ctx, tableEvents)
	if err != nil {
		return nil, err
	}
	var insertErr error
	err = tbl.Scan(ctx, startKey, int64(maxDays), []string{familyEvents}, func(row bigtable.Row) bool {
		if !strings.HasPrefix(row.Key, prefix) {
			return false
		}
		if insertErr = insertEventCells(out, row, 0, math.MaxInt64); insertErr != nil {
			return false
		}
		return out.Len() < count
	})
	if err != nil {
		metrics.StoreOpTotal.WithLabelValues("events", "get_last", "error").Inc()
		return nil, backendErr("get last events", err)
	}
	if insertErr != nil {
		return nil, insertErr
	}

	out.TrimCountNewest(count)
	metrics.StoreOpDuration.WithLabelValues("events", "get_last").Observe(time.Since(start).Seconds())
	metrics.StoreOpTotal.WithLabelValues("events", "get_last", "success").Inc()
	return out, nil
}

// DeleteDays removes whole days of events for (key, name) between from and
// to. Returns the number of day rows touched.
func (s *EventStore) DeleteDays(ctx context.Context, key, name string, from, to int64) (int, error) {
	if err := s.conn.guardWrite(); err != nil {
		return 0, err
	}
	if to < from {
		return 0, fmt.Errorf("invalid range %d..%d: %w", from, to, ErrArgument)
	}
	lowKey := strings.ToLower(key)
	lowName := strings.ToLower(name)
	days := series.DailyTimestamps(from, to)
	rowKeys := make([]string, 0, len(days))
	for _, day := range days {
		rowKeys = append(rowKeys, eventsRowKey(lowKey, lowName, day))
	}

	tbl, err := s.conn.table(ctx, tableEvents)
	if err != nil {
		return 0, err
	}
	if err := tbl.DeleteFamilies(ctx, rowKeys, []string{familyEvents}); err != nil {
		metrics.StoreOpTotal.WithLabelValues("events", "delete", "error").Inc()
		return 0, backendErr("delete events", err)
	}

	metrics.StoreOpTotal.WithLabelValues("events", "delete", "success").Inc()
	s.log.Debug("events: delete completed", "key", lowKey, "name", lowName, "days", len(rowKeys))
	return len(rowKeys), nil
}

// insertEventCells decodes the event cells of one row and merges those with
// from <= ts <= to into the list.
func insertEventCells(out *series.EventList, row bigtable.Row, from, to int64) error {
	for _, cell := range row.Cells {
		if cell.Family != familyEvents {
			continue
		}
		ts, err := strconv.ParseInt(cell.Qualifier, 10, 64)
		if err != nil {
			continue
		}
		if ts < from || ts > to {
			continue
		}
		var data map[string]any
		if err := json.Unmarshal(cell.Value, &data); err != nil {
			return fmt.Errorf("failed to decode event data at %d: %w", ts, err)
		}
		if _, err := out.Add(series.Event{TS: ts, Data: series.Dict(data)}); err != nil {
			return err
		}
	}
	return nil
}
