package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/grazelabs/corral/pkg/bigtable"
	"github.com/grazelabs/corral/pkg/metrics"
	"github.com/grazelabs/corral/pkg/series"
)

// maxActivityRange bounds a single reader query to 90 days.
const maxActivityRange = 90 * 24 * 3600

// DeviceActivity holds one day-hour of a single reader's activity, with
// counter values per device. DayHour is formatted "YYYYMMDDHH" in UTC.
type DeviceActivity struct {
	DayHour string
	Devices map[string][]int64
}

// ReaderActivity holds one day-hour of activity below a parent, with the
// devices seen per reader. DayHour is formatted "YYYYMMDDHH" in UTC.
type ReaderActivity struct {
	DayHour string
	Readers map[string][]string
}

// ActivityStore tracks which readers and devices were active per hour.
// Counters live in the activity table under the single column family "c".
// Every increment hits one row per parent plus the global total row, so a
// day of activity can be read either per reader or across a whole parent.
type ActivityStore struct {
	log  *slog.Logger
	conn *Connection
}

func newActivityStore(conn *Connection) *ActivityStore {
	return &ActivityStore{log: conn.log, conn: conn}
}

// incrementRowKeys returns the row keys touched by one increment: the total
// row first, then one per parent. Identifiers are not normalized here, the
// caller decides on casing.
func incrementRowKeys(readerID string, ts int64, parentIDs []string) ([]string, error) {
	if len(readerID) < 3 || len(readerID) > 32 {
		return nil, fmt.Errorf("reader id %q length not in [3, 32]: %w", readerID, ErrArgument)
	}
	if len(parentIDs) > 3 {
		return nil, fmt.Errorf("more than 3 parent ids: %w", ErrArgument)
	}
	keys := []string{activityRowKey(activityTotalParent, ts, readerID)}
	for _, p := range parentIDs {
		if len(p) < 3 || len(p) > 32 {
			return nil, fmt.Errorf("parent id %q length not in [3, 32]: %w", p, ErrArgument)
		}
		keys = append(keys, activityRowKey(p, ts, readerID))
	}
	return keys, nil
}

// Increment counts one sighting of device by reader at ts, attributed to
// every given parent and to the global total. Returns the new counter
// values in row key order, total row first.
func (s *ActivityStore) Increment(ctx context.Context, readerID, deviceID string, ts int64, parentIDs []string, value int64) ([]int64, error) {
	if err := s.conn.guardWrite(); err != nil {
		return nil, err
	}
	rowKeys, err := incrementRowKeys(readerID, ts, parentIDs)
	if err != nil {
		return nil, err
	}
	column := fmt.Sprintf("%s:%s.%s", familyActivity, hourKey(ts), deviceID)

	start := time.Now()
	tbl, err := s.conn.table(ctx, tableActivity)
	if err != nil {
		return nil, err
	}
	res := make([]int64, 0, len(rowKeys))
	for _, rowKey := range rowKeys {
		v, err := tbl.Increment(ctx, rowKey, column, value)
		if err != nil {
			metrics.StoreOpTotal.WithLabelValues("activity", "increment", "error").Inc()
			return nil, backendErr("increment activity", err)
		}
		res = append(res, v)
	}

	metrics.ActivityIncrements.Add(float64(len(res)))
	metrics.StoreOpDuration.WithLabelValues("activity", "increment").Observe(time.Since(start).Seconds())
	metrics.StoreOpTotal.WithLabelValues("activity", "increment", "success").Inc()
	s.log.Debug("activity: increment completed", "device", deviceID, "rows", len(res))
	return res, nil
}

// GetForReader reads a reader's activity between from and to, one entry
// per day-hour with the counter values per device, ordered by day-hour.
func (s *ActivityStore) GetForReader(ctx context.Context, readerID string, from, to int64) ([]DeviceActivity, error) {
	if to < from {
		return nil, fmt.Errorf("invalid range %d..%d: %w", from, to, ErrArgument)
	}
	if to-from >= maxActivityRange {
		return nil, fmt.Errorf("range wider than 90 days: %w", ErrArgument)
	}

	days := series.DailyTimestamps(from, to)
	rowKeys := make([]string, 0, len(days))
	for _, day := range days {
		rowKeys = append(rowKeys, activityRowKey(activityTotalParent, day, readerID))
	}

	start := time.Now()
	tbl, err := s.conn.table(ctx, tableActivity)
	if err != nil {
		return nil, err
	}
	rows, err := tbl.ReadRows(ctx, rowKeys, []string{familyActivity})
	if err != nil {
		metrics.StoreOpTotal.WithLabelValues("activity", "get_reader", "error").Inc()
		return nil, backendErr("get reader activity", err)
	}

	byDayHour := make(map[string]map[string][]int64)
	for _, row := range rows {
		day, err := rowKeyDay(row.Key)
		if err != nil {
			continue
		}
		for _, cell := range row.Cells {
			hour, device, ok := splitActivityQualifier(cell.Qualifier)
			if !ok || len(cell.Value) != 8 {
				continue
			}
			dayHour := day + hour
			devices, ok := byDayHour[dayHour]
			if !ok {
				devices = make(map[string][]int64)
				byDayHour[dayHour] = devices
			}
			devices[device] = append(devices[device], int64(binary.BigEndian.Uint64(cell.Value)))
		}
	}

	metrics.StoreOpDuration.WithLabelValues("activity", "get_reader").Observe(time.Since(start).Seconds())
	metrics.StoreOpTotal.WithLabelValues("activity", "get_reader", "success").Inc()
	s.log.Debug("activity: get for reader completed", "reader", readerID, "rows", len(rowKeys))

	out := make([]DeviceActivity, 0, len(byDayHour))
	for _, dayHour := range sortedKeys(byDayHour) {
		out = append(out, DeviceActivity{DayHour: dayHour, Devices: byDayHour[dayHour]})
	}
	return out, nil
}

// GetForDay reads all reader activity below parent on the day of dayTS,
// one entry per day-hour with the devices seen per reader.
func (s *ActivityStore) GetForDay(ctx context.Context, parentID string, dayTS int64) ([]ReaderActivity, error) {
	prefix := activityDayPrefix(parentID, dayTS)

	start := time.Now()
	tbl, err := s.conn.table(ctx, tableActivity)
	if err != nil {
		return nil, err
	}
	byDayHour := make(map[string]map[string][]string)
	scanned := 0
	err = tbl.Scan(ctx, prefix, 0, []string{familyActivity}, func(row bigtable.Row) bool {
		if !strings.HasPrefix(row.Key, prefix) {
			return false
		}
		scanned++
		parts := strings.Split(row.Key, "#")
		reader := parts[len(parts)-1]
		day, err := rowKeyDay(row.Key)
		if err != nil {
			return true
		}
		for _, cell := range row.Cells {
			hour, device, ok := splitActivityQualifier(cell.Qualifier)
			if !ok {
				continue
			}
			dayHour := day + hour
			readers, ok := byDayHour[dayHour]
			if !ok {
				readers = make(map[string][]string)
				byDayHour[dayHour] = readers
			}
			readers[reader] = append(readers[reader], device)
		}
		return true
	})
	if err != nil {
		metrics.StoreOpTotal.WithLabelValues("activity", "get_day", "error").Inc()
		return nil, backendErr("get day activity", err)
	}

	metrics.StoreOpDuration.WithLabelValues("activity", "get_day").Observe(time.Since(start).Seconds())
	metrics.StoreOpTotal.WithLabelValues("activity", "get_day", "success").Inc()
	s.log.Debug("activity: get for day completed", "parent", parentID, "rows", scanned)

	out := make([]ReaderActivity, 0, len(byDayHour))
	for _, dayHour := range sortedKeys(byDayHour) {
		out = append(out, ReaderActivity{DayHour: dayHour, Readers: byDayHour[dayHour]})
	}
	return out, nil
}

// GetTotalForDay reads the activity of all readers on the day of dayTS.
func (s *ActivityStore) GetTotalForDay(ctx context.Context, dayTS int64) ([]ReaderActivity, error) {
	return s.GetForDay(ctx, activityTotalParent, dayTS)
}

// rowKeyDay extracts the "YYYYMMDD" day from an activity row key, whose
// second to last segment is the reverse day key.
func rowKeyDay(rowKey string) (string, error) {
	parts := strings.Split(rowKey, "#")
	if len(parts) < 2 {
		return "", fmt.Errorf("malformed activity row key %q: %w", rowKey, ErrArgument)
	}
	return series.ParseReverseDayKey(parts[len(parts)-2])
}

// splitActivityQualifier splits an "HH.device" qualifier. Qualifiers that
// do not match are skipped by the callers.
func splitActivityQualifier(q string) (hour, device string, ok bool) {
	parts := strings.Split(q, ".")
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
