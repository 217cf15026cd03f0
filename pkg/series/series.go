package series

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// Point is a single observation: a UTC timestamp in seconds, the UTC offset
// of the original wall clock in seconds, and a value.
type Point struct {
	TS     int64
	Offset int32
	Value  Value
}

// Time reconstructs the zoned wall time the point was recorded at.
func (p Point) Time() time.Time {
	return time.Unix(p.TS, 0).In(time.FixedZone("", int(p.Offset)))
}

// StorageItem is one encoded cell ready for the storage layer.
type StorageItem struct {
	TS   int64
	Cell []byte
}

// StorageBucket groups the encoded cells of one UTC day.
type StorageBucket struct {
	Day   int64
	Items []StorageItem
}

// TimeSeries is an in-memory series of points kept strictly ascending by
// timestamp. The value variant (float or dict) is fixed at construction and
// enforced on every insert. Instances are not safe for concurrent use.
type TimeSeries struct {
	key    string
	metric string
	typ    Type

	ts      []int64
	offsets []int32
	values  []Value
}

func newSeries(key, metric string, typ Type) (*TimeSeries, error) {
	key = strings.ToLower(key)
	metric = strings.ToLower(metric)
	if len(key) < 2 {
		return nil, fmt.Errorf("series key %q too short: %w", key, ErrArgument)
	}
	if len(metric) < 2 {
		return nil, fmt.Errorf("series metric %q too short: %w", metric, ErrArgument)
	}
	return &TimeSeries{key: key, metric: metric, typ: typ}, nil
}

// New returns an empty series of the given type. Key and metric are
// lowercased and must be at least two characters long.
func New(key, metric string, typ Type) (*TimeSeries, error) {
	switch typ {
	case TypeFloat, TypeDict:
		return newSeries(key, metric, typ)
	default:
		return nil, fmt.Errorf("unknown series type %d: %w", byte(typ), ErrArgument)
	}
}

// NewFloatSeries returns an empty float-valued series.
func NewFloatSeries(key, metric string) (*TimeSeries, error) {
	return newSeries(key, metric, TypeFloat)
}

// NewDictSeries returns an empty dict-valued series.
func NewDictSeries(key, metric string) (*TimeSeries, error) {
	return newSeries(key, metric, TypeDict)
}

func (s *TimeSeries) Key() string    { return s.key }
func (s *TimeSeries) Metric() string { return s.metric }
func (s *TimeSeries) Type() Type     { return s.typ }
func (s *TimeSeries) Len() int       { return len(s.ts) }

// TSMin returns the oldest timestamp, or -1 for an empty series.
func (s *TimeSeries) TSMin() int64 {
	if len(s.ts) == 0 {
		return -1
	}
	return s.ts[0]
}

// TSMax returns the newest timestamp, or -1 for an empty series.
func (s *TimeSeries) TSMax() int64 {
	if len(s.ts) == 0 {
		return -1
	}
	return s.ts[len(s.ts)-1]
}

// At returns the i-th point in timestamp order.
func (s *TimeSeries) At(i int) Point {
	return Point{TS: s.ts[i], Offset: s.offsets[i], Value: s.values[i]}
}

func (s *TimeSeries) String() string {
	return fmt.Sprintf("%s.%s series len=%d ts_min=%d ts_max=%d", s.key, s.metric, s.Len(), s.TSMin(), s.TSMax())
}

// bisectLeft returns the first index whose timestamp is >= ts.
func (s *TimeSeries) bisectLeft(ts int64) int {
	return sort.Search(len(s.ts), func(i int) bool { return s.ts[i] >= ts })
}

// bisectRight returns the first index whose timestamp is > ts.
func (s *TimeSeries) bisectRight(ts int64) int {
	return sort.Search(len(s.ts), func(i int) bool { return s.ts[i] > ts })
}

// InsertPoint merges one point, keeping timestamps strictly ascending. A
// point whose timestamp is already present is dropped and 0 is returned,
// unless overwrite is set, in which case offset and value are replaced.
// Returns the number of accepted points (0 or 1).
func (s *TimeSeries) InsertPoint(p Point, overwrite bool) (int, error) {
	if p.Value == nil {
		return 0, fmt.Errorf("nil point value: %w", ErrArgument)
	}
	if vt := p.Value.valueType(); vt != s.typ {
		return 0, fmt.Errorf("cannot insert %s value into %s series: %w", vt, s.typ, ErrArgument)
	}
	idx := s.bisectLeft(p.TS)
	if idx == len(s.ts) {
		s.ts = append(s.ts, p.TS)
		s.offsets = append(s.offsets, p.Offset)
		s.values = append(s.values, p.Value)
		return 1, nil
	}
	if s.ts[idx] == p.TS {
		if !overwrite {
			return 0, nil
		}
		s.offsets[idx] = p.Offset
		s.values[idx] = p.Value
		return 1, nil
	}
	s.ts = slices.Insert(s.ts, idx, p.TS)
	s.offsets = slices.Insert(s.offsets, idx, p.Offset)
	s.values = slices.Insert(s.values, idx, p.Value)
	return 1, nil
}

// Insert merges points in order and returns how many were accepted.
// Duplicate timestamps are dropped.
func (s *TimeSeries) Insert(points []Point) (int, error) {
	count := 0
	for _, p := range points {
		n, err := s.InsertPoint(p, false)
		if err != nil {
			return count, err
		}
		count += n
	}
	if err := s.Validate(); err != nil {
		return count, err
	}
	return count, nil
}

// InsertTime merges a point observed at t, deriving timestamp and UTC offset
// from t's location.
func (s *TimeSeries) InsertTime(t time.Time, v Value) (int, error) {
	_, off := t.Zone()
	return s.InsertPoint(Point{TS: t.Unix(), Offset: int32(off), Value: v}, false)
}

// InsertStorageItem decodes a stored cell and merges it like InsertPoint.
func (s *TimeSeries) InsertStorageItem(ts int64, cell []byte, overwrite bool) (int, error) {
	v, offset, err := DecodeCell(cell, s.typ)
	if err != nil {
		return 0, err
	}
	return s.InsertPoint(Point{TS: ts, Offset: offset, Value: v}, overwrite)
}

// Trim keeps only the points with min <= ts <= max.
func (s *TimeSeries) Trim(min, max int64) {
	low, high := s.bisectLeft(min), s.bisectRight(max)
	s.ts = s.ts[low:high]
	s.offsets = s.offsets[low:high]
	s.values = s.values[low:high]
}

// TrimCountNewest drops the oldest points until at most n remain.
func (s *TimeSeries) TrimCountNewest(n int) {
	if n <= 0 || s.Len() <= n {
		return
	}
	cut := s.Len() - n
	s.ts = s.ts[cut:]
	s.offsets = s.offsets[cut:]
	s.values = s.values[cut:]
}

// TrimCountOldest drops the newest points until at most n remain.
func (s *TimeSeries) TrimCountOldest(n int) {
	if n <= 0 || s.Len() <= n {
		return
	}
	s.ts = s.ts[:n]
	s.offsets = s.offsets[:n]
	s.values = s.values[:n]
}

// AppendSeries concatenates other onto s. Both series must agree on key,
// metric and type, and other must start strictly after s ends.
func (s *TimeSeries) AppendSeries(other *TimeSeries) error {
	if other == nil || other.Len() == 0 {
		return fmt.Errorf("cannot append empty series: %w", ErrInvariant)
	}
	if s.key != other.key || s.metric != other.metric || s.typ != other.typ {
		return fmt.Errorf("cannot append %s.%s onto %s.%s: %w", other.key, other.metric, s.key, s.metric, ErrInvariant)
	}
	if s.Len() > 0 && s.TSMax() >= other.TSMin() {
		return fmt.Errorf("appended series overlaps (%d >= %d): %w", s.TSMax(), other.TSMin(), ErrInvariant)
	}
	s.ts = append(s.ts, other.ts...)
	s.offsets = append(s.offsets, other.offsets...)
	s.values = append(s.values, other.values...)
	return nil
}

// IndexBelow returns the greatest index whose timestamp is strictly below
// ts, and false when no such point exists.
func (s *TimeSeries) IndexBelow(ts int64) (int, bool) {
	idx := s.bisectLeft(ts)
	if idx == 0 {
		return 0, false
	}
	return idx - 1, true
}

// All returns every point in timestamp order.
func (s *TimeSeries) All() []Point {
	out := make([]Point, s.Len())
	for i := range out {
		out[i] = s.At(i)
	}
	return out
}

// Range returns the points with min <= ts <= max.
func (s *TimeSeries) Range(min, max int64) []Point {
	low, high := s.bisectLeft(min), s.bisectRight(max)
	out := make([]Point, 0, high-low)
	for i := low; i < high; i++ {
		out = append(out, s.At(i))
	}
	return out
}

// Hourly groups the points into runs bounded by the UTC hour of each run's
// first point.
func (s *TimeSeries) Hourly() [][]Point {
	return s.buckets(HourlyLeft, HourlyRight)
}

// Daily groups the points into runs bounded by the UTC day of each run's
// first point.
func (s *TimeSeries) Daily() [][]Point {
	return s.buckets(DailyLeft, DailyRight)
}

func (s *TimeSeries) buckets(left, right func(int64) int64) [][]Point {
	var out [][]Point
	for i := 0; i < s.Len(); {
		hi := right(left(s.ts[i]))
		j := i
		for j < s.Len() && s.ts[j] <= hi {
			j++
		}
		run := make([]Point, 0, j-i)
		for k := i; k < j; k++ {
			run = append(run, s.At(k))
		}
		out = append(out, run)
		i = j
	}
	return out
}

// DailyBuckets encodes the points day by day for the storage write path.
func (s *TimeSeries) DailyBuckets() ([]StorageBucket, error) {
	var out []StorageBucket
	for i := 0; i < s.Len(); {
		day := DailyLeft(s.ts[i])
		hi := DailyRight(s.ts[i])
		j := i
		for j < s.Len() && s.ts[j] <= hi {
			j++
		}
		items := make([]StorageItem, 0, j-i)
		for k := i; k < j; k++ {
			cell, err := EncodeCell(s.values[k], s.offsets[k])
			if err != nil {
				return nil, err
			}
			items = append(items, StorageItem{TS: s.ts[k], Cell: cell})
		}
		out = append(out, StorageBucket{Day: day, Items: items})
		i = j
	}
	return out, nil
}

// Group selects the bucketing used by Aggregate.
type Group string

const (
	GroupHourly Group = "hourly"
	GroupDaily  Group = "daily"
)

// Aggregator selects the reduction applied per bucket by Aggregate.
type Aggregator string

const (
	AggSum   Aggregator = "sum"
	AggCount Aggregator = "count"
	AggMin   Aggregator = "min"
	AggMax   Aggregator = "max"
	AggAmp   Aggregator = "amp"
	AggMean  Aggregator = "mean"
)

// Aggregate reduces each hourly or daily bucket to one point whose timestamp
// is the bucket's left boundary and whose offset is taken from the bucket's
// first point. Only defined for float series.
func (s *TimeSeries) Aggregate(group Group, fn Aggregator) ([]Point, error) {
	if s.typ != TypeFloat {
		return nil, fmt.Errorf("cannot aggregate %s series: %w", s.typ, ErrArgument)
	}
	var left, right func(int64) int64
	switch group {
	case GroupHourly:
		left, right = HourlyLeft, HourlyRight
	case GroupDaily:
		left, right = DailyLeft, DailyRight
	default:
		return nil, fmt.Errorf("unknown aggregation group %q: %w", group, ErrArgument)
	}
	reduce, err := reducer(fn)
	if err != nil {
		return nil, err
	}
	var out []Point
	for i := 0; i < s.Len(); {
		lo := left(s.ts[i])
		hi := right(lo)
		j := i
		vals := make([]float64, 0, 8)
		for j < s.Len() && s.ts[j] <= hi {
			vals = append(vals, float64(s.values[j].(Float)))
			j++
		}
		out = append(out, Point{TS: lo, Offset: s.offsets[i], Value: Float(reduce(vals))})
		i = j
	}
	return out, nil
}

func reducer(fn Aggregator) (func([]float64) float64, error) {
	switch fn {
	case AggSum:
		return sum, nil
	case AggCount:
		return func(v []float64) float64 { return float64(len(v)) }, nil
	case AggMin:
		return func(v []float64) float64 { return slices.Min(v) }, nil
	case AggMax:
		return func(v []float64) float64 { return slices.Max(v) }, nil
	case AggAmp:
		return func(v []float64) float64 { return slices.Max(v) - slices.Min(v) }, nil
	case AggMean:
		return func(v []float64) float64 { return sum(v) / float64(len(v)) }, nil
	default:
		return nil, fmt.Errorf("unknown aggregation function %q: %w", fn, ErrArgument)
	}
}

func sum(v []float64) float64 {
	total := 0.0
	for _, x := range v {
		total += x
	}
	return total
}

// Hash identifies a series by key, metric, length and timestamp bounds.
// Point values do not contribute.
func (s *TimeSeries) Hash() string {
	sum := sha1.Sum(fmt.Appendf(nil, "%s.%s.%d.%d.%d", s.key, s.metric, s.Len(), s.TSMin(), s.TSMax()))
	return hex.EncodeToString(sum[:])
}

// Equal reports whether both series have the same hash identity.
func (s *TimeSeries) Equal(other *TimeSeries) bool {
	return other != nil && s.Hash() == other.Hash()
}

// Validate re-checks the container invariants: parallel slices of equal
// length and strictly ascending timestamps.
func (s *TimeSeries) Validate() error {
	if len(s.ts) != len(s.offsets) || len(s.ts) != len(s.values) {
		return fmt.Errorf("parallel slice lengths diverge (%d/%d/%d): %w", len(s.ts), len(s.offsets), len(s.values), ErrInvariant)
	}
	for i := 1; i < len(s.ts); i++ {
		if s.ts[i] <= s.ts[i-1] {
			return fmt.Errorf("timestamp %d at index %d not above %d: %w", s.ts[i], i, s.ts[i-1], ErrInvariant)
		}
	}
	return nil
}
