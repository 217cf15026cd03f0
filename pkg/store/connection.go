package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/grazelabs/corral/pkg/bigtable"
	"github.com/grazelabs/corral/pkg/series"
)

const (
	DefaultTablePrefix = "mycdb"

	defaultPoolSize = 8

	tableTimeSeries = "timeseries"
	tableEvents     = "events"
	tableActivity   = "activity"
	tableMetadata   = "metadata"

	familyEvents           = "e"
	familyActivity         = "c"
	familyMetadataPublic   = "p"
	familyMetadataInternal = "i"
)

// MetricDefinition declares a stored metric: its public name, the short
// column family id its cells live under, the value variant, and whether
// day deletes are allowed.
type MetricDefinition struct {
	Name           string
	ID             string
	Type           series.Type
	DeletePossible bool
}

func (md *MetricDefinition) Validate() error {
	md.Name = strings.ToLower(md.Name)
	md.ID = strings.ToLower(md.ID)
	if len(md.Name) < 2 {
		return fmt.Errorf("metric name %q too short: %w", md.Name, ErrArgument)
	}
	if md.ID == "" {
		return fmt.Errorf("metric %q needs a column family id: %w", md.Name, ErrArgument)
	}
	if md.Type != series.TypeFloat && md.Type != series.TypeDict {
		return fmt.Errorf("metric %q has no value type: %w", md.Name, ErrArgument)
	}
	return nil
}

// EventDefinition declares a known event stream name. The registry is
// informational, event writes do not require registration.
type EventDefinition struct {
	Name string
}

// Config configures a Connection.
type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	ProjectID       string
	InstanceID      string
	CredentialsFile string

	// ReadOnly refuses every mutating operation, including admin ones.
	ReadOnly bool
	// Staging forces ReadOnly.
	Staging bool

	PoolSize    int
	TablePrefix string

	Metrics []MetricDefinition
	Events  []EventDefinition
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ProjectID == "" {
		return errors.New("project id is required")
	}
	if cfg.InstanceID == "" {
		return errors.New("instance id is required")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.TablePrefix == "" {
		cfg.TablePrefix = DefaultTablePrefix
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Staging {
		cfg.ReadOnly = true
	}
	for i := range cfg.Metrics {
		if err := cfg.Metrics[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Connection wires the four stores to one Bigtable instance and holds the
// metric and event registries. It is safe for concurrent use.
type Connection struct {
	log   *slog.Logger
	cfg   Config
	clock clockwork.Clock

	backend bigtable.Backend

	metrics map[string]MetricDefinition
	events  map[string]EventDefinition

	TimeSeries *TimeSeriesStore
	Events     *EventStore
	Activity   *ActivityStore
	Metadata   *MetadataStore
}

// New connects to Bigtable and builds the store registry.
func New(ctx context.Context, cfg Config) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	backend, err := bigtable.NewBackend(ctx, cfg.Logger, cfg.ProjectID, cfg.InstanceID, cfg.CredentialsFile, cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigtable backend: %w", err)
	}

	conn := &Connection{
		log:     cfg.Logger,
		cfg:     cfg,
		clock:   cfg.Clock,
		backend: backend,
		metrics: make(map[string]MetricDefinition, len(cfg.Metrics)),
		events:  make(map[string]EventDefinition, len(cfg.Events)),
	}
	for _, md := range cfg.Metrics {
		conn.metrics[md.Name] = md
	}
	for _, ed := range cfg.Events {
		conn.events[strings.ToLower(ed.Name)] = ed
	}

	conn.TimeSeries = newTimeSeriesStore(conn)
	conn.Events = newEventStore(conn)
	conn.Activity = newActivityStore(conn)
	conn.Metadata = newMetadataStore(conn)

	cfg.Logger.Info("store connection initialized",
		"project", cfg.ProjectID, "instance", cfg.InstanceID,
		"table_prefix", cfg.TablePrefix, "read_only", cfg.ReadOnly, "metrics", len(cfg.Metrics))

	return conn, nil
}

func (c *Connection) Close() error {
	return c.backend.Close()
}

// Clone opens a second connection with the same configuration and a fresh
// client pool. The caller owns closing it.
func (c *Connection) Clone(ctx context.Context) (*Connection, error) {
	return New(ctx, c.cfg)
}

// ReadOnly reports whether mutations are refused.
func (c *Connection) ReadOnly() bool {
	return c.cfg.ReadOnly
}

// PoolSize returns the configured backend client pool size.
func (c *Connection) PoolSize() int {
	return c.cfg.PoolSize
}

func (c *Connection) guardWrite() error {
	if c.cfg.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// TableName prefixes a base table name with the configured prefix.
func (c *Connection) TableName(base string) string {
	return fmt.Sprintf("%s_%s", c.cfg.TablePrefix, base)
}

// Metric returns the definition registered under name.
func (c *Connection) Metric(name string) (MetricDefinition, error) {
	md, ok := c.metrics[strings.ToLower(name)]
	if !ok {
		return MetricDefinition{}, fmt.Errorf("metric %q: %w", name, ErrUnknownMetric)
	}
	return md, nil
}

// Metrics returns all registered metric definitions sorted by name.
func (c *Connection) Metrics() []MetricDefinition {
	out := make([]MetricDefinition, 0, len(c.metrics))
	for _, md := range c.metrics {
		out = append(out, md)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EventNames returns all registered event stream names sorted.
func (c *Connection) EventNames() []string {
	out := make([]string, 0, len(c.events))
	for name := range c.events {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// table opens a prefixed table through a pooled client.
func (c *Connection) table(ctx context.Context, base string) (bigtable.Table, error) {
	client, err := c.backend.Client(ctx)
	if err != nil {
		return nil, backendErr("get client", err)
	}
	return client.Table(c.TableName(base)), nil
}

// staticTables lists each store table with the column families that exist
// regardless of the metric registry.
func staticTables() []struct {
	base     string
	families []string
} {
	return []struct {
		base     string
		families []string
	}{
		{tableTimeSeries, nil},
		{tableEvents, []string{familyEvents}},
		{tableActivity, []string{familyActivity}},
		{tableMetadata, []string{familyMetadataPublic, familyMetadataInternal}},
	}
}

// CreateTables creates every store table and its static column families,
// skipping anything that already exists.
func (c *Connection) CreateTables(ctx context.Context) error {
	if err := c.guardWrite(); err != nil {
		return err
	}
	admin, err := c.backend.Admin(ctx)
	if err != nil {
		return backendErr("get admin client", err)
	}
	existing, err := admin.Tables(ctx)
	if err != nil {
		return backendErr("list tables", err)
	}
	present := make(map[string]bool, len(existing))
	for _, t := range existing {
		present[t] = true
	}

	for _, tbl := range staticTables() {
		name := c.TableName(tbl.base)
		if !present[name] {
			c.log.Info("store: creating table", "table", name)
			if err := admin.CreateTable(ctx, name); err != nil {
				return backendErr("create table", err)
			}
		}
		if len(tbl.families) == 0 {
			continue
		}
		families, err := admin.Families(ctx, name)
		if err != nil {
			return backendErr("list column families", err)
		}
		have := make(map[string]bool, len(families))
		for _, f := range families {
			have[f] = true
		}
		for _, f := range tbl.families {
			if have[f] {
				continue
			}
			c.log.Info("store: creating column family", "table", name, "family", f)
			if err := admin.CreateFamily(ctx, name, f); err != nil {
				return backendErr("create column family", err)
			}
		}
	}
	return nil
}

// CreateMetric adds the column family for one registered metric to the
// timeseries table. The metric resolves by name or by column family id.
func (c *Connection) CreateMetric(ctx context.Context, name string) error {
	md, err := c.Metric(name)
	if err != nil {
		id := strings.ToLower(name)
		for _, def := range c.metrics {
			if def.ID == id {
				md, err = def, nil
				break
			}
		}
	}
	if err != nil {
		return err
	}
	return c.createMetricFamilies(ctx, []MetricDefinition{md})
}

// CreateAllMetrics adds the column families of every registered metric.
func (c *Connection) CreateAllMetrics(ctx context.Context) error {
	return c.createMetricFamilies(ctx, c.Metrics())
}

func (c *Connection) createMetricFamilies(ctx context.Context, defs []MetricDefinition) error {
	if err := c.guardWrite(); err != nil {
		return err
	}
	admin, err := c.backend.Admin(ctx)
	if err != nil {
		return backendErr("get admin client", err)
	}
	name := c.TableName(tableTimeSeries)
	families, err := admin.Families(ctx, name)
	if err != nil {
		return backendErr("list column families", err)
	}
	have := make(map[string]bool, len(families))
	for _, f := range families {
		have[f] = true
	}
	for _, md := range defs {
		if have[md.ID] {
			continue
		}
		c.log.Info("store: creating metric column family", "metric", md.Name, "family", md.ID)
		if err := admin.CreateFamily(ctx, name, md.ID); err != nil {
			return backendErr("create metric column family", err)
		}
		have[md.ID] = true
	}
	return nil
}

// TableStatus describes one table and its column families.
type TableStatus struct {
	Name     string
	Families []string
}

// DatabaseInfo lists the prefixed store tables that exist along with their
// column families.
func (c *Connection) DatabaseInfo(ctx context.Context) ([]TableStatus, error) {
	if err := c.guardWrite(); err != nil {
		return nil, err
	}
	admin, err := c.backend.Admin(ctx)
	if err != nil {
		return nil, backendErr("get admin client", err)
	}
	existing, err := admin.Tables(ctx)
	if err != nil {
		return nil, backendErr("list tables", err)
	}
	present := make(map[string]bool, len(existing))
	for _, t := range existing {
		present[t] = true
	}

	var out []TableStatus
	for _, tbl := range staticTables() {
		name := c.TableName(tbl.base)
		if !present[name] {
			continue
		}
		families, err := admin.Families(ctx, name)
		if err != nil {
			return nil, backendErr("list column families", err)
		}
		sort.Strings(families)
		out = append(out, TableStatus{Name: name, Families: families})
	}
	return out, nil
}

// WriteCell writes one raw cell. Intended for debugging.
func (c *Connection) WriteCell(ctx context.Context, base, rowKey, column string, value []byte) error {
	if err := c.guardWrite(); err != nil {
		return err
	}
	tbl, err := c.table(ctx, base)
	if err != nil {
		return err
	}
	err = tbl.Upsert(ctx, []bigtable.RowUpsert{{Key: rowKey, Cells: map[string][]byte{column: value}}})
	if err != nil {
		return backendErr("write cell", err)
	}
	return nil
}

// ReadRow fetches one raw row by key. Intended for debugging.
func (c *Connection) ReadRow(ctx context.Context, base, rowKey string) (bigtable.Row, error) {
	tbl, err := c.table(ctx, base)
	if err != nil {
		return bigtable.Row{}, err
	}
	row, ok, err := tbl.ReadRow(ctx, rowKey, nil)
	if err != nil {
		return bigtable.Row{}, backendErr("read row", err)
	}
	if !ok {
		return bigtable.Row{}, fmt.Errorf("row %q: %w", rowKey, ErrNotFound)
	}
	return row, nil
}
