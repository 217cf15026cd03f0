package bigtable

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"sync"

	"cloud.google.com/go/bigtable"
	"google.golang.org/api/option"
)

type backend struct {
	log             *slog.Logger
	projectID       string
	instanceID      string
	credentialsFile string
	poolSize        int

	mu    sync.Mutex
	pool  []*bigtable.Client
	admin *bigtable.AdminClient
}

// NewBackend creates a Backend for one Bigtable instance. Data clients are
// opened lazily up to poolSize and handed out at random. When
// BIGTABLE_EMULATOR_HOST is set the driver connects to the emulator without
// credentials.
func NewBackend(ctx context.Context, log *slog.Logger, projectID, instanceID, credentialsFile string, poolSize int) (Backend, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	if instanceID == "" {
		return nil, fmt.Errorf("instance id is required")
	}
	if poolSize < 1 {
		poolSize = 1
	}

	b := &backend{
		log:             log,
		projectID:       projectID,
		instanceID:      instanceID,
		credentialsFile: credentialsFile,
		poolSize:        poolSize,
	}

	// Open the first client eagerly so misconfiguration surfaces here.
	if _, err := b.Client(ctx); err != nil {
		return nil, err
	}

	log.Info("bigtable backend initialized", "project", projectID, "instance", instanceID, "pool_size", poolSize)

	return b, nil
}

func (b *backend) options() []option.ClientOption {
	if b.credentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(b.credentialsFile)}
}

func (b *backend) Client(ctx context.Context) (Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pool) < b.poolSize {
		c, err := bigtable.NewClient(ctx, b.projectID, b.instanceID, b.options()...)
		if err != nil {
			return nil, fmt.Errorf("failed to create bigtable client: %w", err)
		}
		b.pool = append(b.pool, c)
		return &client{c: c}, nil
	}
	return &client{c: b.pool[rand.Intn(len(b.pool))]}, nil
}

func (b *backend) Admin(ctx context.Context) (AdminClient, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.admin == nil {
		ac, err := bigtable.NewAdminClient(ctx, b.projectID, b.instanceID, b.options()...)
		if err != nil {
			return nil, fmt.Errorf("failed to create bigtable admin client: %w", err)
		}
		b.admin = ac
	}
	return &admin{ac: b.admin}, nil
}

func (b *backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, c := range b.pool {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.pool = nil
	if b.admin != nil {
		if err := b.admin.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		b.admin = nil
	}
	return firstErr
}

type client struct {
	c *bigtable.Client
}

func (c *client) Table(name string) Table {
	return &table{t: c.c.Open(name)}
}

type table struct {
	t *bigtable.Table
}

// familiesFilter restricts reads to the given column families and pins every
// column to its newest cell.
func familiesFilter(families []string) bigtable.Filter {
	latest := bigtable.LatestNFilter(1)
	if len(families) == 0 {
		return latest
	}
	fl := make([]bigtable.Filter, 0, len(families))
	for _, f := range families {
		fl = append(fl, bigtable.FamilyFilter("^"+regexp.QuoteMeta(f)+"$"))
	}
	if len(fl) == 1 {
		return bigtable.ChainFilters(fl[0], latest)
	}
	return bigtable.ChainFilters(bigtable.InterleaveFilters(fl...), latest)
}

func fromDriverRow(r bigtable.Row) Row {
	out := Row{Key: r.Key()}
	for _, items := range r {
		for _, item := range items {
			family, qualifier, _ := strings.Cut(item.Column, ":")
			out.Cells = append(out.Cells, Cell{Family: family, Qualifier: qualifier, Value: item.Value})
		}
	}
	return out
}

func (t *table) ReadRow(ctx context.Context, key string, families []string) (Row, bool, error) {
	r, err := t.t.ReadRow(ctx, key, bigtable.RowFilter(familiesFilter(families)))
	if err != nil {
		return Row{}, false, fmt.Errorf("failed to read row: %w", err)
	}
	if len(r) == 0 {
		return Row{}, false, nil
	}
	return fromDriverRow(r), true, nil
}

func (t *table) ReadRows(ctx context.Context, keys []string, families []string) ([]Row, error) {
	// An empty row list would scan the whole table.
	if len(keys) == 0 {
		return nil, nil
	}
	var out []Row
	err := t.t.ReadRows(ctx, bigtable.RowList(keys), func(r bigtable.Row) bool {
		out = append(out, fromDriverRow(r))
		return true
	}, bigtable.RowFilter(familiesFilter(families)))
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return out, nil
}

func (t *table) Scan(ctx context.Context, startKey string, limit int64, families []string, fn func(Row) bool) error {
	opts := []bigtable.ReadOption{bigtable.RowFilter(familiesFilter(families))}
	if limit > 0 {
		opts = append(opts, bigtable.LimitRows(limit))
	}
	err := t.t.ReadRows(ctx, bigtable.InfiniteRange(startKey), func(r bigtable.Row) bool {
		return fn(fromDriverRow(r))
	}, opts...)
	if err != nil {
		return fmt.Errorf("failed to scan rows: %w", err)
	}
	return nil
}

func (t *table) Upsert(ctx context.Context, upserts []RowUpsert) error {
	if len(upserts) == 0 {
		return nil
	}
	keys := make([]string, 0, len(upserts))
	muts := make([]*bigtable.Mutation, 0, len(upserts))
	for _, up := range upserts {
		mut := bigtable.NewMutation()
		for column, value := range up.Cells {
			family, qualifier, ok := strings.Cut(column, ":")
			if !ok {
				return fmt.Errorf("column %q must be family:qualifier", column)
			}
			mut.Set(family, qualifier, bigtable.ServerTime, value)
		}
		keys = append(keys, up.Key)
		muts = append(muts, mut)
	}
	return t.applyBulk(ctx, keys, muts)
}

func (t *table) DeleteFamilies(ctx context.Context, keys []string, families []string) error {
	if len(keys) == 0 {
		return nil
	}
	muts := make([]*bigtable.Mutation, 0, len(keys))
	for range keys {
		mut := bigtable.NewMutation()
		for _, f := range families {
			mut.DeleteCellsInFamily(f)
		}
		muts = append(muts, mut)
	}
	return t.applyBulk(ctx, keys, muts)
}

func (t *table) applyBulk(ctx context.Context, keys []string, muts []*bigtable.Mutation) error {
	errs, err := t.t.ApplyBulk(ctx, keys, muts)
	if err != nil {
		return fmt.Errorf("failed to apply bulk mutation: %w", err)
	}
	for i, e := range errs {
		if e != nil {
			return fmt.Errorf("failed to apply mutation for row %q: %w", keys[i], e)
		}
	}
	return nil
}

func (t *table) Increment(ctx context.Context, key, column string, delta int64) (int64, error) {
	family, qualifier, ok := strings.Cut(column, ":")
	if !ok {
		return 0, fmt.Errorf("column %q must be family:qualifier", column)
	}
	rmw := bigtable.NewReadModifyWrite()
	rmw.Increment(family, qualifier, delta)
	r, err := t.t.ApplyReadModifyWrite(ctx, key, rmw)
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s on row %q: %w", column, key, err)
	}
	for _, items := range r {
		for _, item := range items {
			if item.Column == column && len(item.Value) == 8 {
				return int64(binary.BigEndian.Uint64(item.Value)), nil
			}
		}
	}
	return 0, fmt.Errorf("increment result missing column %q", column)
}
