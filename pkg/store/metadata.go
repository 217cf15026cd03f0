package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/grazelabs/corral/pkg/bigtable"
	"github.com/grazelabs/corral/pkg/metrics"
	"github.com/grazelabs/corral/pkg/series"
)

// MetaDataItem is one namespaced dict attached to an object. Internal
// items live in a separate column family and are only returned when a
// reader asks for them.
type MetaDataItem struct {
	ObjectName string
	ObjectKey  string
	Namespace  string
	Data       series.Dict
	Internal   bool
}

// Validate normalizes the item in place and checks its fields.
func (m *MetaDataItem) Validate() error {
	m.ObjectName = strings.ToLower(m.ObjectName)
	m.ObjectKey = strings.ToLower(m.ObjectKey)
	m.Namespace = strings.ToLower(m.Namespace)
	if len(m.ObjectName) < 2 || len(m.ObjectKey) < 2 || len(m.Namespace) < 2 {
		return fmt.Errorf("metadata item needs object name, key and namespace of at least 2 chars: %w", ErrArgument)
	}
	if m.Data == nil {
		return fmt.Errorf("metadata item needs data: %w", ErrArgument)
	}
	return nil
}

// MetadataStore attaches namespaced dicts to arbitrary objects. One row
// per (object name, object key) in the metadata table, one column per
// namespace, msgpack-encoded values. Public and internal namespaces live
// in separate column families.
type MetadataStore struct {
	log  *slog.Logger
	conn *Connection
}

func newMetadataStore(conn *Connection) *MetadataStore {
	return &MetadataStore{log: conn.log, conn: conn}
}

// PutItems writes all given items. With internal set the items go to the
// internal column family and stay hidden from public reads.
func (s *MetadataStore) PutItems(ctx context.Context, items []MetaDataItem, internal bool) (int, error) {
	if err := s.conn.guardWrite(); err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}
	family := familyMetadataPublic
	if internal {
		family = familyMetadataInternal
	}

	start := time.Now()
	byRow := make(map[string]map[string][]byte)
	var order []string
	for i := range items {
		item := &items[i]
		if err := item.Validate(); err != nil {
			return 0, err
		}
		payload, err := msgpack.Marshal(map[string]any(item.Data))
		if err != nil {
			return 0, fmt.Errorf("failed to encode metadata %s: %w", item.Namespace, err)
		}
		rowKey := metadataRowKey(item.ObjectName, item.ObjectKey)
		cells, ok := byRow[rowKey]
		if !ok {
			cells = make(map[string][]byte)
			byRow[rowKey] = cells
			order = append(order, rowKey)
		}
		cells[fmt.Sprintf("%s:%s", family, item.Namespace)] = payload
	}
	upserts := make([]bigtable.RowUpsert, 0, len(order))
	for _, rowKey := range order {
		upserts = append(upserts, bigtable.RowUpsert{Key: rowKey, Cells: byRow[rowKey]})
	}

	tbl, err := s.conn.table(ctx, tableMetadata)
	if err != nil {
		return 0, err
	}
	if err := tbl.Upsert(ctx, upserts); err != nil {
		metrics.StoreOpTotal.WithLabelValues("metadata", "put", "error").Inc()
		return 0, backendErr("put metadata", err)
	}

	metrics.StoreOpDuration.WithLabelValues("metadata", "put").Observe(time.Since(start).Seconds())
	metrics.StoreOpTotal.WithLabelValues("metadata", "put", "success").Inc()
	s.log.Debug("metadata: put completed", "items", len(items))
	return len(items), nil
}

// Put writes a single metadata item.
func (s *MetadataStore) Put(ctx context.Context, objectName, objectKey, namespace string, data series.Dict, internal bool) (int, error) {
	item := MetaDataItem{ObjectName: objectName, ObjectKey: objectKey, Namespace: namespace, Data: data}
	return s.PutItems(ctx, []MetaDataItem{item}, internal)
}

// Get reads the metadata of (objectName, objectKey), ordered by namespace.
// A non-empty namespaces list restricts the result to those namespaces.
// Internal items are only included when internal is set. Returns
// ErrNotFound when the object has no metadata at all.
func (s *MetadataStore) Get(ctx context.Context, objectName, objectKey string, namespaces []string, internal bool) ([]MetaDataItem, error) {
	name := strings.ToLower(objectName)
	key := strings.ToLower(objectKey)
	if len(name) < 2 || len(key) < 2 {
		return nil, fmt.Errorf("object name and key need at least 2 chars: %w", ErrArgument)
	}
	families := []string{familyMetadataPublic}
	if internal {
		families = append(families, familyMetadataInternal)
	}
	wanted := make(map[string]bool, len(namespaces))
	for _, ns := range namespaces {
		wanted[strings.ToLower(ns)] = true
	}

	start := time.Now()
	tbl, err := s.conn.table(ctx, tableMetadata)
	if err != nil {
		return nil, err
	}
	row, ok, err := tbl.ReadRow(ctx, metadataRowKey(name, key), families)
	if err != nil {
		metrics.StoreOpTotal.WithLabelValues("metadata", "get", "error").Inc()
		return nil, backendErr("get metadata", err)
	}
	if !ok {
		return nil, fmt.Errorf("no metadata for %s %s: %w", name, key, ErrNotFound)
	}

	out := make([]MetaDataItem, 0, len(row.Cells))
	for _, cell := range row.Cells {
		if len(wanted) > 0 && !wanted[cell.Qualifier] {
			continue
		}
		var data map[string]any
		if err := msgpack.Unmarshal(cell.Value, &data); err != nil {
			return nil, fmt.Errorf("failed to decode metadata %s: %w", cell.Qualifier, err)
		}
		out = append(out, MetaDataItem{
			ObjectName: name,
			ObjectKey:  key,
			Namespace:  cell.Qualifier,
			Data:       series.Dict(data),
			Internal:   cell.Family == familyMetadataInternal,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Namespace < out[j].Namespace })

	metrics.StoreOpDuration.WithLabelValues("metadata", "get").Observe(time.Since(start).Seconds())
	metrics.StoreOpTotal.WithLabelValues("metadata", "get", "success").Inc()
	s.log.Debug("metadata: get completed", "object", name, "key", key, "items", len(out))
	return out, nil
}
