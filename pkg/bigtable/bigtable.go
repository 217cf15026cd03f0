package bigtable

import "context"

// Backend hands out pooled data clients and a shared admin client for one
// Bigtable instance. Closing the backend closes everything it handed out.
type Backend interface {
	Client(ctx context.Context) (Client, error)
	Admin(ctx context.Context) (AdminClient, error)
	Close() error
}

// Client reads and mutates rows. Clients are shared pool members and stay
// usable until the backend is closed.
type Client interface {
	Table(name string) Table
}

// AdminClient manages tables and column families.
type AdminClient interface {
	Tables(ctx context.Context) ([]string, error)
	Families(ctx context.Context, table string) ([]string, error)
	CreateTable(ctx context.Context, table string) error
	CreateFamily(ctx context.Context, table, family string) error
}

// Table is the narrow slice of the Bigtable data API the stores need. Reads
// return only the newest cell per column and can be restricted to a set of
// column families.
type Table interface {
	ReadRow(ctx context.Context, key string, families []string) (Row, bool, error)
	ReadRows(ctx context.Context, keys []string, families []string) ([]Row, error)
	Scan(ctx context.Context, startKey string, limit int64, families []string, fn func(Row) bool) error
	Upsert(ctx context.Context, upserts []RowUpsert) error
	DeleteFamilies(ctx context.Context, keys []string, families []string) error
	Increment(ctx context.Context, key, column string, delta int64) (int64, error)
}

// Row is a flattened row: its key plus the newest cell of every column.
type Row struct {
	Key   string
	Cells []Cell
}

// Cell is one column's newest value.
type Cell struct {
	Family    string
	Qualifier string
	Value     []byte
}

// RowUpsert sets columns on one row. Cell keys are "family:qualifier".
type RowUpsert struct {
	Key   string
	Cells map[string][]byte
}
