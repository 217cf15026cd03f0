package bigtabletesting

import (
	"fmt"
	"log/slog"
	"os"
	"testing"

	"cloud.google.com/go/bigtable/bttest"

	"github.com/grazelabs/corral/pkg/bigtable"
)

// DB is an in-process Bigtable emulator shared by the tests of a package.
type DB struct {
	log *slog.Logger
	srv *bttest.Server
}

// NewDB starts the emulator on a random local port and points
// BIGTABLE_EMULATOR_HOST at it, which the driver picks up automatically.
func NewDB(log *slog.Logger) (*DB, error) {
	srv, err := bttest.NewServer("localhost:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start bigtable emulator: %w", err)
	}
	if err := os.Setenv("BIGTABLE_EMULATOR_HOST", srv.Addr); err != nil {
		srv.Close()
		return nil, fmt.Errorf("failed to set emulator address: %w", err)
	}
	log.Info("bigtable emulator listening", "address", srv.Addr)
	return &DB{log: log, srv: srv}, nil
}

// Addr returns the emulator's listen address.
func (db *DB) Addr() string {
	return db.srv.Addr
}

func (db *DB) Close() {
	db.srv.Close()
	os.Unsetenv("BIGTABLE_EMULATOR_HOST")
}

// NewBackend creates a backend connected to the emulator and tears it down
// with the test.
func (db *DB) NewBackend(t *testing.T) (bigtable.Backend, error) {
	backend, err := bigtable.NewBackend(t.Context(), db.log, "test-project", "test-instance", "", 2)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigtable backend: %w", err)
	}
	t.Cleanup(func() {
		if err := backend.Close(); err != nil {
			db.log.Error("failed to close bigtable backend", "error", err)
		}
	})
	return backend, nil
}
