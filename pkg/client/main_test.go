package client_test

import (
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	bigtabletesting "github.com/grazelabs/corral/pkg/bigtable/testing"
	"github.com/grazelabs/corral/pkg/client"
	"github.com/grazelabs/corral/pkg/series"
	"github.com/grazelabs/corral/pkg/store"
	corraltesting "github.com/grazelabs/corral/pkg/testing"
)

var sharedDB *bigtabletesting.DB

func TestMain(m *testing.M) {
	log := corraltesting.NewLogger()
	var err error
	sharedDB, err = bigtabletesting.NewDB(log)
	if err != nil {
		log.Error("failed to start shared bigtable emulator", "error", err)
		os.Exit(1)
	}
	code := m.Run()
	sharedDB.Close()
	os.Exit(code)
}

// prefixSeq isolates every client in its own set of tables.
var prefixSeq atomic.Int64

func testConfig() store.Config {
	return store.Config{
		Logger:      corraltesting.NewLogger(),
		ProjectID:   "test-project",
		InstanceID:  "test-instance",
		PoolSize:    2,
		TablePrefix: fmt.Sprintf("cdb%d", prefixSeq.Add(1)),
		Metrics: []store.MetricDefinition{
			{Name: "temp", ID: "tmp", Type: series.TypeFloat, DeletePossible: true},
			{Name: "ph", ID: "ph", Type: series.TypeFloat, DeletePossible: true},
			{Name: "state", ID: "st", Type: series.TypeDict},
		},
		Events: []store.EventDefinition{{Name: "ph_alert"}},
	}
}

// newClient builds a writable client with a fresh table prefix and
// provisions all tables and metric families.
func newClient(t *testing.T) *client.Client {
	t.Helper()
	c, err := client.New(t.Context(), testConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Logf("failed to close client: %v", err)
		}
	})
	require.NoError(t, c.Connection().CreateTables(t.Context()))
	require.NoError(t, c.Connection().CreateAllMetrics(t.Context()))
	return c
}

// floatPoints builds n points, one every step seconds starting at start,
// all carrying the same value.
func floatPoints(start int64, n int, step int64, value series.Float) []series.Point {
	pts := make([]series.Point, 0, n)
	for i := 0; i < n; i++ {
		pts = append(pts, series.Point{TS: start + int64(i)*step, Value: value})
	}
	return pts
}
