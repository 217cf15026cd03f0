package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/grazelabs/corral/pkg/logger"
	"github.com/grazelabs/corral/pkg/metrics"
	"github.com/grazelabs/corral/pkg/series"
	"github.com/grazelabs/corral/pkg/store"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// Bigtable configuration
	projectFlag := flag.String("project", "", "GCP project id (or set GCP_PROJECT_ID env var)")
	instanceFlag := flag.String("instance", "", "Bigtable instance id (or set GCP_INSTANCE_ID env var)")
	credentialsFlag := flag.String("credentials", "", "path to a GCP service account json file (or set GCP_CREDENTIALS env var)")
	readOnlyFlag := flag.Bool("read-only", false, "refuse every mutating operation (or set READ_ONLY=true env var)")
	stagingFlag := flag.Bool("staging", false, "staging mode, forces read-only (or set STAGING=true env var)")
	poolSizeFlag := flag.Int("pool-size", 0, "bigtable client pool size (or set POOL_SIZE env var)")
	tablePrefixFlag := flag.String("table-prefix", store.DefaultTablePrefix, "table name prefix (or set TABLE_PREFIX env var)")
	metricsFlag := flag.StringArray("metric", nil, "metric definition name:id:type[:delete], repeatable (or set CDB_METRICS env var, comma separated)")

	// Commands
	initDBFlag := flag.Bool("init-db", false, "create the store tables and their static column families")
	initMetricsFlag := flag.Bool("init-metrics", false, "create the column families of every defined metric")
	newMetricFlag := flag.String("new-metric", "", "create the column family of one defined metric")
	dbInfoFlag := flag.Bool("db-info", false, "print the store tables and their column families")

	flag.Parse()

	// Load .env file. godotenv does not override existing env vars, so
	// process env and explicit exports take precedence.
	_ = godotenv.Load()

	// Override flags with environment variables if set
	if env := os.Getenv("GCP_PROJECT_ID"); env != "" {
		*projectFlag = env
	}
	if env := os.Getenv("GCP_INSTANCE_ID"); env != "" {
		*instanceFlag = env
	}
	if env := os.Getenv("GCP_CREDENTIALS"); env != "" {
		*credentialsFlag = env
	}
	if os.Getenv("READ_ONLY") == "true" {
		*readOnlyFlag = true
	}
	if os.Getenv("STAGING") == "true" {
		*stagingFlag = true
	}
	if env := os.Getenv("POOL_SIZE"); env != "" {
		n, err := strconv.Atoi(env)
		if err != nil {
			return fmt.Errorf("invalid POOL_SIZE %q: %w", env, err)
		}
		*poolSizeFlag = n
	}
	if env := os.Getenv("TABLE_PREFIX"); env != "" {
		*tablePrefixFlag = env
	}
	if env := os.Getenv("CDB_METRICS"); env != "" && len(*metricsFlag) == 0 {
		*metricsFlag = strings.Split(env, ",")
	}

	log := logger.New(*verboseFlag)
	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	if !*initDBFlag && !*initMetricsFlag && *newMetricFlag == "" && !*dbInfoFlag {
		flag.Usage()
		return nil
	}

	if *projectFlag == "" {
		return fmt.Errorf("--project is required")
	}
	if *instanceFlag == "" {
		return fmt.Errorf("--instance is required")
	}

	defs, err := parseMetricDefs(*metricsFlag)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigCh
		log.Info("admin: received signal", "signal", sig.String())
		cancel()
	}()

	conn, err := store.New(ctx, store.Config{
		Logger:          log,
		ProjectID:       *projectFlag,
		InstanceID:      *instanceFlag,
		CredentialsFile: *credentialsFlag,
		ReadOnly:        *readOnlyFlag,
		Staging:         *stagingFlag,
		PoolSize:        *poolSizeFlag,
		TablePrefix:     *tablePrefixFlag,
		Metrics:         defs,
	})
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Error("failed to close connection", "error", err)
		}
	}()

	// Commands are not exclusive, --init-db --init-metrics provisions a
	// fresh instance in one invocation.
	if *initDBFlag {
		if err := conn.CreateTables(ctx); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
		log.Info("admin: tables created", "prefix", *tablePrefixFlag)
	}

	if *initMetricsFlag {
		if err := conn.CreateAllMetrics(ctx); err != nil {
			return fmt.Errorf("failed to create metric column families: %w", err)
		}
		log.Info("admin: metric column families created", "metrics", len(defs))
	}

	if *newMetricFlag != "" {
		if err := conn.CreateMetric(ctx, *newMetricFlag); err != nil {
			return fmt.Errorf("failed to create metric %q: %w", *newMetricFlag, err)
		}
		log.Info("admin: metric column family created", "metric", *newMetricFlag)
	}

	if *dbInfoFlag {
		info, err := conn.DatabaseInfo(ctx)
		if err != nil {
			return fmt.Errorf("failed to read database info: %w", err)
		}
		for _, tbl := range info {
			fmt.Printf("%s: %s\n", tbl.Name, strings.Join(tbl.Families, " "))
		}
	}

	return nil
}

// parseMetricDefs parses repeated name:id:type[:delete] metric definitions.
func parseMetricDefs(raw []string) ([]store.MetricDefinition, error) {
	defs := make([]store.MetricDefinition, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("invalid metric definition %q, want name:id:type[:delete]", item)
		}
		md := store.MetricDefinition{Name: parts[0], ID: parts[1]}
		switch strings.ToLower(parts[2]) {
		case "float":
			md.Type = series.TypeFloat
		case "dict":
			md.Type = series.TypeDict
		default:
			return nil, fmt.Errorf("invalid metric type %q in %q, want float or dict", parts[2], item)
		}
		if len(parts) == 4 {
			if parts[3] != "delete" {
				return nil, fmt.Errorf("invalid metric option %q in %q, want delete", parts[3], item)
			}
			md.DeletePossible = true
		}
		defs = append(defs, md)
	}
	return defs, nil
}
