// Command generate synthesizes training records from a stored snapshot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"market-snapshot-lab/internal/classify"
	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/snapshots"
	"market-snapshot-lab/internal/storage"
	chstore "market-snapshot-lab/internal/storage/clickhouse"
	"market-snapshot-lab/internal/storage/fsblob"
	"market-snapshot-lab/internal/storage/migrations"
	pgstore "market-snapshot-lab/internal/storage/postgres"
	"market-snapshot-lab/internal/training"
)

func main() {
	_ = godotenv.Load()

	snapshotID := flag.String("snapshot-id", "", "Snapshot to generate records from")
	categoriesStr := flag.String("categories", "", "Comma-separated conversation categories; empty means all")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for analytical record storage (optional)")
	payloadDir := flag.String("payload-dir", envOr("PAYLOAD_DIR", "payloads"), "Directory for payload blobs")
	flag.Parse()

	if *snapshotID == "" {
		fmt.Fprintln(os.Stderr, "Error: --snapshot-id is required")
		os.Exit(1)
	}
	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn (or POSTGRES_DSN) is required")
		os.Exit(1)
	}

	var categories []domain.ConversationType
	if *categoriesStr != "" {
		for _, c := range strings.Split(*categoriesStr, ",") {
			parsed, err := domain.ParseConversationType(strings.TrimSpace(c))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			categories = append(categories, parsed)
		}
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "Error applying migrations: %v\n", err)
		os.Exit(1)
	}

	var records storage.TrainingRecordStore = pgstore.NewTrainingRecordStore(pool)
	if *clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to clickhouse: %v\n", err)
			os.Exit(1)
		}
		defer conn.Close()
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			fmt.Fprintf(os.Stderr, "Error applying clickhouse migrations: %v\n", err)
			os.Exit(1)
		}
		records = chstore.NewTrainingRecordStore(conn)
	}

	payloads, err := fsblob.New(*payloadDir, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating payload store: %v\n", err)
		os.Exit(1)
	}

	store := snapshots.New(pgstore.NewSnapshotIndex(pool), payloads, classify.New(nil, nil), zap.NewNop())
	generator := training.NewGenerator(store, records, zap.NewNop())

	ids, err := generator.Generate(ctx, *snapshotID, categories)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "Snapshot %s not found\n", *snapshotID)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error generating records: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d training records from snapshot %s\n", len(ids), *snapshotID)
	for _, id := range ids {
		fmt.Printf("  %s\n", id)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
