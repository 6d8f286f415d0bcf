// Command export writes stored training records to a JSONL or CSV artifact
// and prints dataset statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/export"
	"market-snapshot-lab/internal/storage"
	chstore "market-snapshot-lab/internal/storage/clickhouse"
	"market-snapshot-lab/internal/storage/migrations"
	pgstore "market-snapshot-lab/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	formatStr := flag.String("format", "jsonl", "Export format (jsonl or csv)")
	outputDir := flag.String("output-dir", envOr("EXPORT_DIR", "exports"), "Directory for export artifacts")
	snapshotID := flag.String("snapshot-id", "", "Restrict to records from one snapshot")
	categoriesStr := flag.String("categories", "", "Comma-separated conversation categories; empty means all")
	minQuality := flag.Float64("min-quality", 0, "Minimum quality score; 0 disables the filter")
	validatedOnly := flag.Bool("validated-only", false, "Export only human-validated records")
	limit := flag.Int("limit", 0, "Maximum records to export; 0 means the query cap")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for analytical record storage (optional)")
	flag.Parse()

	format, err := export.ParseFormat(*formatStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *postgresDSN == "" && *clickhouseDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn or --clickhouse-dsn is required")
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

	records, cleanup, err := createRecordStore(ctx, *postgresDSN, *clickhouseDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to record store: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	exporter, err := export.NewExporter(records, *outputDir, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating exporter: %v\n", err)
		os.Exit(1)
	}

	filter := storage.TrainingRecordFilter{
		SnapshotID:    *snapshotID,
		Categories:    categories,
		OnlyValidated: *validatedOnly,
		Limit:         *limit,
	}
	if *minQuality > 0 {
		filter.MinQualityScore = minQuality
	}

	path, count, err := exporter.Export(ctx, filter, format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error exporting records: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Exported %d records to %s\n", count, path)

	stats, err := exporter.Statistics(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing statistics: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Dataset statistics:")
	fmt.Printf("  total records:     %d\n", stats.TotalRecords)
	for category, n := range stats.PerCategory {
		fmt.Printf("    %-24s %d\n", category, n)
	}
	fmt.Printf("  quality mean:      %.3f\n", stats.MeanQuality)
	fmt.Printf("  quality stddev:    %.3f\n", stats.StddevQuality)
	fmt.Printf("  quality min/max:   %.3f / %.3f\n", stats.MinQuality, stats.MaxQuality)
	fmt.Printf("  validated:         %d (%.1f%%)\n", stats.ValidatedCount, stats.ValidatedFraction*100)
}

// createRecordStore prefers ClickHouse when its DSN is set; training-record
// reads are analytical and that is where generation wrote them.
func createRecordStore(ctx context.Context, postgresDSN, clickhouseDSN string) (storage.TrainingRecordStore, func(), error) {
	if clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, clickhouseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("apply clickhouse migrations: %w", err)
		}
		return chstore.NewTrainingRecordStore(conn), func() { conn.Close() }, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply postgres migrations: %w", err)
	}
	return pgstore.NewTrainingRecordStore(pool), pool.Close, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
