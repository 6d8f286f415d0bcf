// Command save ingests one analysis payload from a JSON file and stores it
// as a snapshot.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"market-snapshot-lab/internal/classify"
	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/snapshots"
	"market-snapshot-lab/internal/storage"
	"market-snapshot-lab/internal/storage/fsblob"
	"market-snapshot-lab/internal/storage/migrations"
	pgstore "market-snapshot-lab/internal/storage/postgres"
)

// defaultAnalysisType is the --analysis-type flag default; it must be a
// value ParseAnalysisType accepts.
const defaultAnalysisType = string(domain.AnalysisFull)

func main() {
	_ = godotenv.Load()

	payloadPath := flag.String("payload", "", "Path to the analysis payload JSON file")
	ticker := flag.String("ticker", "", "Instrument ticker symbol")
	timestampStr := flag.String("timestamp", "", "Analysis timestamp (RFC3339); defaults to now")
	analysisTypeStr := flag.String("analysis-type", defaultAnalysisType, "Analysis type (FULL, TREND, CANDLE, PATTERN, WYCKOFF)")
	tagsStr := flag.String("tags", "", "Comma-separated snapshot tags")
	notes := flag.String("notes", "", "Analyst notes")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	payloadDir := flag.String("payload-dir", envOr("PAYLOAD_DIR", "payloads"), "Directory for payload blobs")
	flag.Parse()

	if *payloadPath == "" || *ticker == "" {
		fmt.Fprintln(os.Stderr, "Error: --payload and --ticker are required")
		os.Exit(1)
	}
	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn (or POSTGRES_DSN) is required")
		os.Exit(1)
	}

	timestamp := time.Now().UTC()
	if *timestampStr != "" {
		t, err := time.Parse(time.RFC3339, *timestampStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --timestamp: %v\n", err)
			os.Exit(1)
		}
		timestamp = t
	}

	analysisType, err := domain.ParseAnalysisType(*analysisTypeStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(*payloadPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading payload file: %v\n", err)
		os.Exit(1)
	}
	var payload domain.RawPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing payload JSON: %v\n", err)
		os.Exit(1)
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

	payloads, err := fsblob.New(*payloadDir, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating payload store: %v\n", err)
		os.Exit(1)
	}

	store := snapshots.New(pgstore.NewSnapshotIndex(pool), payloads, classify.New(nil, nil), zap.NewNop())

	var tags []string
	if *tagsStr != "" {
		tags = strings.Split(*tagsStr, ",")
	}

	snap, err := store.Save(ctx, *ticker, timestamp, analysisType, payload, snapshots.SaveOptions{
		Tags:         tags,
		AnalystNotes: *notes,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			fmt.Fprintf(os.Stderr, "Snapshot already exists for %s at %s\n", *ticker, timestamp.Format(time.RFC3339))
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error saving snapshot: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Saved snapshot %s\n", snap.ID)
	fmt.Printf("  ticker:           %s\n", snap.Ticker)
	fmt.Printf("  market condition: %s\n", snap.MarketCondition)
	fmt.Printf("  session:          %s\n", snap.MarketSession)
	fmt.Printf("  quality score:    %.2f\n", snap.DataQualityScore)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
