package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/storage"
)

// SnapshotIndex implements storage.SnapshotIndex using PostgreSQL.
type SnapshotIndex struct {
	pool *Pool
}

// NewSnapshotIndex creates a new SnapshotIndex.
func NewSnapshotIndex(pool *Pool) *SnapshotIndex {
	return &SnapshotIndex{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotIndex = (*SnapshotIndex)(nil)

const snapshotColumns = `
	snapshot_id, ticker, ts, analysis_type, market_condition, timeframes,
	data_quality_score, confidence_level, market_session, volatility_regime,
	volume_profile, trend_direction, tags, analyst_notes, payload_location,
	created_at
`

// Insert adds a new snapshot row together with the raw metadata blob.
// Returns ErrDuplicateKey if snapshot_id exists.
func (s *SnapshotIndex) Insert(ctx context.Context, snap *domain.Snapshot, md *domain.Metadata) error {
	if snap == nil || snap.ID == "" {
		return storage.ErrInvalidInput
	}
	if !snap.AnalysisType.IsValid() || !snap.MarketCondition.IsValid() {
		return storage.ErrInvalidInput
	}

	metadataJSON := []byte("{}")
	if md != nil {
		var err error
		metadataJSON, err = json.Marshal(md)
		if err != nil {
			return fmt.Errorf("marshal snapshot metadata: %w", err)
		}
	}

	query := `
		INSERT INTO snapshots (
			snapshot_id, ticker, ts, analysis_type, market_condition, timeframes,
			data_quality_score, confidence_level, market_session, volatility_regime,
			volume_profile, trend_direction, tags, analyst_notes, payload_location,
			metadata_json, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17
		)
	`

	_, err := s.pool.Exec(ctx, query,
		snap.ID, snap.Ticker, snap.Timestamp, snap.AnalysisType, snap.MarketCondition, snap.Timeframes,
		snap.DataQualityScore, snap.ConfidenceLevel, snap.MarketSession, snap.VolatilityRegime,
		snap.VolumeProfile, snap.TrendDirection, snap.Tags, snap.AnalystNotes, snap.PayloadLocation,
		metadataJSON, snap.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetByID retrieves a snapshot by its id. Returns ErrNotFound if not exists.
func (s *SnapshotIndex) GetByID(ctx context.Context, id string) (*domain.Snapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM snapshots
		WHERE snapshot_id = $1
	`

	row := s.pool.QueryRow(ctx, query, id)
	snap, err := scanSnapshot(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot by id: %w", err)
	}
	return snap, nil
}

// Query retrieves snapshots matching the filter, newest first.
func (s *SnapshotIndex) Query(ctx context.Context, filter storage.SnapshotFilter) ([]*domain.Snapshot, error) {
	var (
		conditions []string
		args       []any
	)

	addCondition := func(expr string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(expr, len(args)))
	}

	if filter.Ticker != "" {
		addCondition("ticker = $%d", filter.Ticker)
	}
	if filter.Start != nil {
		addCondition("ts >= $%d", *filter.Start)
	}
	if filter.End != nil {
		addCondition("ts <= $%d", *filter.End)
	}
	if filter.MarketCondition != "" {
		addCondition("market_condition = $%d", filter.MarketCondition)
	}
	if filter.AnalysisType != "" {
		addCondition("analysis_type = $%d", filter.AnalysisType)
	}
	if filter.MinQualityScore != nil {
		addCondition("data_quality_score >= $%d", *filter.MinQualityScore)
	}

	query := `SELECT ` + snapshotColumns + ` FROM snapshots`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, filter.EffectiveLimit())
	query += fmt.Sprintf(" ORDER BY ts DESC, snapshot_id DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// scanSnapshot scans a single row into a Snapshot.
func scanSnapshot(row pgx.Row) (*domain.Snapshot, error) {
	var (
		snap                             domain.Snapshot
		analysisType, condition, session string
		volatility, volume, trend        string
	)

	err := row.Scan(
		&snap.ID, &snap.Ticker, &snap.Timestamp, &analysisType, &condition, &snap.Timeframes,
		&snap.DataQualityScore, &snap.ConfidenceLevel, &session, &volatility,
		&volume, &trend, &snap.Tags, &snap.AnalystNotes, &snap.PayloadLocation,
		&snap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := assignSnapshotEnums(&snap, analysisType, condition, session, volatility, volume, trend); err != nil {
		return nil, err
	}
	return &snap, nil
}

// scanSnapshots scans multiple rows into a slice of Snapshot.
func scanSnapshots(rows pgx.Rows) ([]*domain.Snapshot, error) {
	var snaps []*domain.Snapshot

	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snaps = append(snaps, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return snaps, nil
}

// assignSnapshotEnums parses stored enum strings, rejecting values a newer
// schema revision may have written that this build does not understand.
func assignSnapshotEnums(snap *domain.Snapshot, analysisType, condition, session, volatility, volume, trend string) error {
	var err error
	if snap.AnalysisType, err = domain.ParseAnalysisType(analysisType); err != nil {
		return fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}
	if snap.MarketCondition, err = domain.ParseMarketCondition(condition); err != nil {
		return fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}
	if snap.MarketSession, err = domain.ParseMarketSession(session); err != nil {
		return fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}
	if snap.VolatilityRegime, err = domain.ParseVolatilityRegime(volatility); err != nil {
		return fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}
	if snap.VolumeProfile, err = domain.ParseVolumeProfile(volume); err != nil {
		return fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}
	if snap.TrendDirection, err = domain.ParseTrendDirection(trend); err != nil {
		return fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}
	return nil
}
