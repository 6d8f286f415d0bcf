package storage

import (
	"context"
	"time"

	"market-snapshot-lab/internal/domain"
)

// MaxQueryLimit caps the number of rows any query returns. Callers asking
// for more (or not asking at all) get at most this many.
const MaxQueryLimit = 500

// SnapshotFilter selects snapshots by independent optional criteria.
// Zero values mean "no constraint".
type SnapshotFilter struct {
	Ticker          string                 // exact match
	Start           *time.Time             // inclusive lower timestamp bound
	End             *time.Time             // inclusive upper timestamp bound
	MarketCondition domain.MarketCondition // exact match
	AnalysisType    domain.AnalysisType    // exact match
	MinQualityScore *float64               // inclusive lower bound
	Limit           int                    // 0 or negative means MaxQueryLimit
}

// EffectiveLimit resolves the filter's limit against MaxQueryLimit.
func (f SnapshotFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return f.Limit
}

// SnapshotIndex provides access to snapshot metadata storage. Rows are
// append-only: snapshots are never updated or deleted by this subsystem.
type SnapshotIndex interface {
	// Insert adds a new snapshot row. The full derived-metadata object is
	// persisted alongside the columns as a raw JSON blob for forward
	// compatibility. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, s *domain.Snapshot, md *domain.Metadata) error

	// GetByID retrieves a snapshot by its id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Snapshot, error)

	// Query retrieves snapshots matching the filter, ordered by timestamp
	// DESC (ties broken by id DESC). Never touches payload storage.
	Query(ctx context.Context, filter SnapshotFilter) ([]*domain.Snapshot, error)
}

// PayloadStore provides durable blob storage for full raw analysis results,
// addressed by snapshot id.
type PayloadStore interface {
	// Write persists the payload under the given snapshot id and returns
	// an opaque location reference for later reads.
	Write(ctx context.Context, id string, payload domain.RawPayload) (location string, err error)

	// Read loads a payload from a previously returned location. Returns
	// ErrPayloadUnavailable if the blob is missing or corrupt.
	Read(ctx context.Context, location string) (domain.RawPayload, error)
}

// TrainingRecordFilter selects training records for export.
type TrainingRecordFilter struct {
	SnapshotID      string                    // exact match
	Categories      []domain.ConversationType // set membership; empty means all
	MinQualityScore *float64                  // inclusive lower bound
	OnlyValidated   bool                      // restrict to human-validated records
	Limit           int                       // 0 or negative means MaxQueryLimit
}

// EffectiveLimit resolves the filter's limit against MaxQueryLimit.
func (f TrainingRecordFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return f.Limit
}

// TrainingRecordStore provides access to synthesized training records.
// Records are immutable after creation except for the human-validated flag.
type TrainingRecordStore interface {
	// Insert adds a new record. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, r *domain.TrainingRecord) error

	// InsertBulk adds multiple records. Fails the entire batch on any duplicate.
	InsertBulk(ctx context.Context, records []*domain.TrainingRecord) error

	// GetByID retrieves a record by its id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.TrainingRecord, error)

	// GetBySnapshotID retrieves all records derived from one snapshot,
	// ordered by creation time ASC, id ASC.
	GetBySnapshotID(ctx context.Context, snapshotID string) ([]*domain.TrainingRecord, error)

	// Query retrieves records matching the filter, ordered by creation
	// time DESC (ties broken by id DESC).
	Query(ctx context.Context, filter TrainingRecordFilter) ([]*domain.TrainingRecord, error)

	// GetAll retrieves every record, ordered by creation time ASC, id ASC.
	// Used for aggregate statistics; not subject to MaxQueryLimit.
	GetAll(ctx context.Context) ([]*domain.TrainingRecord, error)

	// SetHumanValidated flips the validation flag on an existing record.
	// Returns ErrNotFound if the record does not exist.
	SetHumanValidated(ctx context.Context, id string, validated bool) error
}
