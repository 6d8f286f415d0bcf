package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/storage"
)

// TrainingRecordStore implements storage.TrainingRecordStore using ClickHouse.
// MergeTree does not enforce uniqueness, so duplicates are rejected by explicit
// existence checks before insert.
type TrainingRecordStore struct {
	conn *Conn
}

// NewTrainingRecordStore creates a new TrainingRecordStore.
func NewTrainingRecordStore(conn *Conn) *TrainingRecordStore {
	return &TrainingRecordStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TrainingRecordStore = (*TrainingRecordStore)(nil)

const trainingRecordColumns = `
	record_id, snapshot_id, conversation_type, prompt, response, context,
	quality_score, human_validated, created_at
`

// Insert adds a new record. Returns ErrDuplicateKey if record_id exists.
func (s *TrainingRecordStore) Insert(ctx context.Context, r *domain.TrainingRecord) error {
	return s.InsertBulk(ctx, []*domain.TrainingRecord{r})
}

// InsertBulk adds multiple records. Fails the entire batch on any duplicate.
func (s *TrainingRecordStore) InsertBulk(ctx context.Context, records []*domain.TrainingRecord) error {
	if len(records) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if err := validateTrainingRecord(r); err != nil {
			return err
		}
		if _, exists := seen[r.ID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[r.ID] = struct{}{}
	}

	// Check for duplicates against existing rows
	for _, r := range records {
		exists, err := s.exists(ctx, r.ID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO training_records (
			record_id, snapshot_id, conversation_type, prompt, response, context,
			quality_score, human_validated, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		contextJSON, err := json.Marshal(r.Context)
		if err != nil {
			return fmt.Errorf("marshal record context: %w", err)
		}
		err = batch.Append(
			r.ID, r.SnapshotID, string(r.ConversationType), r.Prompt, r.Response, string(contextJSON),
			r.QualityScore, boolToUInt8(r.HumanValidated), r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByID retrieves a record by its id. Returns ErrNotFound if not exists.
func (s *TrainingRecordStore) GetByID(ctx context.Context, id string) (*domain.TrainingRecord, error) {
	query := `
		SELECT ` + trainingRecordColumns + `
		FROM training_records
		WHERE record_id = ?
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get training record by id: %w", err)
	}
	defer rows.Close()

	records, err := scanTrainingRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, storage.ErrNotFound
	}
	return records[0], nil
}

// GetBySnapshotID retrieves all records derived from one snapshot, oldest first.
func (s *TrainingRecordStore) GetBySnapshotID(ctx context.Context, snapshotID string) ([]*domain.TrainingRecord, error) {
	query := `
		SELECT ` + trainingRecordColumns + `
		FROM training_records
		WHERE snapshot_id = ?
		ORDER BY created_at ASC, record_id ASC
	`

	rows, err := s.conn.Query(ctx, query, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("get training records by snapshot id: %w", err)
	}
	defer rows.Close()

	return scanTrainingRecords(rows)
}

// Query retrieves records matching the filter, newest first.
func (s *TrainingRecordStore) Query(ctx context.Context, filter storage.TrainingRecordFilter) ([]*domain.TrainingRecord, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.SnapshotID != "" {
		conditions = append(conditions, "snapshot_id = ?")
		args = append(args, filter.SnapshotID)
	}
	if len(filter.Categories) > 0 {
		categories := make([]string, len(filter.Categories))
		for i, c := range filter.Categories {
			categories[i] = string(c)
		}
		conditions = append(conditions, "conversation_type IN ?")
		args = append(args, categories)
	}
	if filter.MinQualityScore != nil {
		conditions = append(conditions, "quality_score >= ?")
		args = append(args, *filter.MinQualityScore)
	}
	if filter.OnlyValidated {
		conditions = append(conditions, "human_validated = 1")
	}

	query := `SELECT ` + trainingRecordColumns + ` FROM training_records`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, record_id DESC LIMIT ?"
	args = append(args, uint64(filter.EffectiveLimit()))

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query training records: %w", err)
	}
	defer rows.Close()

	return scanTrainingRecords(rows)
}

// GetAll retrieves every record, oldest first.
func (s *TrainingRecordStore) GetAll(ctx context.Context) ([]*domain.TrainingRecord, error) {
	query := `
		SELECT ` + trainingRecordColumns + `
		FROM training_records
		ORDER BY created_at ASC, record_id ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all training records: %w", err)
	}
	defer rows.Close()

	return scanTrainingRecords(rows)
}

// SetHumanValidated flips the validation flag on an existing record. The
// mutation runs synchronously so a follow-up read observes the new value.
func (s *TrainingRecordStore) SetHumanValidated(ctx context.Context, id string, validated bool) error {
	exists, err := s.exists(ctx, id)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}

	query := `
		ALTER TABLE training_records
		UPDATE human_validated = ?
		WHERE record_id = ?
		SETTINGS mutations_sync = 1
	`
	if err := s.conn.Exec(ctx, query, boolToUInt8(validated), id); err != nil {
		return fmt.Errorf("set human validated: %w", err)
	}
	return nil
}

// exists checks if a record with the given id exists.
func (s *TrainingRecordStore) exists(ctx context.Context, id string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM training_records WHERE record_id = ?`, id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func validateTrainingRecord(r *domain.TrainingRecord) error {
	if r == nil || r.ID == "" || r.SnapshotID == "" {
		return storage.ErrInvalidInput
	}
	if !r.ConversationType.IsValid() {
		return storage.ErrInvalidInput
	}
	return nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanTrainingRecords scans multiple rows into a slice of TrainingRecord.
func scanTrainingRecords(rows chRows) ([]*domain.TrainingRecord, error) {
	var records []*domain.TrainingRecord

	for rows.Next() {
		var (
			r                domain.TrainingRecord
			conversationType string
			contextJSON      string
			validated        uint8
			createdAt        time.Time
		)

		err := rows.Scan(
			&r.ID, &r.SnapshotID, &conversationType, &r.Prompt, &r.Response, &contextJSON,
			&r.QualityScore, &validated, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan training record row: %w", err)
		}

		r.ConversationType, err = domain.ParseConversationType(conversationType)
		if err != nil {
			return nil, fmt.Errorf("training record %s: %w", r.ID, err)
		}
		if contextJSON != "" && contextJSON != "null" {
			if err := json.Unmarshal([]byte(contextJSON), &r.Context); err != nil {
				return nil, fmt.Errorf("unmarshal record %s context: %w", r.ID, err)
			}
		}
		r.HumanValidated = validated != 0
		r.CreatedAt = createdAt

		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training record rows: %w", err)
	}

	return records, nil
}
