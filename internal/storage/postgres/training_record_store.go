package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/storage"
)

// TrainingRecordStore implements storage.TrainingRecordStore using PostgreSQL.
type TrainingRecordStore struct {
	pool *Pool
}

// NewTrainingRecordStore creates a new TrainingRecordStore.
func NewTrainingRecordStore(pool *Pool) *TrainingRecordStore {
	return &TrainingRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TrainingRecordStore = (*TrainingRecordStore)(nil)

const trainingRecordColumns = `
	record_id, snapshot_id, conversation_type, prompt, response, context,
	quality_score, human_validated, created_at
`

const insertTrainingRecordQuery = `
	INSERT INTO training_records (
		record_id, snapshot_id, conversation_type, prompt, response, context,
		quality_score, human_validated, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9
	)
`

// Insert adds a new record. Returns ErrDuplicateKey if record_id exists.
func (s *TrainingRecordStore) Insert(ctx context.Context, r *domain.TrainingRecord) error {
	if err := validateTrainingRecord(r); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, insertTrainingRecordQuery,
		r.ID, r.SnapshotID, r.ConversationType, r.Prompt, r.Response, r.Context,
		r.QualityScore, r.HumanValidated, r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert training record: %w", err)
	}
	return nil
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *TrainingRecordStore) InsertBulk(ctx context.Context, records []*domain.TrainingRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if err := validateTrainingRecord(r); err != nil {
			return err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		_, err := tx.Exec(ctx, insertTrainingRecordQuery,
			r.ID, r.SnapshotID, r.ConversationType, r.Prompt, r.Response, r.Context,
			r.QualityScore, r.HumanValidated, r.CreatedAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert training record in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByID retrieves a record by its id. Returns ErrNotFound if not exists.
func (s *TrainingRecordStore) GetByID(ctx context.Context, id string) (*domain.TrainingRecord, error) {
	query := `
		SELECT ` + trainingRecordColumns + `
		FROM training_records
		WHERE record_id = $1
	`

	row := s.pool.QueryRow(ctx, query, id)
	r, err := scanTrainingRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get training record by id: %w", err)
	}
	return r, nil
}

// GetBySnapshotID retrieves all records derived from one snapshot.
func (s *TrainingRecordStore) GetBySnapshotID(ctx context.Context, snapshotID string) ([]*domain.TrainingRecord, error) {
	query := `
		SELECT ` + trainingRecordColumns + `
		FROM training_records
		WHERE snapshot_id = $1
		ORDER BY created_at ASC, record_id ASC
	`

	rows, err := s.pool.Query(ctx, query, snapshotID)
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

	addCondition := func(expr string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(expr, len(args)))
	}

	if filter.SnapshotID != "" {
		addCondition("snapshot_id = $%d", filter.SnapshotID)
	}
	if len(filter.Categories) > 0 {
		categories := make([]string, len(filter.Categories))
		for i, c := range filter.Categories {
			categories[i] = string(c)
		}
		addCondition("conversation_type = ANY($%d)", categories)
	}
	if filter.MinQualityScore != nil {
		addCondition("quality_score >= $%d", *filter.MinQualityScore)
	}
	if filter.OnlyValidated {
		conditions = append(conditions, "human_validated")
	}

	query := `SELECT ` + trainingRecordColumns + ` FROM training_records`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, filter.EffectiveLimit())
	query += fmt.Sprintf(" ORDER BY created_at DESC, record_id DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query training records: %w", err)
	}
	defer rows.Close()

	return scanTrainingRecords(rows)
}

// GetAll retrieves every record, oldest first. Not subject to the query limit;
// aggregate statistics need the full population.
func (s *TrainingRecordStore) GetAll(ctx context.Context) ([]*domain.TrainingRecord, error) {
	query := `
		SELECT ` + trainingRecordColumns + `
		FROM training_records
		ORDER BY created_at ASC, record_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all training records: %w", err)
	}
	defer rows.Close()

	return scanTrainingRecords(rows)
}

// SetHumanValidated flips the validation flag on an existing record.
func (s *TrainingRecordStore) SetHumanValidated(ctx context.Context, id string, validated bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE training_records SET human_validated = $2 WHERE record_id = $1`,
		id, validated,
	)
	if err != nil {
		return fmt.Errorf("set human validated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
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

// scanTrainingRecord scans a single row into a TrainingRecord.
func scanTrainingRecord(row pgx.Row) (*domain.TrainingRecord, error) {
	var (
		r                domain.TrainingRecord
		conversationType string
	)

	err := row.Scan(
		&r.ID, &r.SnapshotID, &conversationType, &r.Prompt, &r.Response, &r.Context,
		&r.QualityScore, &r.HumanValidated, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.ConversationType, err = domain.ParseConversationType(conversationType)
	if err != nil {
		return nil, fmt.Errorf("training record %s: %w", r.ID, err)
	}

	return &r, nil
}

// scanTrainingRecords scans multiple rows into a slice of TrainingRecord.
func scanTrainingRecords(rows pgx.Rows) ([]*domain.TrainingRecord, error) {
	var records []*domain.TrainingRecord

	for rows.Next() {
		r, err := scanTrainingRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan training record row: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training record rows: %w", err)
	}

	return records, nil
}
