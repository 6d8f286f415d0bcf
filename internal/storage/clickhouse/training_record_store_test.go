package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/storage"
)

func testRecord(snapshotID string, ct domain.ConversationType, createdAt time.Time) *domain.TrainingRecord {
	return &domain.TrainingRecord{
		ID:               uuid.NewString(),
		SnapshotID:       snapshotID,
		ConversationType: ct,
		Prompt:           "Assess the downside risk for this AAPL setup.",
		Response:         "Volatility is low and the trend is flat, risk is moderate.",
		Context: map[string]any{
			"ticker":     "AAPL",
			"risk_level": "MEDIUM",
		},
		QualityScore: domain.DefaultTrainingQualityScore,
		CreatedAt:    createdAt,
	}
}

func TestTrainingRecordStore_InsertAndGetByID(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTrainingRecordStore(conn)

	rec := testRecord("aaaa000000000001", domain.ConversationRiskAssessment, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))
	require.NoError(t, store.Insert(ctx, rec))

	retrieved, err := store.GetByID(ctx, rec.ID)
	require.NoError(t, err)

	assert.Equal(t, rec.ID, retrieved.ID)
	assert.Equal(t, rec.SnapshotID, retrieved.SnapshotID)
	assert.Equal(t, rec.ConversationType, retrieved.ConversationType)
	assert.Equal(t, rec.Prompt, retrieved.Prompt)
	assert.Equal(t, rec.Response, retrieved.Response)
	assert.Equal(t, rec.Context, retrieved.Context)
	assert.InDelta(t, rec.QualityScore, retrieved.QualityScore, 0.0001)
	assert.False(t, retrieved.HumanValidated)
	assert.True(t, retrieved.CreatedAt.Equal(rec.CreatedAt))
}

func TestTrainingRecordStore_InsertDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTrainingRecordStore(conn)

	rec := testRecord("aaaa000000000001", domain.ConversationMarketCommentary, time.Now().UTC())
	require.NoError(t, store.Insert(ctx, rec))
	assert.ErrorIs(t, store.Insert(ctx, rec), storage.ErrDuplicateKey)
}

func TestTrainingRecordStore_InsertBulkRejectsIntraBatchDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTrainingRecordStore(conn)

	first := testRecord("aaaa000000000001", domain.ConversationMarketCommentary, time.Now().UTC())
	dup := testRecord("aaaa000000000001", domain.ConversationRiskAssessment, time.Now().UTC())
	dup.ID = first.ID

	err := store.InsertBulk(ctx, []*domain.TrainingRecord{first, dup})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Nothing from the rejected batch is visible.
	_, err = store.GetByID(ctx, first.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTrainingRecordStore_QueryFilters(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTrainingRecordStore(conn)

	base := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	commentary := testRecord("aaaa000000000001", domain.ConversationMarketCommentary, base)
	risk := testRecord("aaaa000000000001", domain.ConversationRiskAssessment, base.Add(time.Minute))
	risk.QualityScore = 0.95
	technical := testRecord("bbbb000000000001", domain.ConversationTechnicalAnalysis, base.Add(2*time.Minute))

	require.NoError(t, store.InsertBulk(ctx, []*domain.TrainingRecord{commentary, risk, technical}))
	require.NoError(t, store.SetHumanValidated(ctx, risk.ID, true))

	// By snapshot, newest first.
	got, err := store.Query(ctx, storage.TrainingRecordFilter{SnapshotID: "aaaa000000000001"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, risk.ID, got[0].ID)
	assert.Equal(t, commentary.ID, got[1].ID)

	// Category set membership.
	got, err = store.Query(ctx, storage.TrainingRecordFilter{
		Categories: []domain.ConversationType{domain.ConversationRiskAssessment, domain.ConversationTechnicalAnalysis},
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Minimum quality score is inclusive.
	got, err = store.Query(ctx, storage.TrainingRecordFilter{MinQualityScore: ptr(0.95)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, risk.ID, got[0].ID)

	// Validated only.
	got, err = store.Query(ctx, storage.TrainingRecordFilter{OnlyValidated: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, risk.ID, got[0].ID)

	// Limit keeps the newest rows.
	got, err = store.Query(ctx, storage.TrainingRecordFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, technical.ID, got[0].ID)
}

func TestTrainingRecordStore_GetBySnapshotIDAndGetAllOrdering(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTrainingRecordStore(conn)

	base := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	newer := testRecord("aaaa000000000001", domain.ConversationMarketCommentary, base.Add(time.Minute))
	older := testRecord("aaaa000000000001", domain.ConversationRiskAssessment, base)
	other := testRecord("bbbb000000000001", domain.ConversationMarketCommentary, base.Add(2*time.Minute))

	require.NoError(t, store.InsertBulk(ctx, []*domain.TrainingRecord{newer, older, other}))

	got, err := store.GetBySnapshotID(ctx, "aaaa000000000001")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, older.ID, got[0].ID)
	assert.Equal(t, newer.ID, got[1].ID)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, older.ID, all[0].ID)
	assert.Equal(t, newer.ID, all[1].ID)
	assert.Equal(t, other.ID, all[2].ID)
}

func TestTrainingRecordStore_SetHumanValidated(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTrainingRecordStore(conn)

	rec := testRecord("aaaa000000000001", domain.ConversationMarketCommentary, time.Now().UTC())
	require.NoError(t, store.Insert(ctx, rec))

	require.NoError(t, store.SetHumanValidated(ctx, rec.ID, true))
	got, err := store.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.HumanValidated)

	assert.ErrorIs(t, store.SetHumanValidated(ctx, uuid.NewString(), true), storage.ErrNotFound)
}
