package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/storage"
)

func createTestSnapshot(id, ticker string, ts time.Time) *domain.Snapshot {
	return &domain.Snapshot{
		ID:               id,
		Ticker:           ticker,
		Timestamp:        ts,
		AnalysisType:     domain.AnalysisFull,
		MarketCondition:  domain.ConditionSideways,
		Timeframes:       []string{"1h", "1d"},
		DataQualityScore: 0.7,
		ConfidenceLevel:  0.6,
		MarketSession:    domain.SessionRegular,
		VolatilityRegime: domain.VolatilityLow,
		VolumeProfile:    domain.VolumeNormal,
		TrendDirection:   domain.TrendFlat,
		Tags:             []string{"intraday"},
		AnalystNotes:     "baseline capture",
		PayloadLocation:  id + ".snap",
		CreatedAt:        ts,
	}
}

func TestSnapshotIndex_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotIndex(pool)

	ts := time.Date(2025, 3, 14, 15, 30, 0, 0, time.UTC)
	snap := createTestSnapshot("aaaa000000000001", "AAPL", ts)
	md := &domain.Metadata{
		MarketCondition:  snap.MarketCondition,
		VolatilityRegime: snap.VolatilityRegime,
		MarketSession:    snap.MarketSession,
		VolumeProfile:    snap.VolumeProfile,
		TrendDirection:   snap.TrendDirection,
		DataQualityScore: snap.DataQualityScore,
		ConfidenceLevel:  snap.ConfidenceLevel,
		Timeframes:       snap.Timeframes,
	}

	err := store.Insert(ctx, snap, md)
	require.NoError(t, err)

	retrieved, err := store.GetByID(ctx, snap.ID)
	require.NoError(t, err)

	assert.Equal(t, snap.ID, retrieved.ID)
	assert.Equal(t, snap.Ticker, retrieved.Ticker)
	assert.True(t, retrieved.Timestamp.Equal(snap.Timestamp))
	assert.Equal(t, snap.AnalysisType, retrieved.AnalysisType)
	assert.Equal(t, snap.MarketCondition, retrieved.MarketCondition)
	assert.Equal(t, snap.Timeframes, retrieved.Timeframes)
	assert.InDelta(t, snap.DataQualityScore, retrieved.DataQualityScore, 0.0001)
	assert.InDelta(t, snap.ConfidenceLevel, retrieved.ConfidenceLevel, 0.0001)
	assert.Equal(t, snap.MarketSession, retrieved.MarketSession)
	assert.Equal(t, snap.VolatilityRegime, retrieved.VolatilityRegime)
	assert.Equal(t, snap.VolumeProfile, retrieved.VolumeProfile)
	assert.Equal(t, snap.TrendDirection, retrieved.TrendDirection)
	assert.Equal(t, snap.Tags, retrieved.Tags)
	assert.Equal(t, snap.AnalystNotes, retrieved.AnalystNotes)
	assert.Equal(t, snap.PayloadLocation, retrieved.PayloadLocation)
}

func TestSnapshotIndex_InsertNilMetadata(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotIndex(pool)

	snap := createTestSnapshot("aaaa000000000002", "MSFT", time.Now().UTC())
	require.NoError(t, store.Insert(ctx, snap, nil))

	_, err := store.GetByID(ctx, snap.ID)
	assert.NoError(t, err)
}

func TestSnapshotIndex_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotIndex(pool)

	snap := createTestSnapshot("aaaa000000000003", "AAPL", time.Now().UTC())

	err := store.Insert(ctx, snap, nil)
	require.NoError(t, err)

	err = store.Insert(ctx, snap, nil)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSnapshotIndex_InsertValidation(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotIndex(pool)

	assert.ErrorIs(t, store.Insert(ctx, nil, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, &domain.Snapshot{}, nil), storage.ErrInvalidInput)

	bad := createTestSnapshot("aaaa000000000004", "AAPL", time.Now().UTC())
	bad.MarketCondition = "CRAB_MARKET"
	assert.ErrorIs(t, store.Insert(ctx, bad, nil), storage.ErrInvalidInput)
}

func TestSnapshotIndex_GetByIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotIndex(pool)

	_, err := store.GetByID(ctx, "ffff000000000000")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSnapshotIndex_QueryFilters(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotIndex(pool)

	base := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	aapl1 := createTestSnapshot("aaaa000000000001", "AAPL", base)
	aapl2 := createTestSnapshot("aaaa000000000002", "AAPL", base.Add(time.Hour))
	aapl2.MarketCondition = domain.ConditionBullMarket
	aapl2.AnalysisType = domain.AnalysisTrend
	aapl2.DataQualityScore = 0.9
	msft := createTestSnapshot("bbbb000000000001", "MSFT", base.Add(30*time.Minute))

	for _, s := range []*domain.Snapshot{aapl1, aapl2, msft} {
		require.NoError(t, store.Insert(ctx, s, nil))
	}

	// Ticker exact match, newest first.
	got, err := store.Query(ctx, storage.SnapshotFilter{Ticker: "AAPL"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "aaaa000000000002", got[0].ID)
	assert.Equal(t, "aaaa000000000001", got[1].ID)

	// Time range is inclusive on both ends.
	start, end := base, base.Add(30*time.Minute)
	got, err = store.Query(ctx, storage.SnapshotFilter{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Market condition.
	got, err = store.Query(ctx, storage.SnapshotFilter{MarketCondition: domain.ConditionBullMarket})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "aaaa000000000002", got[0].ID)

	// Analysis type.
	got, err = store.Query(ctx, storage.SnapshotFilter{AnalysisType: domain.AnalysisTrend})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "aaaa000000000002", got[0].ID)

	// Minimum quality score is inclusive.
	got, err = store.Query(ctx, storage.SnapshotFilter{MinQualityScore: ptr(0.9)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "aaaa000000000002", got[0].ID)

	// Limit keeps the newest rows.
	got, err = store.Query(ctx, storage.SnapshotFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "aaaa000000000002", got[0].ID)

	// Combined filters intersect.
	got, err = store.Query(ctx, storage.SnapshotFilter{Ticker: "AAPL", End: &end})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "aaaa000000000001", got[0].ID)
}
