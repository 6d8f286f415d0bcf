package training

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-snapshot-lab/internal/classify"
	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/snapshots"
	"market-snapshot-lab/internal/storage"
	"market-snapshot-lab/internal/storage/memory"
)

func fullPayload() domain.RawPayload {
	return domain.RawPayload{
		"ticker":       "AAPL",
		"currentPrice": 187.32,
		"signal": map[string]any{
			"type":       "BUY",
			"strength":   0.7,
			"confidence": 0.85,
		},
		"riskAssessment": map[string]any{
			"riskLevel":  "MEDIUM",
			"volatility": 0.22,
		},
		"timeframeAnalyses": map[string]any{
			"1h": map[string]any{
				"processedData": map[string]any{
					"volume": []any{100.0, 110.0, 120.0},
				},
				"trendAnalysis": map[string]any{"direction": "UP"},
				"wyckoffPhases": []any{map[string]any{"phase": "C"}},
				"wyckoffEvents": []any{map[string]any{"event": "spring"}},
			},
			"1d": map[string]any{
				"processedData": map[string]any{
					"volume": []any{900.0, 950.0},
				},
				"trendAnalysis": map[string]any{"direction": "UP"},
			},
		},
	}
}

func setupGenerator(t *testing.T) (*Generator, *snapshots.Store, storage.TrainingRecordStore) {
	t.Helper()
	store := snapshots.New(
		memory.NewSnapshotIndex(),
		memory.NewPayloadStore(),
		classify.New(nil, &classify.Config{SessionLocation: time.UTC}),
		nil,
	)
	records := memory.NewTrainingRecordStore()
	return NewGenerator(store, records, nil), store, records
}

func saveSnapshot(t *testing.T, store *snapshots.Store, payload domain.RawPayload) *domain.Snapshot {
	t.Helper()
	snap, err := store.Save(context.Background(), "AAPL",
		time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC), domain.AnalysisFull, payload, snapshots.SaveOptions{})
	require.NoError(t, err)
	return snap
}

func TestGenerateAllCategories(t *testing.T) {
	gen, store, records := setupGenerator(t)
	ctx := context.Background()
	snap := saveSnapshot(t, store, fullPayload())

	ids, err := gen.Generate(ctx, snap.ID, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, ids)

	got, err := records.GetBySnapshotID(ctx, snap.ID)
	require.NoError(t, err)
	require.Len(t, got, len(ids))

	byCategory := map[domain.ConversationType]int{}
	for _, r := range got {
		byCategory[r.ConversationType]++
		assert.Equal(t, snap.ID, r.SnapshotID)
		assert.NotEmpty(t, r.Prompt)
		assert.NotEmpty(t, r.Response)
		assert.InDelta(t, domain.DefaultTrainingQualityScore, r.QualityScore, 0.0001)
		assert.False(t, r.HumanValidated)
	}

	// One explanation per timeframe plus one overall.
	assert.Equal(t, 3, byCategory[domain.ConversationAnalysisExplanation])
	assert.Equal(t, 1, byCategory[domain.ConversationMarketCommentary])
	assert.Equal(t, 1, byCategory[domain.ConversationRiskAssessment])
	assert.Equal(t, 1, byCategory[domain.ConversationTradingRecommendation])
	assert.Equal(t, 1, byCategory[domain.ConversationTechnicalAnalysis])
	// Only the 1h timeframe carries Wyckoff structure.
	assert.Equal(t, 1, byCategory[domain.ConversationStructuralAnalysis])
}

func TestGenerateSingleCategoryContext(t *testing.T) {
	gen, store, records := setupGenerator(t)
	ctx := context.Background()
	snap := saveSnapshot(t, store, fullPayload())

	ids, err := gen.Generate(ctx, snap.ID, []domain.ConversationType{domain.ConversationMarketCommentary})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	rec, err := records.GetByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationMarketCommentary, rec.ConversationType)
	assert.Equal(t, "AAPL", rec.Context["ticker"])
	assert.Equal(t, "BULL_MARKET", rec.Context["market_condition"])
	assert.Equal(t, "REGULAR", rec.Context["market_session"])
	assert.InDelta(t, 187.32, rec.Context["current_price"].(float64), 0.0001)
}

func TestGenerateUnknownCategorySkipped(t *testing.T) {
	gen, store, _ := setupGenerator(t)
	ctx := context.Background()
	snap := saveSnapshot(t, store, fullPayload())

	ids, err := gen.Generate(ctx, snap.ID, []domain.ConversationType{
		domain.ConversationType("casual_chat"),
		domain.ConversationRiskAssessment,
	})
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestGenerateSnapshotNotFound(t *testing.T) {
	gen, _, _ := setupGenerator(t)

	_, err := gen.Generate(context.Background(), "ffff000000000000", nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGenerateSparsePayload(t *testing.T) {
	gen, store, records := setupGenerator(t)
	ctx := context.Background()

	// No signal, no timeframes: recommendation and technical drafts vanish,
	// the explanation still emits its overall summary.
	snap := saveSnapshot(t, store, domain.RawPayload{"ticker": "AAPL"})

	ids, err := gen.Generate(ctx, snap.ID, nil)
	require.NoError(t, err)

	got, err := records.GetBySnapshotID(ctx, snap.ID)
	require.NoError(t, err)
	require.Len(t, got, len(ids))

	byCategory := map[domain.ConversationType]int{}
	for _, r := range got {
		byCategory[r.ConversationType]++
	}
	assert.Equal(t, 1, byCategory[domain.ConversationAnalysisExplanation])
	assert.Equal(t, 1, byCategory[domain.ConversationMarketCommentary])
	assert.Equal(t, 1, byCategory[domain.ConversationRiskAssessment])
	assert.Zero(t, byCategory[domain.ConversationTradingRecommendation])
	assert.Zero(t, byCategory[domain.ConversationTechnicalAnalysis])
	assert.Zero(t, byCategory[domain.ConversationStructuralAnalysis])
}

func TestGenerateDeterministicText(t *testing.T) {
	gen1, store1, records1 := setupGenerator(t)
	gen2, store2, records2 := setupGenerator(t)
	ctx := context.Background()

	snap1 := saveSnapshot(t, store1, fullPayload())
	snap2 := saveSnapshot(t, store2, fullPayload())

	_, err := gen1.Generate(ctx, snap1.ID, []domain.ConversationType{domain.ConversationTechnicalAnalysis})
	require.NoError(t, err)
	_, err = gen2.Generate(ctx, snap2.ID, []domain.ConversationType{domain.ConversationTechnicalAnalysis})
	require.NoError(t, err)

	got1, err := records1.GetBySnapshotID(ctx, snap1.ID)
	require.NoError(t, err)
	got2, err := records2.GetBySnapshotID(ctx, snap2.ID)
	require.NoError(t, err)
	require.Len(t, got1, 1)
	require.Len(t, got2, 1)
	assert.Equal(t, got1[0].Prompt, got2[0].Prompt)
	assert.Equal(t, got1[0].Response, got2[0].Response)
}
