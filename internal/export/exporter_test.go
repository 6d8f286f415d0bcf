package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/storage"
	"market-snapshot-lab/internal/storage/memory"
)

func seedRecords(t *testing.T, store storage.TrainingRecordStore) []*domain.TrainingRecord {
	t.Helper()
	base := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	records := []*domain.TrainingRecord{
		{
			ID:               uuid.NewString(),
			SnapshotID:       "aaaa000000000001",
			ConversationType: domain.ConversationMarketCommentary,
			Prompt:           "What is the current market environment for AAPL?",
			Response:         "AAPL is currently in a bull market during the regular session.",
			Context:          map[string]any{"ticker": "AAPL"},
			QualityScore:     0.8,
			CreatedAt:        base,
		},
		{
			ID:               uuid.NewString(),
			SnapshotID:       "aaaa000000000001",
			ConversationType: domain.ConversationRiskAssessment,
			Prompt:           "Assess the risk profile of the current AAPL setup.",
			Response:         "AAPL is trading under a medium volatility regime.",
			Context:          map[string]any{"ticker": "AAPL", "volatility": 0.22},
			QualityScore:     0.9,
			HumanValidated:   true,
			CreatedAt:        base.Add(time.Minute),
		},
		{
			ID:               uuid.NewString(),
			SnapshotID:       "bbbb000000000001",
			ConversationType: domain.ConversationMarketCommentary,
			Prompt:           "What is the current market environment for MSFT?",
			Response:         "MSFT is currently in a sideways market.",
			Context:          map[string]any{"ticker": "MSFT"},
			QualityScore:     0.7,
			CreatedAt:        base.Add(2 * time.Minute),
		},
	}
	require.NoError(t, store.InsertBulk(context.Background(), records))
	return records
}

func TestExportJSONLParseBack(t *testing.T) {
	store := memory.NewTrainingRecordStore()
	seedRecords(t, store)

	exporter, err := NewExporter(store, t.TempDir(), nil)
	require.NoError(t, err)

	path, count, err := exporter.Export(context.Background(), storage.TrainingRecordFilter{}, FormatJSONL)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []jsonlLine
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line jsonlLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 3)

	for _, line := range lines {
		assert.NotEmpty(t, line.Prompt)
		assert.NotEmpty(t, line.Response)
		assert.NotEmpty(t, line.Metadata.RecordID)
		assert.NotEmpty(t, line.Metadata.SnapshotID)
		assert.NotEmpty(t, line.Metadata.ConversationType)
		assert.Greater(t, line.Metadata.QualityScore, 0.0)
	}
}

func TestExportCSV(t *testing.T) {
	store := memory.NewTrainingRecordStore()
	seedRecords(t, store)

	exporter, err := NewExporter(store, t.TempDir(), nil)
	require.NoError(t, err)

	path, count, err := exporter.Export(context.Background(), storage.TrainingRecordFilter{}, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4, "header plus three records")
	assert.Equal(t, csvHeader, rows[0])
}

func TestExportArtifactNaming(t *testing.T) {
	store := memory.NewTrainingRecordStore()
	seedRecords(t, store)

	exporter, err := NewExporter(store, t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	// Multiple (or zero) categories export under the "all" prefix.
	path, _, err := exporter.Export(ctx, storage.TrainingRecordFilter{}, FormatJSONL)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "all_"))
	assert.True(t, strings.HasSuffix(path, ".jsonl"))

	// A single category names the artifact after it.
	path, count, err := exporter.Export(ctx, storage.TrainingRecordFilter{
		Categories: []domain.ConversationType{domain.ConversationRiskAssessment},
	}, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "risk_assessment_"))
	assert.True(t, strings.HasSuffix(path, ".csv"))
}

func TestExportFilterValidatedOnly(t *testing.T) {
	store := memory.NewTrainingRecordStore()
	records := seedRecords(t, store)

	dir := t.TempDir()
	exporter, err := NewExporter(store, dir, nil)
	require.NoError(t, err)

	path, count, err := exporter.Export(context.Background(), storage.TrainingRecordFilter{OnlyValidated: true}, FormatJSONL)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), records[1].ID)
}

func TestExportSerializationAbort(t *testing.T) {
	store := memory.NewTrainingRecordStore()
	rec := &domain.TrainingRecord{
		ID:               uuid.NewString(),
		SnapshotID:       "aaaa000000000001",
		ConversationType: domain.ConversationMarketCommentary,
		Prompt:           "p",
		Response:         "r",
		// JSON cannot encode a channel.
		Context:      map[string]any{"bad": make(chan int)},
		QualityScore: 0.8,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.Insert(context.Background(), rec))

	dir := t.TempDir()
	exporter, err := NewExporter(store, dir, nil)
	require.NoError(t, err)

	_, _, err = exporter.Export(context.Background(), storage.TrainingRecordFilter{}, FormatJSONL)
	assert.ErrorIs(t, err, ErrSerialization)

	// No artifact, truncated or otherwise, is left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"jsonl", FormatJSONL, false},
		{"csv", FormatCSV, false},
		{"xml", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestStatistics(t *testing.T) {
	store := memory.NewTrainingRecordStore()
	exporter, err := NewExporter(store, t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	// Empty store yields all-zero statistics.
	stats, err := exporter.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRecords)
	assert.Zero(t, stats.MeanQuality)
	assert.Zero(t, stats.StddevQuality)
	assert.Zero(t, stats.MinQuality)
	assert.Zero(t, stats.MaxQuality)
	assert.Zero(t, stats.ValidatedCount)
	assert.Zero(t, stats.ValidatedFraction)

	seedRecords(t, store)

	stats, err = exporter.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRecords)
	assert.Equal(t, 2, stats.PerCategory[domain.ConversationMarketCommentary])
	assert.Equal(t, 1, stats.PerCategory[domain.ConversationRiskAssessment])
	assert.InDelta(t, 0.8, stats.MeanQuality, 0.0001)
	assert.InDelta(t, 0.1, stats.StddevQuality, 0.0001)
	assert.InDelta(t, 0.7, stats.MinQuality, 0.0001)
	assert.InDelta(t, 0.9, stats.MaxQuality, 0.0001)
	assert.Equal(t, 1, stats.ValidatedCount)
	assert.InDelta(t, 1.0/3.0, stats.ValidatedFraction, 0.0001)
}
