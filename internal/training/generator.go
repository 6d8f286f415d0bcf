// Package training synthesizes categorized prompt/response records from
// stored snapshots. Synthesis is deterministic template filling; no language
// model is involved.
package training

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/observability"
	"market-snapshot-lab/internal/snapshots"
	"market-snapshot-lab/internal/storage"
)

// Generator synthesizes training records from stored snapshots.
type Generator struct {
	snapshots *snapshots.Store
	records   storage.TrainingRecordStore
	logger    *zap.Logger
	newID     func() string
	now       func() time.Time
}

// NewGenerator creates a Generator. A nil logger is replaced with a no-op one.
func NewGenerator(store *snapshots.Store, records storage.TrainingRecordStore, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		snapshots: store,
		records:   records,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Generate synthesizes records for one snapshot and persists them as a
// single atomic batch, returning the new record ids. The snapshot and its
// payload are loaded exactly once. Categories without a registered
// synthesizer are skipped silently; an empty category list selects all
// default categories.
func (g *Generator) Generate(ctx context.Context, snapshotID string, categories []domain.ConversationType) ([]string, error) {
	start := g.now()

	snap, payload, err := g.snapshots.Load(ctx, snapshotID)
	if err != nil {
		observability.DefaultMetrics.GenerationErrors.Inc()
		return nil, fmt.Errorf("load snapshot for generation: %w", err)
	}

	if len(categories) == 0 {
		categories = domain.DefaultConversationTypes()
	}

	var records []*domain.TrainingRecord
	for _, category := range categories {
		synthesize, ok := synthesizers[category]
		if !ok {
			continue
		}
		for _, d := range synthesize(snap, payload) {
			records = append(records, &domain.TrainingRecord{
				ID:               g.newID(),
				SnapshotID:       snap.ID,
				ConversationType: category,
				Prompt:           d.prompt,
				Response:         d.response,
				Context:          d.context,
				QualityScore:     domain.DefaultTrainingQualityScore,
				CreatedAt:        g.now().UTC(),
			})
		}
	}

	if len(records) == 0 {
		return nil, nil
	}

	if err := g.records.InsertBulk(ctx, records); err != nil {
		observability.DefaultMetrics.GenerationErrors.Inc()
		return nil, fmt.Errorf("store generated records: %w", err)
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
		observability.RecordGenerated(r.ConversationType.String())
	}

	observability.DefaultMetrics.GenerateLatency.Observe(g.now().Sub(start).Seconds())
	g.logger.Info("training records generated",
		zap.String("snapshot_id", snapshotID),
		zap.Int("records", len(ids)),
	)

	return ids, nil
}
