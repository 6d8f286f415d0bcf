// Package snapshots is the façade over classification, payload storage and
// the metadata index. Writes are payload-first: the blob lands before the
// index row, so a failed insert can leave an orphaned blob but never a
// dangling index entry.
package snapshots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"market-snapshot-lab/internal/classify"
	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/idhash"
	"market-snapshot-lab/internal/observability"
	"market-snapshot-lab/internal/storage"
)

// OrphanWriteError reports a payload blob that was written durably while the
// subsequent index insert failed. The blob stays on disk for manual recovery.
type OrphanWriteError struct {
	SnapshotID      string
	PayloadLocation string
	Err             error
}

func (e *OrphanWriteError) Error() string {
	return fmt.Sprintf("snapshot %s: index insert failed, payload orphaned at %s: %v",
		e.SnapshotID, e.PayloadLocation, e.Err)
}

func (e *OrphanWriteError) Unwrap() error {
	return e.Err
}

// SaveOptions carries the optional analyst-supplied fields of a save.
type SaveOptions struct {
	Tags         []string
	AnalystNotes string
}

// Store coordinates snapshot persistence.
type Store struct {
	index      storage.SnapshotIndex
	payloads   storage.PayloadStore
	classifier *classify.Classifier
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a snapshot store. A nil logger is replaced with a no-op one.
func New(index storage.SnapshotIndex, payloads storage.PayloadStore, classifier *classify.Classifier, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		index:      index,
		payloads:   payloads,
		classifier: classifier,
		logger:     logger,
		now:        time.Now,
	}
}

// Save classifies the payload, persists the blob, then inserts the index
// row. The returned snapshot carries the derived metadata as columns. A zero
// timestamp defaults to the save instant; callers pass one explicitly only
// for backdated ingests.
func (s *Store) Save(ctx context.Context, ticker string, timestamp time.Time, analysisType domain.AnalysisType, payload domain.RawPayload, opts SaveOptions) (*domain.Snapshot, error) {
	start := s.now()

	if ticker == "" || payload == nil {
		return nil, storage.ErrInvalidInput
	}
	if !analysisType.IsValid() {
		return nil, storage.ErrInvalidInput
	}
	if timestamp.IsZero() {
		timestamp = s.now().UTC()
	}

	id := idhash.ComputeSnapshotID(ticker, timestamp)
	md := s.classifier.Classify(payload, ticker, timestamp)

	location, err := s.payloads.Write(ctx, id, payload)
	if err != nil {
		observability.RecordSaveError("payload")
		return nil, fmt.Errorf("write payload for snapshot %s: %w", id, err)
	}

	snap := &domain.Snapshot{
		ID:               id,
		Ticker:           ticker,
		Timestamp:        timestamp,
		AnalysisType:     analysisType,
		MarketCondition:  md.MarketCondition,
		Timeframes:       md.Timeframes,
		DataQualityScore: md.DataQualityScore,
		ConfidenceLevel:  md.ConfidenceLevel,
		MarketSession:    md.MarketSession,
		VolatilityRegime: md.VolatilityRegime,
		VolumeProfile:    md.VolumeProfile,
		TrendDirection:   md.TrendDirection,
		Tags:             opts.Tags,
		AnalystNotes:     opts.AnalystNotes,
		PayloadLocation:  location,
		CreatedAt:        s.now().UTC(),
	}

	if err := s.index.Insert(ctx, snap, md); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Same ticker and timestamp hash to the same id, so the
			// blob just written belongs to the existing row.
			observability.RecordSaveError("duplicate")
			return nil, storage.ErrDuplicateKey
		}
		observability.RecordSaveError("index")
		observability.RecordOrphanedPayload()
		orphan := &OrphanWriteError{SnapshotID: id, PayloadLocation: location, Err: err}
		s.logger.Error("index insert failed, payload orphaned",
			zap.String("snapshot_id", id),
			zap.String("payload_location", location),
			zap.Error(err),
		)
		return nil, orphan
	}

	observability.RecordSnapshotSaved(analysisType.String())
	observability.DefaultMetrics.SaveLatency.Observe(s.now().Sub(start).Seconds())
	s.logger.Info("snapshot saved",
		zap.String("snapshot_id", id),
		zap.String("ticker", ticker),
		zap.String("analysis_type", analysisType.String()),
		zap.Float64("quality_score", md.DataQualityScore),
	)

	return snap, nil
}

// Load retrieves a snapshot and its full payload. A missing index row yields
// ErrNotFound; an indexed row whose blob is missing or corrupt yields
// ErrPayloadUnavailable.
func (s *Store) Load(ctx context.Context, id string) (*domain.Snapshot, domain.RawPayload, error) {
	if id == "" {
		return nil, nil, storage.ErrInvalidInput
	}
	start := s.now()

	snap, err := s.index.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			observability.DefaultMetrics.SnapshotLoadErrors.WithLabelValues("not_found").Inc()
			return nil, nil, storage.ErrNotFound
		}
		return nil, nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}

	payload, err := s.payloads.Read(ctx, snap.PayloadLocation)
	if err != nil {
		observability.DefaultMetrics.SnapshotLoadErrors.WithLabelValues("payload").Inc()
		s.logger.Warn("snapshot payload unavailable",
			zap.String("snapshot_id", id),
			zap.String("payload_location", snap.PayloadLocation),
			zap.Error(err),
		)
		return nil, nil, fmt.Errorf("load payload for snapshot %s: %w", id, err)
	}

	observability.DefaultMetrics.SnapshotsLoaded.Inc()
	observability.DefaultMetrics.LoadLatency.Observe(s.now().Sub(start).Seconds())
	return snap, payload, nil
}

// Query returns matching snapshot metadata, newest first. Payloads are never
// touched.
func (s *Store) Query(ctx context.Context, filter storage.SnapshotFilter) ([]*domain.Snapshot, error) {
	observability.DefaultMetrics.SnapshotQueries.Inc()
	return s.index.Query(ctx, filter)
}
