// Package export writes filtered training records to dataset artifacts and
// computes aggregate statistics over the record population.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/observability"
	"market-snapshot-lab/internal/storage"
)

// ErrSerialization indicates a record could not be encoded. The export run
// aborts and no truncated artifact is left behind.
var ErrSerialization = errors.New("serialization failed")

// Format selects the artifact encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

// ParseFormat decodes the wire form of Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSONL, FormatCSV:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown export format: %q", s)
	}
}

// Extension returns the artifact file extension for the format.
func (f Format) Extension() string {
	return string(f)
}

// Exporter writes training-record artifacts into a target directory.
type Exporter struct {
	records storage.TrainingRecordStore
	dir     string
	logger  *zap.Logger
	now     func() time.Time
}

// NewExporter creates an Exporter writing into dir. A nil logger is replaced
// with a no-op one.
func NewExporter(records storage.TrainingRecordStore, dir string, logger *zap.Logger) (*Exporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		records: records,
		dir:     dir,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// jsonlLine is the shape of one exported JSONL record.
type jsonlLine struct {
	Prompt   string        `json:"prompt"`
	Response string        `json:"response"`
	Metadata jsonlMetadata `json:"metadata"`
}

type jsonlMetadata struct {
	RecordID         string         `json:"record_id"`
	SnapshotID       string         `json:"snapshot_id"`
	ConversationType string         `json:"conversation_type"`
	QualityScore     float64        `json:"quality_score"`
	HumanValidated   bool           `json:"human_validated"`
	CreatedAt        time.Time      `json:"created_at"`
	Context          map[string]any `json:"context,omitempty"`
}

// Export writes the records matching the filter to a new artifact and
// returns its path plus the record count. The artifact is written to a temp
// file and renamed into place, so a failed run leaves nothing behind.
func (e *Exporter) Export(ctx context.Context, filter storage.TrainingRecordFilter, format Format) (string, int, error) {
	start := e.now()

	records, err := e.records.Query(ctx, filter)
	if err != nil {
		observability.DefaultMetrics.ExportErrors.WithLabelValues("query").Inc()
		return "", 0, fmt.Errorf("query records for export: %w", err)
	}

	path := filepath.Join(e.dir, e.artifactName(filter, format))

	tmp, err := os.CreateTemp(e.dir, "export-*.tmp")
	if err != nil {
		return "", 0, fmt.Errorf("create temp artifact: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	switch format {
	case FormatJSONL:
		err = writeJSONL(tmp, records)
	case FormatCSV:
		err = writeCSV(tmp, records)
	default:
		return "", 0, fmt.Errorf("unknown export format: %q", format)
	}
	if err != nil {
		observability.DefaultMetrics.ExportErrors.WithLabelValues("serialize").Inc()
		return "", 0, err
	}

	if err := tmp.Sync(); err != nil {
		return "", 0, fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", 0, fmt.Errorf("publish artifact: %w", err)
	}

	observability.RecordExportCompleted(string(format), len(records))
	observability.DefaultMetrics.ExportLatency.Observe(e.now().Sub(start).Seconds())
	e.logger.Info("export completed",
		zap.String("artifact", path),
		zap.String("format", string(format)),
		zap.Int("records", len(records)),
	)

	return path, len(records), nil
}

// artifactName builds `<category-or-all>_<timestamp>.<ext>`. The category
// prefix is used only when the filter selects exactly one category.
func (e *Exporter) artifactName(filter storage.TrainingRecordFilter, format Format) string {
	prefix := "all"
	if len(filter.Categories) == 1 {
		prefix = filter.Categories[0].String()
	}
	return fmt.Sprintf("%s_%s.%s", prefix, e.now().UTC().Format("20060102T150405Z"), format.Extension())
}

func writeJSONL(f *os.File, records []*domain.TrainingRecord) error {
	enc := json.NewEncoder(f)
	for _, r := range records {
		line := jsonlLine{
			Prompt:   r.Prompt,
			Response: r.Response,
			Metadata: jsonlMetadata{
				RecordID:         r.ID,
				SnapshotID:       r.SnapshotID,
				ConversationType: r.ConversationType.String(),
				QualityScore:     r.QualityScore,
				HumanValidated:   r.HumanValidated,
				CreatedAt:        r.CreatedAt,
				Context:          r.Context,
			},
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("%w: record %s: %v", ErrSerialization, r.ID, err)
		}
	}
	return nil
}

var csvHeader = []string{
	"record_id", "snapshot_id", "conversation_type", "prompt", "response",
	"context", "quality_score", "human_validated", "created_at",
}

func writeCSV(f *os.File, records []*domain.TrainingRecord) error {
	w := csv.NewWriter(f)

	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("%w: header: %v", ErrSerialization, err)
	}

	for _, r := range records {
		contextJSON, err := json.Marshal(r.Context)
		if err != nil {
			return fmt.Errorf("%w: record %s context: %v", ErrSerialization, r.ID, err)
		}
		row := []string{
			r.ID,
			r.SnapshotID,
			r.ConversationType.String(),
			r.Prompt,
			r.Response,
			string(contextJSON),
			strconv.FormatFloat(r.QualityScore, 'f', -1, 64),
			strconv.FormatBool(r.HumanValidated),
			r.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("%w: record %s: %v", ErrSerialization, r.ID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: flush: %v", ErrSerialization, err)
	}
	return nil
}
