package export

import (
	"context"
	"fmt"
	"math"

	"market-snapshot-lab/internal/domain"
)

// Stats summarizes the full training-record population.
type Stats struct {
	TotalRecords int                             `json:"total_records"`
	PerCategory  map[domain.ConversationType]int `json:"per_category"`

	MeanQuality   float64 `json:"mean_quality"`
	StddevQuality float64 `json:"stddev_quality"`
	MinQuality    float64 `json:"min_quality"`
	MaxQuality    float64 `json:"max_quality"`

	ValidatedCount    int     `json:"validated_count"`
	ValidatedFraction float64 `json:"validated_fraction"`
}

// Statistics computes aggregates over every stored record. An empty store
// yields all-zero statistics.
func (e *Exporter) Statistics(ctx context.Context) (*Stats, error) {
	records, err := e.records.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records for statistics: %w", err)
	}

	stats := &Stats{
		PerCategory: make(map[domain.ConversationType]int),
	}
	if len(records) == 0 {
		return stats, nil
	}

	scores := make([]float64, len(records))
	stats.MinQuality = records[0].QualityScore
	stats.MaxQuality = records[0].QualityScore
	for i, r := range records {
		stats.TotalRecords++
		stats.PerCategory[r.ConversationType]++
		scores[i] = r.QualityScore
		if r.QualityScore < stats.MinQuality {
			stats.MinQuality = r.QualityScore
		}
		if r.QualityScore > stats.MaxQuality {
			stats.MaxQuality = r.QualityScore
		}
		if r.HumanValidated {
			stats.ValidatedCount++
		}
	}

	stats.MeanQuality = computeMean(scores)
	stats.StddevQuality = computeStddev(scores, stats.MeanQuality)
	stats.ValidatedFraction = float64(stats.ValidatedCount) / float64(stats.TotalRecords)

	return stats, nil
}

// computeMean calculates the arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}
