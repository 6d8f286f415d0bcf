// Package classify derives descriptive snapshot metadata from raw analysis
// payloads. Classification is a pure function over the payload: missing or
// malformed sub-fields are substituted with documented defaults and recorded
// as warnings, never surfaced as errors.
package classify

import (
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/observability"
)

// QualityWeights holds the additive data-quality scoring weights. The
// defaults must be preserved exactly for compatibility with previously
// scored snapshots, but they are plain constants rather than a calibrated
// model.
type QualityWeights struct {
	Ticker           float64 // non-empty ticker
	CurrentPrice     float64 // non-zero current price
	Signal           float64 // signal block present
	RiskAssessment   float64 // risk-assessment block present
	TimeframeBlock   float64 // per-timeframe analysis block present
	PerTimeframeItem float64 // each of: processed data, phases, events, annotated data
	MaxPoints        float64 // score divisor; final score capped at 1.0
}

// DefaultQualityWeights returns the canonical scoring weights.
func DefaultQualityWeights() QualityWeights {
	return QualityWeights{
		Ticker:           1.0,
		CurrentPrice:     1.0,
		Signal:           2.0,
		RiskAssessment:   2.0,
		TimeframeBlock:   2.0,
		PerTimeframeItem: 0.5,
		MaxPoints:        10.0,
	}
}

// exchangeTimezone is the timezone market-session hours are evaluated in.
// Session boundaries are exchange-local; timestamps are normalized here
// before reading the hour-of-day.
const exchangeTimezone = "America/New_York"

// Config adjusts classifier behavior. The zero value selects the defaults.
type Config struct {
	// SessionLocation overrides the timezone used for market-session
	// classification. Defaults to America/New_York.
	SessionLocation *time.Location

	// Weights overrides the data-quality scoring weights.
	Weights *QualityWeights
}

// Classifier derives metadata from raw payloads.
type Classifier struct {
	loc     *time.Location
	weights QualityWeights
	logger  *zap.Logger
}

// New creates a Classifier. A nil config selects exchange-local session
// hours and the default quality weights.
func New(logger *zap.Logger, cfg *Config) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Classifier{
		weights: DefaultQualityWeights(),
		logger:  logger,
	}

	if cfg != nil && cfg.SessionLocation != nil {
		c.loc = cfg.SessionLocation
	} else {
		loc, err := time.LoadLocation(exchangeTimezone)
		if err != nil {
			logger.Warn("exchange timezone unavailable, falling back to UTC",
				zap.String("timezone", exchangeTimezone),
				zap.Error(err))
			loc = time.UTC
		}
		c.loc = loc
	}

	if cfg != nil && cfg.Weights != nil {
		c.weights = *cfg.Weights
	}

	return c
}

// Classify derives the full metadata object for one payload. It never fails:
// every missing or malformed sub-field falls back to a documented default
// and is recorded in Metadata.Warnings.
func (c *Classifier) Classify(payload domain.RawPayload, ticker string, timestamp time.Time) *domain.Metadata {
	md := &domain.Metadata{}

	signalType, ok := payload.SignalType()
	if !ok {
		md.Warnings = append(md.Warnings, "signal type missing, market condition defaults to SIDEWAYS")
	}
	md.MarketCondition = marketCondition(signalType)

	volatility, ok := payload.Volatility()
	if !ok {
		// Conservative default, not a signal of low risk.
		volatility = 0.0
		md.Warnings = append(md.Warnings, "volatility missing, defaulting to 0.0")
	}
	md.VolatilityRegime = volatilityRegime(volatility)

	md.MarketSession = marketSession(timestamp.In(c.loc).Hour())

	confidence, ok := payload.SignalConfidence()
	if !ok {
		md.Warnings = append(md.Warnings, "signal confidence missing, defaulting to 0.0")
	}
	md.ConfidenceLevel = clamp01(confidence)

	md.Timeframes = payload.TimeframeLabels()
	md.DataQualityScore = c.qualityScore(payload, ticker)
	md.VolumeProfile = volumeProfile(payload, md.Timeframes)
	md.TrendDirection = trendDirection(payload, md.Timeframes)

	for _, w := range md.Warnings {
		observability.RecordClassificationWarning()
		c.logger.Warn("classifier default substituted",
			zap.String("ticker", ticker),
			zap.String("warning", w))
	}

	return md
}

// marketCondition inspects the signal type case-insensitively.
func marketCondition(signalType string) domain.MarketCondition {
	upper := strings.ToUpper(signalType)
	switch {
	case strings.Contains(upper, "BUY"):
		return domain.ConditionBullMarket
	case strings.Contains(upper, "SELL"):
		return domain.ConditionBearMarket
	default:
		return domain.ConditionSideways
	}
}

// volatilityRegime buckets a volatility value. Boundaries are half-open:
// a value exactly on a boundary falls into the higher regime.
func volatilityRegime(v float64) domain.VolatilityRegime {
	switch {
	case v < 0.15:
		return domain.VolatilityLow
	case v < 0.25:
		return domain.VolatilityMedium
	case v < 0.40:
		return domain.VolatilityHigh
	default:
		return domain.VolatilityExtreme
	}
}

// marketSession buckets the exchange-local hour of day.
func marketSession(hour int) domain.MarketSession {
	switch {
	case hour >= 9 && hour < 16:
		return domain.SessionRegular
	case hour >= 4 && hour < 9:
		return domain.SessionPreMarket
	case hour >= 16 && hour < 20:
		return domain.SessionAfterHours
	default:
		return domain.SessionClosed
	}
}

// qualityScore computes the additive data-quality heuristic, capped at 1.0.
func (c *Classifier) qualityScore(payload domain.RawPayload, ticker string) float64 {
	w := c.weights
	points := 0.0

	if ticker != "" {
		points += w.Ticker
	}
	if price, ok := payload.CurrentPrice(); ok && price != 0 {
		points += w.CurrentPrice
	}
	if _, ok := payload.Signal(); ok {
		points += w.Signal
	}
	if _, ok := payload.RiskAssessment(); ok {
		points += w.RiskAssessment
	}
	if payload.HasTimeframeAnalyses() {
		points += w.TimeframeBlock
	}

	for _, label := range payload.TimeframeLabels() {
		tf, ok := payload.Timeframe(label)
		if !ok {
			continue
		}
		if _, ok := tf.ProcessedData(); ok {
			points += w.PerTimeframeItem
		}
		if tf.HasWyckoffPhases() {
			points += w.PerTimeframeItem
		}
		if tf.HasWyckoffEvents() {
			points += w.PerTimeframeItem
		}
		if tf.HasAnnotatedData() {
			points += w.PerTimeframeItem
		}
	}

	return math.Min(points/w.MaxPoints, 1.0)
}

// volumeProfile classifies each timeframe's latest volume against that
// timeframe's mean and reports the most frequent label. Ties break toward
// the label first seen in canonical timeframe order.
func volumeProfile(payload domain.RawPayload, labels []string) domain.VolumeProfile {
	counts := make(map[domain.VolumeProfile]int)
	var seen []domain.VolumeProfile

	for _, label := range labels {
		tf, ok := payload.Timeframe(label)
		if !ok {
			continue
		}
		series := tf.VolumeSeries()
		if len(series) == 0 {
			continue
		}

		sum := 0.0
		for _, v := range series {
			sum += v
		}
		mean := sum / float64(len(series))
		latest := series[len(series)-1]

		var lbl domain.VolumeProfile
		switch {
		case latest > 1.5*mean:
			lbl = domain.VolumeHigh
		case latest < 0.5*mean:
			lbl = domain.VolumeLow
		default:
			lbl = domain.VolumeNormal
		}

		if counts[lbl] == 0 {
			seen = append(seen, lbl)
		}
		counts[lbl]++
	}

	if len(seen) == 0 {
		return domain.VolumeUnknown
	}

	best := seen[0]
	for _, lbl := range seen[1:] {
		if counts[lbl] > counts[best] {
			best = lbl
		}
	}
	return best
}

// trendDirection reports the most frequent per-timeframe trend direction.
// Direction strings the engine does not emit as UP/DOWN/FLAT variants are
// skipped; no usable direction at all yields UNKNOWN.
func trendDirection(payload domain.RawPayload, labels []string) domain.TrendDirection {
	counts := make(map[domain.TrendDirection]int)
	var seen []domain.TrendDirection

	for _, label := range labels {
		tf, ok := payload.Timeframe(label)
		if !ok {
			continue
		}
		raw, ok := tf.TrendDirection()
		if !ok {
			continue
		}

		var dir domain.TrendDirection
		upper := strings.ToUpper(raw)
		switch {
		case strings.Contains(upper, "UP"):
			dir = domain.TrendUp
		case strings.Contains(upper, "DOWN"):
			dir = domain.TrendDown
		case upper == "FLAT" || upper == "SIDEWAYS" || upper == "NEUTRAL":
			dir = domain.TrendFlat
		default:
			continue
		}

		if counts[dir] == 0 {
			seen = append(seen, dir)
		}
		counts[dir]++
	}

	if len(seen) == 0 {
		return domain.TrendUnknown
	}

	best := seen[0]
	for _, dir := range seen[1:] {
		if counts[dir] > counts[best] {
			best = dir
		}
	}
	return best
}

func clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}
