package domain

import "time"

// Snapshot represents one immutable capture of an analysis result plus
// derived metadata. Corresponds to the snapshots table in PostgreSQL.
// The raw analysis payload itself lives in the payload store; the snapshot
// row only carries an opaque reference to it.
type Snapshot struct {
	ID              string          // PRIMARY KEY, deterministic hash
	Ticker          string          // analyzed instrument
	Timestamp       time.Time       // instant of analysis (timezone-aware)
	AnalysisType    AnalysisType    // FULL | TREND | CANDLE | PATTERN | WYCKOFF
	MarketCondition MarketCondition // BULL_MARKET | BEAR_MARKET | SIDEWAYS

	// Classifier-derived fields
	Timeframes       []string // timeframe labels present in the payload, canonical order
	DataQualityScore float64  // [0.0, 1.0]
	ConfidenceLevel  float64  // [0.0, 1.0]
	MarketSession    MarketSession
	VolatilityRegime VolatilityRegime
	VolumeProfile    VolumeProfile
	TrendDirection   TrendDirection

	// Caller-supplied annotations
	Tags         []string
	AnalystNotes string

	PayloadLocation string    // opaque reference into the payload store
	CreatedAt       time.Time // record creation timestamp
}
