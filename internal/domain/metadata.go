package domain

// Metadata is the full classifier output for one snapshot. The snapshot row
// persists these fields as columns plus the whole object as a raw JSON blob
// for forward compatibility, so the struct carries its wire tags here.
type Metadata struct {
	MarketCondition  MarketCondition  `json:"market_condition"`
	VolatilityRegime VolatilityRegime `json:"volatility_regime"`
	MarketSession    MarketSession    `json:"market_session"`
	VolumeProfile    VolumeProfile    `json:"volume_profile"`
	TrendDirection   TrendDirection   `json:"trend_direction"`
	DataQualityScore float64          `json:"data_quality_score"`
	ConfidenceLevel  float64          `json:"confidence_level"`
	Timeframes       []string         `json:"timeframes"`

	// Warnings records default substitutions applied for missing or
	// malformed payload sub-fields during classification.
	Warnings []string `json:"warnings,omitempty"`
}
