package domain

// RawPayload is the full, otherwise-unvalidated analysis result produced by
// the upstream analysis engine. It is stored whole and treated as opaque by
// the metadata index; only the accessors below are read during
// classification and training-example synthesis. All sub-fields are
// optional and readers must degrade gracefully on absence.
//
// Expected shape:
//
//	{
//	  "currentPrice": 123.45,
//	  "signal": {"type": "...", "strength": 0.0, "confidence": 0.0},
//	  "riskAssessment": {"riskLevel": "...", "volatility": 0.0},
//	  "timeframeAnalyses": {"<label>": { ... per-timeframe blocks ... }}
//	}
type RawPayload map[string]any

// CurrentPrice returns the payload's current price, if present.
func (p RawPayload) CurrentPrice() (float64, bool) {
	return asFloat(p["currentPrice"])
}

// Signal returns the signal block, if present.
func (p RawPayload) Signal() (map[string]any, bool) {
	return asObject(p["signal"])
}

// SignalType returns signal.type, if present.
func (p RawPayload) SignalType() (string, bool) {
	sig, ok := p.Signal()
	if !ok {
		return "", false
	}
	return asString(sig["type"])
}

// SignalStrength returns signal.strength, if present.
func (p RawPayload) SignalStrength() (float64, bool) {
	sig, ok := p.Signal()
	if !ok {
		return 0, false
	}
	return asFloat(sig["strength"])
}

// SignalConfidence returns signal.confidence, if present.
func (p RawPayload) SignalConfidence() (float64, bool) {
	sig, ok := p.Signal()
	if !ok {
		return 0, false
	}
	return asFloat(sig["confidence"])
}

// RiskAssessment returns the riskAssessment block, if present.
func (p RawPayload) RiskAssessment() (map[string]any, bool) {
	return asObject(p["riskAssessment"])
}

// RiskLevel returns riskAssessment.riskLevel, if present.
func (p RawPayload) RiskLevel() (string, bool) {
	risk, ok := p.RiskAssessment()
	if !ok {
		return "", false
	}
	return asString(risk["riskLevel"])
}

// Volatility returns riskAssessment.volatility, if present.
func (p RawPayload) Volatility() (float64, bool) {
	risk, ok := p.RiskAssessment()
	if !ok {
		return 0, false
	}
	return asFloat(risk["volatility"])
}

// HasTimeframeAnalyses reports whether the payload carries a
// timeframeAnalyses block, even an empty one.
func (p RawPayload) HasTimeframeAnalyses() bool {
	_, ok := asObject(p["timeframeAnalyses"])
	return ok
}

// TimeframeLabels returns the timeframe labels present in the payload in
// canonical order (see SortTimeframes).
func (p RawPayload) TimeframeLabels() []string {
	analyses, ok := asObject(p["timeframeAnalyses"])
	if !ok {
		return nil
	}
	labels := make([]string, 0, len(analyses))
	for label := range analyses {
		labels = append(labels, label)
	}
	SortTimeframes(labels)
	return labels
}

// Timeframe returns the analysis block for one timeframe label, if present.
func (p RawPayload) Timeframe(label string) (TimeframeAnalysis, bool) {
	analyses, ok := asObject(p["timeframeAnalyses"])
	if !ok {
		return nil, false
	}
	tf, ok := asObject(analyses[label])
	if !ok {
		return nil, false
	}
	return TimeframeAnalysis(tf), true
}

// TimeframeAnalysis is the per-timeframe block inside a raw payload.
type TimeframeAnalysis map[string]any

// ProcessedData returns the processedData block, if present.
func (t TimeframeAnalysis) ProcessedData() (map[string]any, bool) {
	return asObject(t["processedData"])
}

// VolumeSeries returns processedData.volume as a float slice. Non-numeric
// entries are skipped. Returns nil when the series is absent or empty.
func (t TimeframeAnalysis) VolumeSeries() []float64 {
	pd, ok := t.ProcessedData()
	if !ok {
		return nil
	}
	raw, ok := pd["volume"].([]any)
	if !ok {
		return nil
	}
	var series []float64
	for _, v := range raw {
		if f, ok := asFloat(v); ok {
			series = append(series, f)
		}
	}
	return series
}

// TrendDirection returns trendAnalysis.direction, if present.
func (t TimeframeAnalysis) TrendDirection() (string, bool) {
	trend, ok := asObject(t["trendAnalysis"])
	if !ok {
		return "", false
	}
	return asString(trend["direction"])
}

// HasWyckoffPhases reports whether the timeframe carries a non-empty
// wyckoffPhases list.
func (t TimeframeAnalysis) HasWyckoffPhases() bool {
	return hasNonEmptyList(t["wyckoffPhases"])
}

// HasWyckoffEvents reports whether the timeframe carries a non-empty
// wyckoffEvents list.
func (t TimeframeAnalysis) HasWyckoffEvents() bool {
	return hasNonEmptyList(t["wyckoffEvents"])
}

// HasAnnotatedData reports whether the timeframe carries an annotatedData
// block.
func (t TimeframeAnalysis) HasAnnotatedData() bool {
	_, ok := asObject(t["annotatedData"])
	return ok
}

// WyckoffPhases returns the wyckoffPhases list, if present.
func (t TimeframeAnalysis) WyckoffPhases() []any {
	list, _ := t["wyckoffPhases"].([]any)
	return list
}

// WyckoffEvents returns the wyckoffEvents list, if present.
func (t TimeframeAnalysis) WyckoffEvents() []any {
	list, _ := t["wyckoffEvents"].([]any)
	return list
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// asFloat accepts float64 (JSON decode) and int (programmatic construction).
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func hasNonEmptyList(v any) bool {
	list, ok := v.([]any)
	return ok && len(list) > 0
}
