package training

import (
	"fmt"
	"strings"

	"market-snapshot-lab/internal/domain"
)

// draft is one synthesized prompt/response pair before it becomes a stored
// record. Context holds exactly the snapshot and payload fields the text was
// built from.
type draft struct {
	prompt   string
	response string
	context  map[string]any
}

// synthesizer builds the drafts for one conversation category. Categories
// with nothing to say for a given snapshot return an empty slice.
type synthesizer func(snap *domain.Snapshot, payload domain.RawPayload) []draft

var synthesizers = map[domain.ConversationType]synthesizer{
	domain.ConversationAnalysisExplanation:   synthesizeAnalysisExplanations,
	domain.ConversationMarketCommentary:      synthesizeMarketCommentary,
	domain.ConversationRiskAssessment:        synthesizeRiskAssessment,
	domain.ConversationTradingRecommendation: synthesizeTradingRecommendation,
	domain.ConversationTechnicalAnalysis:     synthesizeTechnicalAnalysis,
	domain.ConversationStructuralAnalysis:    synthesizeStructuralAnalysis,
}

// synthesizeAnalysisExplanations emits one draft per analyzed timeframe plus
// one overall summary draft.
func synthesizeAnalysisExplanations(snap *domain.Snapshot, payload domain.RawPayload) []draft {
	var drafts []draft

	for _, label := range payload.TimeframeLabels() {
		tf, ok := payload.Timeframe(label)
		if !ok {
			continue
		}

		direction := "unclear"
		if d, ok := tf.TrendDirection(); ok && d != "" {
			direction = strings.ToLower(d)
		}

		response := fmt.Sprintf(
			"On the %s timeframe, %s shows a %s trend. The market condition is classified as %s with %s volatility.",
			label, snap.Ticker, direction,
			describeCondition(snap.MarketCondition), strings.ToLower(snap.VolatilityRegime.String()),
		)
		if len(tf.VolumeSeries()) > 0 {
			response += fmt.Sprintf(" Volume activity across the window reads as %s.",
				strings.ToLower(snap.VolumeProfile.String()))
		}

		drafts = append(drafts, draft{
			prompt:   fmt.Sprintf("Explain the %s timeframe analysis for %s.", label, snap.Ticker),
			response: response,
			context: map[string]any{
				"ticker":            snap.Ticker,
				"timeframe":         label,
				"trend_direction":   direction,
				"market_condition":  snap.MarketCondition.String(),
				"volatility_regime": snap.VolatilityRegime.String(),
				"volume_profile":    snap.VolumeProfile.String(),
			},
		})
	}

	// Overall summary draft.
	overall := fmt.Sprintf(
		"Across %d timeframe(s), %s is in a %s with a %s overall trend. Data quality for this analysis scores %.2f with %.2f confidence.",
		len(snap.Timeframes), snap.Ticker, describeCondition(snap.MarketCondition),
		strings.ToLower(snap.TrendDirection.String()), snap.DataQualityScore, snap.ConfidenceLevel,
	)
	drafts = append(drafts, draft{
		prompt:   fmt.Sprintf("Summarize the overall analysis for %s.", snap.Ticker),
		response: overall,
		context: map[string]any{
			"ticker":             snap.Ticker,
			"timeframes":         snap.Timeframes,
			"market_condition":   snap.MarketCondition.String(),
			"trend_direction":    snap.TrendDirection.String(),
			"data_quality_score": snap.DataQualityScore,
			"confidence_level":   snap.ConfidenceLevel,
		},
	})

	return drafts
}

func synthesizeMarketCommentary(snap *domain.Snapshot, payload domain.RawPayload) []draft {
	response := fmt.Sprintf("%s is currently in a %s during the %s session.",
		snap.Ticker, describeCondition(snap.MarketCondition), describeSession(snap.MarketSession))
	ctx := map[string]any{
		"ticker":           snap.Ticker,
		"market_condition": snap.MarketCondition.String(),
		"market_session":   snap.MarketSession.String(),
	}
	if price, ok := payload.CurrentPrice(); ok {
		response += fmt.Sprintf(" The last observed price is %.2f.", price)
		ctx["current_price"] = price
	}

	return []draft{{
		prompt:   fmt.Sprintf("What is the current market environment for %s?", snap.Ticker),
		response: response,
		context:  ctx,
	}}
}

func synthesizeRiskAssessment(snap *domain.Snapshot, payload domain.RawPayload) []draft {
	ctx := map[string]any{
		"ticker":            snap.Ticker,
		"volatility_regime": snap.VolatilityRegime.String(),
	}

	response := fmt.Sprintf("%s is trading under a %s volatility regime.",
		snap.Ticker, strings.ToLower(snap.VolatilityRegime.String()))
	if level, ok := payload.RiskLevel(); ok && level != "" {
		response += fmt.Sprintf(" The analysis engine rates the risk level as %s.", level)
		ctx["risk_level"] = level
	}
	if vol, ok := payload.Volatility(); ok {
		response += fmt.Sprintf(" Measured volatility stands at %.2f.", vol)
		ctx["volatility"] = vol
	}

	return []draft{{
		prompt:   fmt.Sprintf("Assess the risk profile of the current %s setup.", snap.Ticker),
		response: response,
		context:  ctx,
	}}
}

func synthesizeTradingRecommendation(snap *domain.Snapshot, payload domain.RawPayload) []draft {
	signalType, ok := payload.SignalType()
	if !ok || signalType == "" {
		// No signal, nothing to recommend.
		return nil
	}

	ctx := map[string]any{
		"ticker":      snap.Ticker,
		"signal_type": signalType,
	}
	response := fmt.Sprintf("The current signal for %s is %s.", snap.Ticker, signalType)
	if strength, ok := payload.SignalStrength(); ok {
		response += fmt.Sprintf(" Signal strength is %.2f.", strength)
		ctx["signal_strength"] = strength
	}
	if confidence, ok := payload.SignalConfidence(); ok {
		response += fmt.Sprintf(" Confidence in the signal is %.2f.", confidence)
		ctx["signal_confidence"] = confidence
	}
	response += fmt.Sprintf(" This aligns with the broader %s classification.",
		describeCondition(snap.MarketCondition))
	ctx["market_condition"] = snap.MarketCondition.String()

	return []draft{{
		prompt:   fmt.Sprintf("What does the current signal suggest for trading %s?", snap.Ticker),
		response: response,
		context:  ctx,
	}}
}

func synthesizeTechnicalAnalysis(snap *domain.Snapshot, payload domain.RawPayload) []draft {
	labels := payload.TimeframeLabels()
	if len(labels) == 0 {
		return nil
	}

	var parts []string
	directions := map[string]any{}
	for _, label := range labels {
		tf, ok := payload.Timeframe(label)
		if !ok {
			continue
		}
		if d, ok := tf.TrendDirection(); ok && d != "" {
			parts = append(parts, fmt.Sprintf("%s trends %s", label, strings.ToLower(d)))
			directions[label] = d
		}
	}
	if len(parts) == 0 {
		return nil
	}

	response := fmt.Sprintf("Technically, %s: %s. The dominant direction is %s and volume reads %s.",
		snap.Ticker, strings.Join(parts, ", "),
		strings.ToLower(snap.TrendDirection.String()), strings.ToLower(snap.VolumeProfile.String()))

	return []draft{{
		prompt:   fmt.Sprintf("Give a technical read of %s across its analyzed timeframes.", snap.Ticker),
		response: response,
		context: map[string]any{
			"ticker":           snap.Ticker,
			"trend_directions": directions,
			"trend_direction":  snap.TrendDirection.String(),
			"volume_profile":   snap.VolumeProfile.String(),
		},
	}}
}

// synthesizeStructuralAnalysis emits one draft per timeframe carrying
// Wyckoff structure. Snapshots without structural annotations produce none.
func synthesizeStructuralAnalysis(snap *domain.Snapshot, payload domain.RawPayload) []draft {
	var drafts []draft

	for _, label := range payload.TimeframeLabels() {
		tf, ok := payload.Timeframe(label)
		if !ok {
			continue
		}
		phases := tf.WyckoffPhases()
		events := tf.WyckoffEvents()
		if len(phases) == 0 && len(events) == 0 {
			continue
		}

		response := fmt.Sprintf("On the %s timeframe, %s shows %d Wyckoff phase annotation(s) and %d event annotation(s), consistent with a %s.",
			label, snap.Ticker, len(phases), len(events), describeCondition(snap.MarketCondition))

		drafts = append(drafts, draft{
			prompt:   fmt.Sprintf("Describe the market structure of %s on the %s timeframe.", snap.Ticker, label),
			response: response,
			context: map[string]any{
				"ticker":              snap.Ticker,
				"timeframe":           label,
				"wyckoff_phase_count": len(phases),
				"wyckoff_event_count": len(events),
				"market_condition":    snap.MarketCondition.String(),
			},
		})
	}

	return drafts
}

func describeCondition(c domain.MarketCondition) string {
	switch c {
	case domain.ConditionBullMarket:
		return "bull market"
	case domain.ConditionBearMarket:
		return "bear market"
	default:
		return "sideways market"
	}
}

func describeSession(s domain.MarketSession) string {
	switch s {
	case domain.SessionPreMarket:
		return "pre-market"
	case domain.SessionAfterHours:
		return "after-hours"
	case domain.SessionClosed:
		return "closed"
	default:
		return "regular"
	}
}
