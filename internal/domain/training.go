package domain

import (
	"fmt"
	"time"
)

// ConversationType categorizes a synthesized training record.
type ConversationType string

const (
	ConversationAnalysisExplanation   ConversationType = "analysis_explanation"
	ConversationMarketCommentary      ConversationType = "market_commentary"
	ConversationRiskAssessment        ConversationType = "risk_assessment"
	ConversationTradingRecommendation ConversationType = "trading_recommendation"
	ConversationTechnicalAnalysis     ConversationType = "technical_analysis"
	ConversationStructuralAnalysis    ConversationType = "structural_analysis"
)

// String returns the string representation of ConversationType.
func (c ConversationType) String() string {
	return string(c)
}

// IsValid checks if the conversation type is a valid value.
func (c ConversationType) IsValid() bool {
	switch c {
	case ConversationAnalysisExplanation, ConversationMarketCommentary,
		ConversationRiskAssessment, ConversationTradingRecommendation,
		ConversationTechnicalAnalysis, ConversationStructuralAnalysis:
		return true
	}
	return false
}

// ParseConversationType decodes the wire form of ConversationType.
func ParseConversationType(s string) (ConversationType, error) {
	c := ConversationType(s)
	if !c.IsValid() {
		return "", fmt.Errorf("unknown conversation type %q", s)
	}
	return c, nil
}

// DefaultConversationTypes returns the default category set used by the
// training-example generator when the caller does not request specific
// categories.
func DefaultConversationTypes() []ConversationType {
	return []ConversationType{
		ConversationAnalysisExplanation,
		ConversationMarketCommentary,
		ConversationRiskAssessment,
		ConversationTradingRecommendation,
		ConversationTechnicalAnalysis,
		ConversationStructuralAnalysis,
	}
}

// DefaultTrainingQualityScore is the heuristic quality score assigned to
// newly synthesized records. It is never recomputed.
const DefaultTrainingQualityScore = 0.8

// TrainingRecord is a synthesized prompt/response pair derived from a
// snapshot. Corresponds to the training_records table. Mutable only via
// the HumanValidated flag after creation.
type TrainingRecord struct {
	ID               string           // UUID
	SnapshotID       string           // snapshot that produced this record
	ConversationType ConversationType // fixed category set
	Prompt           string
	Response         string

	// Context captures exactly the subset of snapshot fields used in
	// synthesis, for auditability and filtered export.
	Context map[string]any

	QualityScore   float64 // [0.0, 1.0], default 0.8
	HumanValidated bool
	CreatedAt      time.Time
}
