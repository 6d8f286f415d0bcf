package domain

import "fmt"

// AnalysisType identifies which analysis pipeline produced a snapshot.
type AnalysisType string

const (
	AnalysisFull    AnalysisType = "FULL"
	AnalysisTrend   AnalysisType = "TREND"
	AnalysisCandle  AnalysisType = "CANDLE"
	AnalysisPattern AnalysisType = "PATTERN"
	AnalysisWyckoff AnalysisType = "WYCKOFF"
)

// String returns the string representation of AnalysisType.
func (a AnalysisType) String() string {
	return string(a)
}

// IsValid checks if the analysis type is a valid value.
func (a AnalysisType) IsValid() bool {
	switch a {
	case AnalysisFull, AnalysisTrend, AnalysisCandle, AnalysisPattern, AnalysisWyckoff:
		return true
	}
	return false
}

// ParseAnalysisType decodes the wire form of AnalysisType.
// Unknown strings are rejected rather than constructed.
func ParseAnalysisType(s string) (AnalysisType, error) {
	a := AnalysisType(s)
	if !a.IsValid() {
		return "", fmt.Errorf("unknown analysis type %q", s)
	}
	return a, nil
}
