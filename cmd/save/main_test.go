package main

import (
	"testing"

	"market-snapshot-lab/internal/domain"
)

func TestDefaultAnalysisTypeParses(t *testing.T) {
	got, err := domain.ParseAnalysisType(defaultAnalysisType)
	if err != nil {
		t.Fatalf("flag default %q rejected: %v", defaultAnalysisType, err)
	}
	if got != domain.AnalysisFull {
		t.Fatalf("flag default parsed to %q, want %q", got, domain.AnalysisFull)
	}
}
