// Package models defines the data shared between staging, the job worker and the UI.
package models

import (
	"fmt"
	"strings"
)

// AnalysisKind selects which agents the analysis pipeline runs.
type AnalysisKind string

const (
	KindFullDueDiligence AnalysisKind = "Full Due Diligence"
	KindQuickAssessment  AnalysisKind = "Quick Assessment"
	KindFinancialReview  AnalysisKind = "Financial Review"
	KindMarketAnalysis   AnalysisKind = "Market Analysis"
	KindTeamEvaluation   AnalysisKind = "Team Evaluation"
)

// AnalysisKinds lists every kind in display order.
func AnalysisKinds() []AnalysisKind {
	return []AnalysisKind{
		KindFullDueDiligence,
		KindQuickAssessment,
		KindFinancialReview,
		KindMarketAnalysis,
		KindTeamEvaluation,
	}
}

// Slug returns the kind as a lowercase, hyphenated identifier.
func (k AnalysisKind) Slug() string {
	return strings.ReplaceAll(strings.ToLower(string(k)), " ", "-")
}

// ParseAnalysisKind accepts a display name or slug, case-insensitively.
func ParseAnalysisKind(s string) (AnalysisKind, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "-", " ", "-").Replace(norm)
	for _, k := range AnalysisKinds() {
		if k.Slug() == norm {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown analysis kind %q", s)
}
