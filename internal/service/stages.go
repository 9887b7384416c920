package service

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// FallbackStage is shown when the analyzer reports no stages.
	FallbackStage = "Finalizing analysis..."

	// stageCeiling leaves headroom between the last stage and completion.
	stageCeiling = 0.95
)

// NormalizeStages drops blank names. A nil list becomes an empty one.
func NormalizeStages(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// StageLabel turns an agent name like "due_diligence" into
// "Running Due Diligence Agent...". A Caser is stateful, so each call
// builds its own.
func StageLabel(name string) string {
	title := cases.Title(language.Und).String(strings.ReplaceAll(name, "_", " "))
	return "Running " + title + " Agent..."
}

// StageLabels builds the display labels for executed stages, falling back
// to a single finalization stage when there are none.
func StageLabels(names []string) []string {
	if len(names) == 0 {
		return []string{FallbackStage}
	}
	labels := make([]string, len(names))
	for i, name := range names {
		labels[i] = StageLabel(name)
	}
	return labels
}

// StageProgress is the progress shown while stage i of n is displayed.
func StageProgress(i, n int) float64 {
	if n <= 0 {
		return stageCeiling
	}
	return float64(i+1) / float64(n) * stageCeiling
}
