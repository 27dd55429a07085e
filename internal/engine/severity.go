package engine

import "github.com/miradorstack/secops-investigator/internal/models"

const (
	assetWeight       = 10.0
	correlationWeight = 50.0
	alertEventWeight  = 5.0
)

// SeverityScore computes the raw score behind ScoreSeverity.
func SeverityScore(assets []models.Asset, correlations []models.CorrelationResult, tasks []*models.AgentTask) float64 {
	meanStrength := 0.0
	if len(correlations) > 0 {
		total := 0.0
		for _, correlation := range correlations {
			total += correlation.Strength
		}
		meanStrength = total / float64(len(correlations))
	}

	severeEvents := 0
	for _, task := range tasks {
		if !task.Completed() {
			continue
		}
		for _, event := range task.Result.Data {
			if v, ok := event.Field("severity"); ok && models.HighOrCritical(v.Text()) {
				severeEvents++
			}
		}
	}

	return assetWeight*float64(len(assets)) + correlationWeight*meanStrength + alertEventWeight*float64(severeEvents)
}

// ScoreSeverity is a pure function of its inputs.
func ScoreSeverity(assets []models.Asset, correlations []models.CorrelationResult, tasks []*models.AgentTask) models.Severity {
	return SeverityForScore(SeverityScore(assets, correlations, tasks))
}

// SeverityForScore maps a raw score onto a tier. Thresholds are exclusive.
func SeverityForScore(score float64) models.Severity {
	switch {
	case score > 80:
		return models.SeverityCritical
	case score > 60:
		return models.SeverityHigh
	case score > 30:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
