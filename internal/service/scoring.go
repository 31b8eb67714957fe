package service

import (
	"math"

	"bike-marketplace/internal/models"
)

var warnPenalty = map[string]float64{
	models.SeverityLow:      0.5,
	models.SeverityMedium:   1,
	models.SeverityCritical: 2,
}

var failPenalty = map[string]float64{
	models.SeverityLow:    1.5,
	models.SeverityMedium: 3,
}

// ScoreCheckpoints computes the 1-10 condition score. A critical failure
// floors the score.
func ScoreCheckpoints(cps []models.Checkpoint) float64 {
	score := 10.0
	for _, cp := range cps {
		switch cp.Status {
		case models.CheckpointWarn:
			score -= warnPenalty[cp.Severity]
		case models.CheckpointFail:
			if cp.Severity == models.SeverityCritical {
				return 1
			}
			score -= failPenalty[cp.Severity]
		}
	}
	if score < 1 {
		score = 1
	}
	return math.Round(score*10) / 10
}

// hasCriticalFailure reports whether any checkpoint failed with CRITICAL severity
func hasCriticalFailure(cps []models.Checkpoint) bool {
	for _, cp := range cps {
		if cp.Status == models.CheckpointFail && cp.Severity == models.SeverityCritical {
			return true
		}
	}
	return false
}

// VerdictFor derives the overall verdict from the checkpoints and score
func VerdictFor(cps []models.Checkpoint, score float64) string {
	if hasCriticalFailure(cps) || score < 5 {
		return models.VerdictFailed
	}
	for _, cp := range cps {
		if cp.Status == models.CheckpointFail {
			return models.VerdictSuggestAdjustment
		}
	}
	if score < 8 {
		return models.VerdictSuggestAdjustment
	}
	return models.VerdictPassed
}

// GradeFor maps a score to a letter grade
func GradeFor(score float64) string {
	switch {
	case score >= 9:
		return "A"
	case score >= 7:
		return "B"
	case score >= 5:
		return "C"
	default:
		return "D"
	}
}
