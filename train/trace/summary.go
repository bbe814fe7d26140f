package trace

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TraceSummary aggregates statistics from a TrainingTrace.
type TraceSummary struct {
	TotalDecisions int            `json:"total_decisions"`
	AdmittedCount  int            `json:"admitted_count"`
	DeniedCount    int            `json:"denied_count"`
	DenialReasons  map[string]int `json:"denial_reasons"`
	CompletedSteps int            `json:"completed_steps"`
	FailedSteps    int            `json:"failed_steps"`
	MeanUpdate     float64        `json:"mean_update"`
	StdUpdate      float64        `json:"std_update"`
	MaxAbsUpdate   float64        `json:"max_abs_update"`
	FirstLoss      float64        `json:"first_loss"`
	LastLoss       float64        `json:"last_loss"`
	DistinctSeeds  int            `json:"distinct_seeds_used"`
}

// Summarize computes aggregate statistics from a TrainingTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(tt *TrainingTrace) *TraceSummary {
	summary := &TraceSummary{
		DenialReasons: make(map[string]int),
	}
	if tt == nil {
		return summary
	}

	summary.TotalDecisions = len(tt.Admissions)
	for _, a := range tt.Admissions {
		if a.Admitted {
			summary.AdmittedCount++
		} else {
			summary.DeniedCount++
			summary.DenialReasons[a.Reason]++
		}
	}

	updates := make([]float64, 0, len(tt.Steps))
	seeds := make(map[uint64]bool)
	for _, s := range tt.Steps {
		if s.Failed {
			summary.FailedSteps++
			continue
		}
		summary.CompletedSteps++
		seeds[s.Seed] = true
		u := float64(s.Update)
		updates = append(updates, u)
		summary.MaxAbsUpdate = math.Max(summary.MaxAbsUpdate, math.Abs(u))
		if summary.CompletedSteps == 1 {
			summary.FirstLoss = float64(s.Loss)
		}
		summary.LastLoss = float64(s.Loss)
	}
	summary.DistinctSeeds = len(seeds)

	switch len(updates) {
	case 0:
	case 1:
		summary.MeanUpdate = updates[0]
	default:
		summary.MeanUpdate, summary.StdUpdate = stat.MeanStdDev(updates, nil)
	}

	return summary
}
