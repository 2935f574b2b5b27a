package usecase

import "ShortScan/internal/domain/models"

// Selection is the outcome of one cycle's candidate gate.
type Selection struct {
	Decision   models.Decision
	Symbol     models.Symbol
	Result     models.SignalResult
	Candidates []models.Symbol
}

// SelectCandidate trades only when exactly one result is a candidate.
// Several candidates are treated as noise; results are never ranked.
func SelectCandidate(results []models.SignalResult) Selection {
	var sel Selection
	var only models.SignalResult
	for _, r := range results {
		if r.IsCandidate {
			sel.Candidates = append(sel.Candidates, r.Symbol)
			only = r
		}
	}

	switch len(sel.Candidates) {
	case 0:
		sel.Decision = models.DecisionNone
	case 1:
		sel.Decision = models.DecisionSelected
		sel.Symbol = only.Symbol
		sel.Result = only
	default:
		sel.Decision = models.DecisionAmbiguous
	}
	return sel
}
