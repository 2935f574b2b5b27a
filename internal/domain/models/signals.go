package models

import "time"

// Decision is the outcome of candidate selection for one cycle.
type Decision string

const (
	DecisionNone           Decision = "none"
	DecisionAmbiguous      Decision = "ambiguous"
	DecisionSelected       Decision = "selected"
	DecisionBusy           Decision = "busy"
	DecisionSizingOverflow Decision = "sizing_overflow"
)

// CycleReport is the consolidated view of one scan cycle.
// No transport concerns here; handlers and sinks shape it as needed.
type CycleReport struct {
	CycleID    string         `json:"cycle_id"`
	Session    string         `json:"session"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
	Evaluated  int            `json:"evaluated"`
	Skipped    int            `json:"skipped"`
	Candidates []Symbol       `json:"candidates"`
	Decision   Decision       `json:"decision"`
	Selected   Symbol         `json:"selected,omitempty"`
	Records    []SignalRecord `json:"records"`
}

// Record returns the record for a symbol in this cycle, if any.
func (r *CycleReport) Record(sym Symbol) (SignalRecord, bool) {
	for _, rec := range r.Records {
		if rec.Symbol == sym {
			return rec, true
		}
	}
	return SignalRecord{}, false
}
