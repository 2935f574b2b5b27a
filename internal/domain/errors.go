package domain

import "errors"

// Error taxonomy shared by the scanner. Per-symbol errors (DataUnavailable,
// DivisionGuard) are local to one evaluation; SizingOverflow aborts a cycle;
// BudgetExceeded ends the process.
var (
	ErrDataUnavailable = errors.New("data unavailable")
	ErrDivisionGuard   = errors.New("division guard")
	ErrSizingOverflow  = errors.New("sizing overflow")
	ErrPlanEmpty       = errors.New("trade plan empty")
	ErrOrderGateway    = errors.New("order gateway failure")
	ErrBudgetExceeded  = errors.New("run budget exceeded")
	ErrSequencerBusy   = errors.New("trade sequencer busy")
)
