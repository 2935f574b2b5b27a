package models

// Requests for scanner HTTP endpoints. Defined in domain for consistency and reuse.

type CyclesRequest struct {
	Limit int `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=500"`
}

type SignalRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	Limit  int    `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=500"`
}

type BaselineRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}
