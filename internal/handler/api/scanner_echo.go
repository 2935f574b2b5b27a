package api

import (
	"strings"

	"ShortScan/internal/domain/models"
	"ShortScan/internal/service/ratelimit"
	"ShortScan/internal/usecase"
	xhttp "ShortScan/pkg/http"
	xlogger "ShortScan/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StatusSource reports scheduler progress.
type StatusSource interface {
	Stats() usecase.Stats
}

// ReportSource serves buffered cycle reports and trades.
type ReportSource interface {
	Recent(limit int) []*models.CycleReport
	Latest() (*models.CycleReport, bool)
	SignalHistory(symbol models.Symbol, limit int) []models.SignalRecord
	Trades() []models.TradeOutcome
}

// BaselineSource looks up per-symbol session baselines.
type BaselineSource interface {
	Entry(symbol models.Symbol) (models.BaselineEntry, bool)
}

// FeedStatus reports whether the market feed is up.
type FeedStatus interface {
	IsConnected() bool
}

type StatusResponse struct {
	Scheduler usecase.Stats         `json:"scheduler"`
	Latest    *models.CycleReport   `json:"latest,omitempty"`
	Trades    []models.TradeOutcome `json:"trades"`
}

type ReadyResponse struct {
	CyclesRun     int  `json:"cycles_run"`
	FeedConnected bool `json:"feed_connected"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	FeedConnected bool   `json:"feed_connected"`
}

// ScannerEchoHandler serves read-only views of the scanner.
type ScannerEchoHandler struct {
	logger    *xlogger.Logger
	status    StatusSource
	reports   ReportSource
	baselines BaselineSource
	feed      FeedStatus
	limiter   *ratelimit.Limiter
}

// NewScannerEchoHandler builds the handler. feed and limiter may be nil.
func NewScannerEchoHandler(logger *xlogger.Logger, status StatusSource, reports ReportSource, baselines BaselineSource,
	feed FeedStatus, limiter *ratelimit.Limiter) *ScannerEchoHandler {
	return &ScannerEchoHandler{
		logger:    logger,
		status:    status,
		reports:   reports,
		baselines: baselines,
		feed:      feed,
		limiter:   limiter,
	}
}

func (h *ScannerEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/readyz", h.Ready)

	g := e.Group("/api", h.rateLimit)
	g.GET("/status", h.Status)
	g.GET("/cycles", h.Cycles)
	g.GET("/signals", h.Signals)
	g.GET("/baseline", h.Baseline)
}

func (h *ScannerEchoHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
			h.logger.Warn("api rate limited", xlogger.String("remote", c.RealIP()), xlogger.String("path", c.Path()))
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited").WithParam("remote", c.RealIP()))
		}
		return next(c)
	}
}

func (h *ScannerEchoHandler) Health(c echo.Context) error {
	res := HealthResponse{Status: "ok", FeedConnected: true}
	if h.feed != nil {
		res.FeedConnected = h.feed.IsConnected()
	}
	if !res.FeedConnected {
		res.Status = "degraded"
	}
	return xhttp.SuccessResponse(c, res)
}

// Ready reports 503 until a cycle has run and while the feed is down.
func (h *ScannerEchoHandler) Ready(c echo.Context) error {
	res := ReadyResponse{CyclesRun: h.status.Stats().CyclesRun, FeedConnected: true}
	if h.feed != nil {
		res.FeedConnected = h.feed.IsConnected()
	}
	if res.CyclesRun == 0 || !res.FeedConnected {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("scanner not ready").
			WithParam("cycles_run", res.CyclesRun).
			WithParam("feed_connected", res.FeedConnected))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ScannerEchoHandler) Status(c echo.Context) error {
	res := StatusResponse{Scheduler: h.status.Stats(), Trades: h.reports.Trades()}
	if latest, ok := h.reports.Latest(); ok {
		res.Latest = latest
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, res)
}

func (h *ScannerEchoHandler) Cycles(c echo.Context) error {
	req := &models.CyclesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.reports.Recent(req.Limit)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ScannerEchoHandler) Signals(c echo.Context) error {
	req := &models.SignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sym := normalize(req.Symbol)
	if sym == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("symbol is empty").WithParam("field", "symbol"))
	}
	rows := h.reports.SignalHistory(sym, req.Limit)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ScannerEchoHandler) Baseline(c echo.Context) error {
	req := &models.BaselineRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sym := normalize(req.Symbol)
	if sym == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("symbol is empty").WithParam("field", "symbol"))
	}
	entry, ok := h.baselines.Entry(sym)
	if !ok {
		h.logger.Debug("baseline not found", xlogger.String("symbol", sym.String()))
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no baseline for %s", sym).WithParam("symbol", sym.String()))
	}
	return xhttp.SuccessResponse(c, entry)
}

func normalize(s string) models.Symbol {
	return models.Symbol(strings.ToUpper(strings.TrimSpace(s)))
}
