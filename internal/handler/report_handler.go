package handler

import (
	"github.com/fleet-bridge/internal/models"
	"github.com/fleet-bridge/internal/queue"
	"github.com/fleet-bridge/internal/service"
	"github.com/fleet-bridge/pkg/response"
	"github.com/gin-gonic/gin"
)

// ReportHandler serves P&L reports, threshold checks and queue stats
type ReportHandler struct {
	reports *service.ReportService
	q       *queue.RetryQueue[models.TradeCommand]
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(reports *service.ReportService, q *queue.RetryQueue[models.TradeCommand]) *ReportHandler {
	return &ReportHandler{reports: reports, q: q}
}

// RegisterRoutes registers report routes behind the auth middleware
func (h *ReportHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	reports := rg.Group("", authMiddleware)
	{
		reports.POST("/executors/:id/pnl", h.PnLReport)
		reports.POST("/executors/:id/pnl/thresholds", h.Thresholds)
		reports.GET("/executors/:id/pnl/realized", h.Realized)
		reports.GET("/queue/stats", h.QueueStats)
	}
}

// PnLReportRequest carries the current price per symbol. Positions
// whose symbol is missing are valued at their open price.
type PnLReportRequest struct {
	Prices map[string]float64 `json:"prices"`
}

// PnLReport handles POST /executors/:id/pnl
func (h *ReportHandler) PnLReport(c *gin.Context) {
	var req PnLReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	report, err := h.reports.BuildReport(c.Param("id"), req.Prices)
	if err != nil {
		response.InternalError(c, "failed to build report")
		return
	}
	response.Success(c, report)
}

// ThresholdsRequest carries the prices plus the operator's limits
type ThresholdsRequest struct {
	Prices          map[string]float64 `json:"prices"`
	ProfitThreshold float64            `json:"profit_threshold" binding:"required,gt=0"`
	LossThreshold   float64            `json:"loss_threshold" binding:"required,gt=0"`
}

// Thresholds handles POST /executors/:id/pnl/thresholds
func (h *ReportHandler) Thresholds(c *gin.Context) {
	var req ThresholdsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.reports.CheckThresholds(c.Param("id"), req.Prices, req.ProfitThreshold, req.LossThreshold)
	if err != nil {
		response.InternalError(c, "failed to check thresholds")
		return
	}
	response.Success(c, result)
}

// Realized handles GET /executors/:id/pnl/realized
func (h *ReportHandler) Realized(c *gin.Context) {
	figures, err := h.reports.RealizedFigures(c.Param("id"))
	if err != nil {
		response.InternalError(c, "failed to compute realized figures")
		return
	}
	response.Success(c, figures)
}

// QueueStats handles GET /queue/stats
func (h *ReportHandler) QueueStats(c *gin.Context) {
	response.Success(c, h.q.GetStats())
}
