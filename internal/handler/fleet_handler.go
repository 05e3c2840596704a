package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/fleet-bridge/internal/middleware"
	"github.com/fleet-bridge/internal/models"
	"github.com/fleet-bridge/internal/queue"
	"github.com/fleet-bridge/internal/repository"
	"github.com/fleet-bridge/internal/service"
	"github.com/fleet-bridge/pkg/response"
	"github.com/gin-gonic/gin"
)

// FleetHandler fronts the fleet core's surface
type FleetHandler struct {
	fleet *service.FleetService
}

// NewFleetHandler creates a new FleetHandler
func NewFleetHandler(fleet *service.FleetService) *FleetHandler {
	return &FleetHandler{fleet: fleet}
}

// RegisterRoutes registers fleet routes behind the auth middleware
func (h *FleetHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	executors := rg.Group("/executors", authMiddleware)
	{
		executors.POST("", h.Register)
		executors.GET("", h.List)
		executors.GET("/:id/status", h.GetStatus)
		executors.GET("/:id/audit", h.AuditTrail)
		executors.POST("/:id/commands", middleware.CommandLoggerMiddleware(), h.SendCommand)
		executors.POST("/commands/broadcast", middleware.CommandLoggerMiddleware(), h.Broadcast)
		executors.POST("/:id/emergency-stop", middleware.CommandLoggerMiddleware(), h.EmergencyStop)
		executors.POST("/emergency-stop", middleware.CommandLoggerMiddleware(), h.EmergencyStopAll)
		// Removal is destructive and admin-only; every other fleet
		// operation, emergency stops included, is open to operators.
		executors.DELETE("/:id", middleware.RequireRole(models.RoleAdmin), middleware.CommandLoggerMiddleware(), h.Remove)
	}
}

// Register handles POST /executors
func (h *FleetHandler) Register(c *gin.Context) {
	var req service.RegisterExecutorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.fleet.Register(middleware.GetUserID(c), &req)
	if err != nil {
		if errors.Is(err, service.ErrValidation) || errors.Is(err, service.ErrInvalidPlatform) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, "failed to register executor")
		return
	}

	// The plaintext secret is revealed here, exactly once; every other
	// serialization path redacts it.
	response.Created(c, gin.H{
		"executor":   resp.Executor,
		"api_key":    resp.APIKey,
		"secret_key": resp.SecretKey.Reveal(),
	})
}

// List handles GET /executors
func (h *FleetHandler) List(c *gin.Context) {
	executors, err := h.fleet.GetAllExecutors()
	if err != nil {
		response.InternalError(c, "failed to list executors")
		return
	}
	response.Success(c, executors)
}

// GetStatus handles GET /executors/:id/status
func (h *FleetHandler) GetStatus(c *gin.Context) {
	status, err := h.fleet.GetStatus(c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrExecutorNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.InternalError(c, "failed to compute status")
		return
	}
	response.Success(c, status)
}

// AuditTrail handles GET /executors/:id/audit
func (h *FleetHandler) AuditTrail(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	entries, total, err := h.fleet.AuditTrail(c.Param("id"), page, pageSize)
	if err != nil {
		if errors.Is(err, repository.ErrExecutorNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.InternalError(c, "failed to load audit trail")
		return
	}

	response.SuccessPaginated(c, entries, total, page, pageSize)
}

// SendCommandRequest represents the dispatch request body. ExpiresAt
// is optional; commands without it stay deliverable indefinitely.
type SendCommandRequest struct {
	Type       models.CommandType `json:"type" binding:"required"`
	Priority   models.Priority    `json:"priority"`
	StrategyID string             `json:"strategy_id"`
	Payload    string             `json:"payload"`
	ExpiresAt  *time.Time         `json:"expires_at"`
}

// SendCommand handles POST /executors/:id/commands
func (h *FleetHandler) SendCommand(c *gin.Context) {
	var req SendCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	cmd := &models.TradeCommand{
		Type:       req.Type,
		Priority:   req.Priority,
		StrategyID: req.StrategyID,
		Payload:    req.Payload,
		ExpiresAt:  req.ExpiresAt,
	}

	accepted, err := h.fleet.SendCommand(c.Param("id"), cmd)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrExecutorNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, service.ErrExecutorOffline):
			response.ExecutorOffline(c, err.Error())
		case errors.Is(err, queue.ErrQueueFull):
			response.QueueCapacity(c, err.Error())
		default:
			response.InternalError(c, "failed to dispatch command")
		}
		return
	}

	response.Success(c, gin.H{"accepted": accepted, "command_id": cmd.ID})
}

// Broadcast handles POST /executors/commands/broadcast
func (h *FleetHandler) Broadcast(c *gin.Context) {
	var req SendCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	cmd := &models.TradeCommand{
		Type:       req.Type,
		Priority:   req.Priority,
		StrategyID: req.StrategyID,
		Payload:    req.Payload,
	}

	delivered := h.fleet.BroadcastCommand(cmd)
	response.Success(c, gin.H{"delivered": delivered})
}

// EmergencyStopRequest carries the operator-supplied reason
type EmergencyStopRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// EmergencyStop handles POST /executors/:id/emergency-stop
func (h *FleetHandler) EmergencyStop(c *gin.Context) {
	var req EmergencyStopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.fleet.EmergencyStop(c.Param("id"), req.Reason); err != nil {
		if errors.Is(err, repository.ErrExecutorNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.InternalError(c, "failed to issue emergency stop")
		return
	}

	response.Success(c, gin.H{"stopped": true})
}

// EmergencyStopAll handles POST /executors/emergency-stop
func (h *FleetHandler) EmergencyStopAll(c *gin.Context) {
	var req EmergencyStopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	h.fleet.EmergencyStopAll(req.Reason)
	response.Success(c, gin.H{"stopped": true})
}

// Remove handles DELETE /executors/:id
func (h *FleetHandler) Remove(c *gin.Context) {
	if err := h.fleet.Remove(c.Param("id")); err != nil {
		switch {
		case errors.Is(err, repository.ErrExecutorNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, service.ErrOpenPositions):
			response.SafetyViolation(c, err.Error())
		default:
			response.InternalError(c, "failed to remove executor")
		}
		return
	}

	response.Success(c, gin.H{"removed": true})
}
