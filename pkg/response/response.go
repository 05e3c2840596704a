package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes carried in the envelope. They mirror the fleet core's
// error taxonomy so API clients can branch without parsing messages.
const (
	CodeOK              = 0
	CodeValidation      = -1000
	CodeUnauthorized    = -1001
	CodeForbidden       = -1002
	CodeNotFound        = -1003
	CodeExecutorOffline = -1100
	CodeSafetyViolation = -1101
	CodeQueueCapacity   = -1102
	CodeInternal        = -1999
)

// Response is the standard API response structure
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeOK,
		Message: "success",
		Data:    data,
	})
}

// Created sends a 201 created response
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeOK,
		Message: "created",
		Data:    data,
	})
}

// Error sends an error response
func Error(c *gin.Context, statusCode int, code int, message string) {
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest sends a 400 validation error
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeValidation, message)
}

// Unauthorized sends a 401 error response
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden sends a 403 error response
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, CodeForbidden, message)
}

// NotFound sends a 404 error response
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, CodeNotFound, message)
}

// ExecutorOffline reports a dispatch target unreachable at call time
func ExecutorOffline(c *gin.Context, message string) {
	Error(c, http.StatusServiceUnavailable, CodeExecutorOffline, message)
}

// SafetyViolation reports an operation refused because it would
// abandon monitored risk, e.g. removing an executor with open
// positions.
func SafetyViolation(c *gin.Context, message string) {
	Error(c, http.StatusConflict, CodeSafetyViolation, message)
}

// QueueCapacity reports the delivery queue refusing an enqueue at its
// size bound.
func QueueCapacity(c *gin.Context, message string) {
	Error(c, http.StatusTooManyRequests, CodeQueueCapacity, message)
}

// InternalError sends a 500 error response
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeInternal, message)
}

// Paginated is the paginated response structure
type Paginated struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// SuccessPaginated sends a successful paginated response
func SuccessPaginated(c *gin.Context, items interface{}, total int64, page, pageSize int) {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	c.JSON(http.StatusOK, Response{
		Code:    CodeOK,
		Message: "success",
		Data: Paginated{
			Items:      items,
			Total:      total,
			Page:       page,
			PageSize:   pageSize,
			TotalPages: totalPages,
		},
	})
}
