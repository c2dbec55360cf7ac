package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/orbitreg/compliance-workflow/internal/application/port"
	"github.com/orbitreg/compliance-workflow/internal/application/workflow"
	"github.com/orbitreg/compliance-workflow/internal/definition"
	domainwf "github.com/orbitreg/compliance-workflow/internal/domain/workflow"
	"github.com/orbitreg/compliance-workflow/internal/report"
	"github.com/orbitreg/compliance-workflow/pkg/utils"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	service workflow.Service
	health  HealthFunc
	logger  *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(service workflow.Service, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		service: service,
		logger:  logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	// Kind classifies a failed transition, e.g. guard_rejected
	Kind string `json:"kind,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Version    string      `json:"version"`
	Components interface{} `json:"components,omitempty"`
}

// CreateInstanceRequest is the body of POST /api/v1/instances
type CreateInstanceRequest struct {
	DefinitionID string                 `json:"definition_id" binding:"required"`
	Data         map[string]interface{} `json:"data"`
	Actor        string                 `json:"actor"`
}

// FireTransitionRequest is the optional body of POST /instances/:id/transitions/:event
type FireTransitionRequest struct {
	Data  map[string]interface{} `json:"data"`
	Actor string                 `json:"actor"`
}

// EvaluateRequest is the optional body of POST /instances/:id/evaluate
type EvaluateRequest struct {
	Actor string `json:"actor"`
}

// ListInstancesRequest represents query parameters for listing instances
type ListInstancesRequest struct {
	DefinitionID string `form:"definition_id"`
	Limit        int    `form:"limit"`
	Offset       int    `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}
	status := http.StatusOK

	if h.health != nil {
		healthy, components := h.health()
		response.Components = components
		if !healthy {
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// ListDefinitions handles GET /api/v1/definitions
func (h *Handlers) ListDefinitions(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Success: true, Data: h.service.Definitions()})
}

// GetDefinition handles GET /api/v1/definitions/:id
func (h *Handlers) GetDefinition(c *gin.Context) {
	summary, err := h.service.Definition(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: summary})
}

// ListInstances handles GET /api/v1/instances
func (h *Handlers) ListInstances(c *gin.Context) {
	var req ListInstancesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	instances, err := h.service.List(c.Request.Context(), req.DefinitionID, req.Limit, req.Offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: instances})
}

// CreateInstance handles POST /api/v1/instances
func (h *Handlers) CreateInstance(c *gin.Context) {
	var req CreateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}
	if err := utils.ValidateIdentifier("definition_id", req.DefinitionID); err != nil {
		h.badRequest(c, err.Error(), err)
		return
	}

	result, err := h.service.Create(c.Request.Context(), workflow.CreateRequest{
		DefinitionID: req.DefinitionID,
		Data:         req.Data,
		Actor:        utils.SanitizeString(req.Actor),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: result})
}

// GetInstance handles GET /api/v1/instances/:id
func (h *Handlers) GetInstance(c *gin.Context) {
	id, ok := h.instanceID(c)
	if !ok {
		return
	}

	instance, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// AvailableTransitions handles GET /api/v1/instances/:id/transitions
func (h *Handlers) AvailableTransitions(c *gin.Context) {
	id, ok := h.instanceID(c)
	if !ok {
		return
	}

	actions, err := h.service.Available(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: actions})
}

// FireTransition handles POST /api/v1/instances/:id/transitions/:event
func (h *Handlers) FireTransition(c *gin.Context) {
	id, ok := h.instanceID(c)
	if !ok {
		return
	}

	evt := c.Param("event")
	if err := utils.ValidateIdentifier("event", evt); err != nil {
		h.badRequest(c, err.Error(), err)
		return
	}

	var req FireTransitionRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.service.Fire(c.Request.Context(), id, domainwf.Event(evt), workflow.FireRequest{
		Data:  req.Data,
		Actor: utils.SanitizeString(req.Actor),
	})
	if err != nil {
		if result != nil {
			// The attempt was recorded; return its result with the failure
			c.JSON(statusFor(err), Response{
				Success: false,
				Data:    result,
				Error:   result.Transition.Error,
				Kind:    domainwf.ErrorKind(result.Transition.Err),
			})
			return
		}
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// EvaluateInstance handles POST /api/v1/instances/:id/evaluate
func (h *Handlers) EvaluateInstance(c *gin.Context) {
	id, ok := h.instanceID(c)
	if !ok {
		return
	}

	var req EvaluateRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.service.Evaluate(c.Request.Context(), id, utils.SanitizeString(req.Actor))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// GetHistory handles GET /api/v1/instances/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	id, ok := h.instanceID(c)
	if !ok {
		return
	}

	history, err := h.service.History(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

// ExportHistory handles GET /api/v1/instances/:id/history/export
func (h *Handlers) ExportHistory(c *gin.Context) {
	id, ok := h.instanceID(c)
	if !ok {
		return
	}

	instance, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	history, err := h.service.History(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteHistory(&buf, instance.WorkflowInstance, history); err != nil {
		h.respondError(c, err)
		return
	}

	filename := fmt.Sprintf("%s-%d-history.xlsx", instance.DefinitionID, instance.ID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, report.ContentType, buf.Bytes())
}

func (h *Handlers) instanceID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "invalid instance ID", err)
		return 0, false
	}
	return id, true
}

// bindOptionalJSON binds the body when one was sent
func (h *Handlers) bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(c, "invalid request body", err)
		return false
	}
	return true
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	h.logger.Debug("Bad request", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

func (h *Handlers) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	kind := domainwf.ErrorKind(err)
	if kind == "unknown" {
		kind = ""
	}
	c.JSON(status, Response{
		Success: false,
		Error:   err.Error(),
		Kind:    kind,
	})
}

// statusFor maps service and engine errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrInstanceNotFound),
		errors.Is(err, definition.ErrDefinitionNotFound),
		errors.Is(err, domainwf.ErrStateNotFound),
		errors.Is(err, domainwf.ErrTransitionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainwf.ErrGuardRejected),
		errors.Is(err, port.ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
