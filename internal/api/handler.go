// Package api provides the HTTP handlers for equipment agents and the
// operator console.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kneutral-org/itconsole/internal/equipment"
	"github.com/kneutral-org/itconsole/internal/logging"
	"github.com/kneutral-org/itconsole/internal/middleware"
)

// Config carries the request limits applied by the handler.
type Config struct {
	ReportMaxPayloadSize int64
	RequestTimeout       time.Duration
	Authorizer           middleware.Authorizer
}

// Handler serves the equipment API.
type Handler struct {
	service *equipment.Service
	logger  zerolog.Logger
	config  Config
}

// NewHandler creates a new equipment API handler.
func NewHandler(service *equipment.Service, logger zerolog.Logger, config Config) *Handler {
	return &Handler{
		service: service,
		logger:  logger.With().Str("component", "equipment-api").Logger(),
		config:  config,
	}
}

// RegisterRoutes registers the agent, operator and legacy routes.
// Agent routes are unauthenticated; operator routes go through the
// configured Authorizer.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	agent := router.Group("")
	agent.Use(middleware.RequestTimeout(h.config.RequestTimeout))
	if h.config.ReportMaxPayloadSize > 0 {
		agent.Use(middleware.PayloadLimit(h.config.ReportMaxPayloadSize, h.logger))
	}
	agent.POST("/equipment/report", h.Report)
	agent.POST("/equipment/heartbeat", h.Heartbeat)
	agent.POST("/api/createEquipment", h.Report)
	agent.POST("/api/ping", h.Heartbeat)

	operator := router.Group("")
	operator.Use(middleware.RequestTimeout(h.config.RequestTimeout))
	operator.Use(middleware.RequireAuthorization(h.config.Authorizer, h.logger))
	operator.GET("/equipment", h.List)
	operator.GET("/equipment/:name", h.Get)
	operator.PUT("/equipment/edit", h.Edit)
	operator.DELETE("/equipment/:id", h.Delete)
	operator.GET("/api/equipments", h.List)
}

// Report handles POST /equipment/report.
func (h *Handler) Report(c *gin.Context) {
	var report equipment.Report
	if !h.bindJSON(c, &report) {
		return
	}

	record, err := h.service.Report(c.Request.Context(), &report)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// Heartbeat handles POST /equipment/heartbeat.
func (h *Handler) Heartbeat(c *gin.Context) {
	var hb equipment.Heartbeat
	if !h.bindJSON(c, &hb) {
		return
	}

	record, err := h.service.Heartbeat(c.Request.Context(), &hb)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// List handles GET /equipment.
func (h *Handler) List(c *gin.Context) {
	filter, err := parseListFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_filter",
			Message: err.Error(),
		})
		return
	}

	records, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if records == nil {
		records = []*equipment.Record{}
	}

	c.JSON(http.StatusOK, records)
}

// Get handles GET /equipment/:name.
func (h *Handler) Get(c *gin.Context) {
	record, err := h.service.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// EditRequest is the body of PUT /equipment/edit. The record is addressed by
// id, or by name when id is empty.
type EditRequest struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	InventoryNumber *string `json:"inventoryNumber"`
	Owner           *string `json:"owner"`
	Department      *string `json:"department"`
	Division        *string `json:"division"`
}

// Edit handles PUT /equipment/edit.
func (h *Handler) Edit(c *gin.Context) {
	var req EditRequest
	if !h.bindJSON(c, &req) {
		return
	}

	patch := &equipment.RecordPatch{
		Owner:           req.Owner,
		Department:      req.Department,
		Division:        req.Division,
		InventoryNumber: req.InventoryNumber,
	}

	record, err := h.service.Edit(c.Request.Context(), req.ID, req.Name, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Delete handles DELETE /equipment/:id.
func (h *Handler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if limit, ok := middleware.PayloadTooLarge(c, err); ok {
			middleware.RespondPayloadTooLarge(c, limit)
			return false
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "invalid JSON payload: " + err.Error(),
		})
		return false
	}
	return true
}

func parseListFilter(c *gin.Context) (*equipment.ListFilter, error) {
	filter := &equipment.ListFilter{
		Name:            c.Query("name"),
		Owner:           c.Query("owner"),
		Department:      c.Query("department"),
		Division:        c.Query("division"),
		InventoryNumber: c.Query("inventoryNumber"),
	}
	if raw, ok := c.GetQuery("online"); ok {
		online, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.New("online must be true or false")
		}
		filter.Online = &online
	}
	return filter, nil
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		logger := logging.LoggerFromContext(c.Request.Context())
		if logger.GetLevel() == zerolog.Disabled {
			logger = h.logger
		}
		logger.Error().
			Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}
	c.JSON(status, ErrorResponse{Error: code, Message: err.Error()})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, equipment.ErrInvalidReport),
		errors.Is(err, equipment.ErrInvalidHeartbeat),
		errors.Is(err, equipment.ErrInvalidPatch):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, equipment.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, equipment.ErrInventoryNumberAssigned):
		return http.StatusConflict, "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
