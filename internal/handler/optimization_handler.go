package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	apperrors "h2grid/internal/errors"
	"h2grid/internal/model"
	"h2grid/internal/optimizer"
	"h2grid/internal/service"
)

const fallbackMessage = "Optimizer unavailable, returning fallback suggestions"

// OptimizationHandler exposes the optimizer gateway, analytics and the
// optimization log.
type OptimizationHandler struct {
	optimizationService service.OptimizationService
}

// NewOptimizationHandler creates a new optimization handler.
func NewOptimizationHandler(optimizationService service.OptimizationService) *OptimizationHandler {
	return &OptimizationHandler{optimizationService: optimizationService}
}

// SystemOptimizeRequest is the body of a whole-system optimization.
type SystemOptimizeRequest struct {
	Objectives  map[string]interface{} `json:"objectives"`
	Constraints map[string]interface{} `json:"constraints"`
	TimeHorizon string                 `json:"timeHorizon" validate:"omitempty,oneof=1_year 3_years 5_years 10_years"`
}

// CreateLogRequest records an optimization by hand.
type CreateLogRequest struct {
	Project *uuid.UUID      `json:"project"`
	Kind    string          `json:"kind" validate:"max=32"`
	Input   json.RawMessage `json:"input" validate:"required"`
}

// UpdateLogRequest records an outcome.
type UpdateLogRequest struct {
	Output json.RawMessage           `json:"output"`
	Status *model.OptimizationStatus `json:"status"`
	Error  *string                   `json:"error"`
}

func (h *OptimizationHandler) result(c echo.Context, res *service.OptimizationResult, message string) error {
	if res.Fallback {
		message = fallbackMessage
	}
	return respond(c, http.StatusOK, res, message)
}

// Optimize godoc
// @Summary Forward a planning payload to the optimizer
// @Description Answers 200 with fallback suggestions when the optimizer is unreachable.
// @Tags optimization
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body map[string]interface{} true "Planning payload"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /system/optimize [post]
func (h *OptimizationHandler) Optimize(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	payload, err := bindDocument(c)
	if err != nil {
		return err
	}

	var projectID *uuid.UUID
	if raw, ok := payload["projectId"].(string); ok {
		if id, err := uuid.Parse(raw); err == nil {
			projectID = &id
		}
	}

	res, err := h.optimizationService.Optimize(c.Request().Context(), user.ID, optimizer.KindSystem, projectID, payload)
	if err != nil {
		return err
	}
	return h.result(c, res, "Optimization result")
}

// Suggestions godoc
// @Summary Placement suggestions for one asset kind
// @Tags analytics
// @Produce json
// @Security BearerAuth
// @Param kind path string true "plants, storages or pipelines"
// @Param budget query number false "Budget"
// @Param targetCapacity query number false "Target capacity"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /analytics/suggestions/{kind} [get]
func (h *OptimizationHandler) Suggestions(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	budget, err := optionalFloat(c, "budget", "Budget must be a positive number")
	if err != nil {
		return err
	}
	capacityParam := "targetCapacity"
	if c.QueryParam(capacityParam) == "" && c.QueryParam("capacity") != "" {
		capacityParam = "capacity"
	}
	capacity, err := optionalFloat(c, capacityParam, "Target capacity must be positive")
	if err != nil {
		return err
	}

	kind := optimizer.Kind(c.Param("kind"))
	res, err := h.optimizationService.Suggestions(c.Request().Context(), user.ID, kind, service.SuggestionParams{
		Budget:         budget,
		TargetCapacity: capacity,
	})
	if err != nil {
		return err
	}
	return h.result(c, res, "Suggestions generated")
}

// SystemOptimize godoc
// @Summary Optimize the whole infrastructure
// @Tags analytics
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SystemOptimizeRequest false "Objectives and constraints"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /analytics/optimize [post]
func (h *OptimizationHandler) SystemOptimize(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req SystemOptimizeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	constraints := make(map[string]interface{}, len(req.Constraints)+2)
	for k, v := range req.Constraints {
		constraints[k] = v
	}
	if req.Objectives != nil {
		constraints["objectives"] = req.Objectives
	}
	if req.TimeHorizon != "" {
		constraints["time_horizon"] = req.TimeHorizon
	}

	res, err := h.optimizationService.SystemOptimize(c.Request().Context(), user.ID, constraints)
	if err != nil {
		return err
	}
	return h.result(c, res, "System optimization completed")
}

// Overview godoc
// @Summary Infrastructure and user counts
// @Tags analytics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ApiResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /analytics/overview [get]
func (h *OptimizationHandler) Overview(c echo.Context) error {
	ov, err := h.optimizationService.Overview(c.Request().Context())
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, ov, "System overview retrieved")
}

// Metrics godoc
// @Summary Optimizer success rate
// @Tags analytics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ApiResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /analytics/metrics [get]
func (h *OptimizationHandler) Metrics(c echo.Context) error {
	m, err := h.optimizationService.Metrics(c.Request().Context())
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, m, "Performance metrics retrieved")
}

// CreateLog godoc
// @Summary Create an optimization log
// @Tags optimization-logs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateLogRequest true "Log input"
// @Success 201 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /optimization-logs [post]
func (h *OptimizationHandler) CreateLog(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req CreateLogRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	entry, err := h.optimizationService.CreateLog(c.Request().Context(), user.ID, service.LogInput{
		ProjectID: req.Project,
		Kind:      req.Kind,
		Input:     req.Input,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, entry, "Optimization log created")
}

// UpdateLog godoc
// @Summary Record an optimization outcome
// @Tags optimization-logs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Log ID"
// @Param request body UpdateLogRequest true "Outcome"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /optimization-logs/{id} [put]
func (h *OptimizationHandler) UpdateLog(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateLogRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	entry, err := h.optimizationService.UpdateLog(c.Request().Context(), user.ID, id, service.LogUpdate{
		Output: req.Output,
		Status: req.Status,
		Error:  req.Error,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, entry, "Optimization log updated")
}

// ListLogs godoc
// @Summary List own optimization logs
// @Tags optimization-logs
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ApiResponse
// @Router /optimization-logs [get]
func (h *OptimizationHandler) ListLogs(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	logs, err := h.optimizationService.ListLogs(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, logs, "")
}

// GetLog godoc
// @Summary Get an optimization log
// @Tags optimization-logs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Log ID"
// @Success 200 {object} ApiResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /optimization-logs/{id} [get]
func (h *OptimizationHandler) GetLog(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	entry, err := h.optimizationService.GetLog(c.Request().Context(), user.ID, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, entry, "")
}

func optionalFloat(c echo.Context, name, message string) (float64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, apperrors.Wrap(http.StatusBadRequest, message, apperrors.ErrBadRequest)
	}
	return v, nil
}
