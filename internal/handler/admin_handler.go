package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperrors "h2grid/internal/errors"
	"h2grid/internal/model"
	"h2grid/internal/repository"
	"h2grid/internal/service"
)

// AdminHandler serves user management, data export/import and the
// detailed health report.
type AdminHandler struct {
	adminService service.AdminService
	userService  service.UserService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(adminService service.AdminService, userService service.UserService) *AdminHandler {
	return &AdminHandler{adminService: adminService, userService: userService}
}

// UpdateRoleRequest changes a user's role.
type UpdateRoleRequest struct {
	Role model.Role `json:"role" validate:"required,oneof=admin planner user"`
}

// ImportRequest is a best-effort bulk import keyed by asset route.
type ImportRequest struct {
	Data    map[string][]map[string]interface{} `json:"data" validate:"required"`
	Options service.ImportOptions               `json:"options"`
}

// ListUsers godoc
// @Summary List users
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page, from 1"
// @Param limit query int false "Page size, at most 100"
// @Param role query string false "admin, planner or user"
// @Param search query string false "Matches username, email or full name"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c echo.Context) error {
	page, err := optionalInt(c, "page", 1, 0, "Page must be a positive integer")
	if err != nil {
		return err
	}
	limit, err := optionalInt(c, "limit", 1, 100, "Limit must be between 1 and 100")
	if err != nil {
		return err
	}
	role := model.Role(c.QueryParam("role"))
	if role != "" && !role.Valid() {
		return apperrors.Wrap(http.StatusBadRequest, "Invalid role filter", apperrors.ErrBadRequest)
	}

	result, err := h.userService.ListUsers(c.Request().Context(), repository.UserFilter{
		Role:   role,
		Search: c.QueryParam("search"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, result, "Users retrieved successfully")
}

// UpdateRole godoc
// @Summary Change a user's role
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Param request body UpdateRoleRequest true "New role"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /admin/users/{userId}/role [put]
func (h *AdminHandler) UpdateRole(c echo.Context) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	target, err := paramID(c, "userId")
	if err != nil {
		return err
	}
	var req UpdateRoleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.userService.UpdateRole(c.Request().Context(), actor.ID, target, req.Role)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, user, "User role updated to "+string(req.Role))
}

// Deactivate godoc
// @Summary Deactivate a user
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /admin/users/{userId}/deactivate [put]
func (h *AdminHandler) Deactivate(c echo.Context) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	target, err := paramID(c, "userId")
	if err != nil {
		return err
	}

	user, err := h.userService.Deactivate(c.Request().Context(), actor.ID, target)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, user, "User deactivated successfully")
}

// ForcePasswordReset godoc
// @Summary Revoke a user's session and email a reset token
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Success 200 {object} ApiResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /admin/users/{userId}/force-password-reset [post]
func (h *AdminHandler) ForcePasswordReset(c echo.Context) error {
	target, err := paramID(c, "userId")
	if err != nil {
		return err
	}
	if err := h.userService.ForcePasswordReset(c.Request().Context(), target); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil, "User will be required to reset password on next login")
}

// Export godoc
// @Summary Export all infrastructure
// @Tags admin
// @Produce json
// @Produce text/csv
// @Security BearerAuth
// @Param format query string false "json (default) or csv"
// @Param includeUsers query bool false "Include users"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errors.ErrorResponse
// @Router /admin/export [get]
func (h *AdminHandler) Export(c echo.Context) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	format := c.QueryParam("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		return apperrors.Wrap(http.StatusBadRequest, "Format must be json or csv", apperrors.ErrBadRequest)
	}
	includeUsers := false
	if raw := c.QueryParam("includeUsers"); raw != "" {
		if includeUsers, err = strconv.ParseBool(raw); err != nil {
			return apperrors.Wrap(http.StatusBadRequest, "includeUsers must be boolean", apperrors.ErrBadRequest)
		}
	}

	exp, err := h.adminService.Export(c.Request().Context(), actor.Username, includeUsers)
	if err != nil {
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentDisposition, "attachment; filename=system_export."+format)
	if format == "csv" {
		res.Header().Set(echo.HeaderContentType, "text/csv")
		res.WriteHeader(http.StatusOK)
		return exp.WriteCSV(res)
	}
	return c.JSON(http.StatusOK, exp)
}

// Import godoc
// @Summary Import infrastructure, best effort per item
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ImportRequest true "Assets keyed by route"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /admin/import [post]
func (h *AdminHandler) Import(c echo.Context) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	var req ImportRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	report := h.adminService.Import(c.Request().Context(), req.Data, req.Options, userID(actor))
	return respond(c, http.StatusOK, report, "Data import completed")
}

// Health godoc
// @Summary Detailed dependency health
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ApiResponse
// @Failure 503 {object} ApiResponse
// @Router /admin/health [get]
func (h *AdminHandler) Health(c echo.Context) error {
	health := h.adminService.Health(c.Request().Context())
	status := http.StatusOK
	if health.Status == service.HealthCritical {
		status = http.StatusServiceUnavailable
	}
	return respond(c, status, health, "System status: "+string(health.Status))
}

func optionalInt(c echo.Context, name string, min, max int, message string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || (max > 0 && v > max) {
		return 0, apperrors.Wrap(http.StatusBadRequest, message, apperrors.ErrBadRequest)
	}
	return v, nil
}
