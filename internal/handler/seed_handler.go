package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "h2grid/internal/errors"
	"h2grid/internal/service"
)

// SeedHandler imports a remote seed document.
type SeedHandler struct {
	adminService service.AdminService
	client       *http.Client
}

// NewSeedHandler creates a new seed handler. A nil client uses
// http.DefaultClient.
func NewSeedHandler(adminService service.AdminService, client *http.Client) *SeedHandler {
	return &SeedHandler{adminService: adminService, client: client}
}

// SeedRequest points at a JSON document of assets keyed by route.
type SeedRequest struct {
	URL       string `json:"url" validate:"required,http_url"`
	Overwrite bool   `json:"overwrite"`
}

// Seed godoc
// @Summary Import assets from a remote JSON document
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SeedRequest true "Seed source"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 502 {object} errors.ErrorResponse
// @Router /admin/seed [post]
func (h *SeedHandler) Seed(c echo.Context) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	var req SeedRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	data, err := service.LoadSeed(c.Request().Context(), h.client, req.URL)
	if err != nil {
		return apperrors.Wrap(http.StatusBadGateway, "Failed to load seed: "+err.Error(), err)
	}

	report := h.adminService.Import(c.Request().Context(), data, service.ImportOptions{Overwrite: req.Overwrite}, userID(actor))
	return respond(c, http.StatusOK, report, "Seed completed")
}
