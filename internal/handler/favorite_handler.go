package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"h2grid/internal/model"
	"h2grid/internal/service"
)

// FavoriteHandler serves the signed-in user's favorite assets.
type FavoriteHandler struct {
	favoriteService service.FavoriteService
}

// NewFavoriteHandler creates a new favorite handler.
func NewFavoriteHandler(favoriteService service.FavoriteService) *FavoriteHandler {
	return &FavoriteHandler{favoriteService: favoriteService}
}

// Add godoc
// @Summary Favorite an asset
// @Tags favorites
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.AssetRef true "Asset reference"
// @Success 201 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /favorites [post]
func (h *FavoriteHandler) Add(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var ref model.AssetRef
	if err := bindAndValidate(c, &ref); err != nil {
		return err
	}

	favorite, err := h.favoriteService.Add(c.Request().Context(), user.ID, ref)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, favorite, "Favorite added")
}

// List godoc
// @Summary List favorites
// @Tags favorites
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ApiResponse
// @Router /favorites [get]
func (h *FavoriteHandler) List(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	favorites, err := h.favoriteService.List(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, favorites, "")
}

// Remove godoc
// @Summary Remove a favorite
// @Tags favorites
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.AssetRef true "Asset reference"
// @Success 200 {object} ApiResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /favorites [delete]
func (h *FavoriteHandler) Remove(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var ref model.AssetRef
	if err := bindAndValidate(c, &ref); err != nil {
		return err
	}
	if err := h.favoriteService.Remove(c.Request().Context(), user.ID, ref); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil, "Favorite removed")
}
