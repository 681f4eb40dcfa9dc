package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperrors "h2grid/internal/errors"
	"h2grid/internal/service"
)

// PostGISHandler exposes the raw PostGIS queries.
type PostGISHandler struct {
	postGISService service.PostGISService
}

// NewPostGISHandler creates a new PostGIS handler.
func NewPostGISHandler(postGISService service.PostGISService) *PostGISHandler {
	return &PostGISHandler{postGISService: postGISService}
}

// PolygonQuery selects rows of one table inside a GeoJSON polygon.
type PolygonQuery struct {
	Polygon   json.RawMessage `json:"polygon"`
	AssetType string          `json:"assetType"`
}

// AssetsInPolygon godoc
// @Summary Rows of a PostGIS table inside a polygon
// @Tags postgis
// @Accept json
// @Produce json
// @Param request body PolygonQuery true "Polygon and table"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /postgis/assets-in-polygon [post]
func (h *PostGISHandler) AssetsInPolygon(c echo.Context) error {
	var req PolygonQuery
	if err := c.Bind(&req); err != nil {
		return apperrors.Wrap(http.StatusBadRequest, "Invalid request body", apperrors.ErrBadRequest)
	}
	if len(req.Polygon) == 0 || string(req.Polygon) == "null" || req.AssetType == "" {
		return apperrors.Wrap(http.StatusBadRequest, "polygon and assetType required", apperrors.ErrBadRequest)
	}

	rows, err := h.postGISService.AssetsInPolygon(c.Request().Context(), req.AssetType, req.Polygon)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, rows, "")
}

// NearestAssets godoc
// @Summary Nearest rows of a PostGIS table
// @Tags postgis
// @Produce json
// @Param lng query number true "Longitude"
// @Param lat query number true "Latitude"
// @Param assetType query string true "Table name"
// @Param limit query int false "Row limit, default 10"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /postgis/nearest-assets [get]
func (h *PostGISHandler) NearestAssets(c echo.Context) error {
	table := c.QueryParam("assetType")
	if table == "" {
		return apperrors.Wrap(http.StatusBadRequest, "lng, lat, assetType required", apperrors.ErrBadRequest)
	}
	coords, err := queryFloats(c, "lng, lat, assetType required", "lng", "lat")
	if err != nil {
		return err
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 1 {
			return apperrors.Wrap(http.StatusBadRequest, "limit must be a positive integer", apperrors.ErrBadRequest)
		}
	}

	rows, err := h.postGISService.NearestAssets(c.Request().Context(), table, coords[0], coords[1], limit)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, rows, "")
}
