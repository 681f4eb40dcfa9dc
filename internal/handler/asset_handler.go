package handler

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperrors "h2grid/internal/errors"
	"h2grid/internal/middleware"
	"h2grid/internal/service"
	"h2grid/internal/storage"
)

// AssetHandler serves the CRUD and geo endpoints of one asset type. The
// router builds one per resource definition.
type AssetHandler struct {
	assetService service.AssetService
}

// NewAssetHandler creates a new asset handler.
func NewAssetHandler(assetService service.AssetService) *AssetHandler {
	return &AssetHandler{assetService: assetService}
}

func (h *AssetHandler) label() string {
	return h.assetService.Definition().Label
}

// List godoc
// @Summary List assets of one type
// @Tags assets
// @Produce json
// @Param assetType path string true "Asset route, e.g. plants"
// @Success 200 {object} ApiResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /{assetType} [get]
func (h *AssetHandler) List(c echo.Context) error {
	assets, err := h.assetService.List(c.Request().Context())
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, assets, "")
}

// Get godoc
// @Summary Get an asset
// @Tags assets
// @Produce json
// @Param assetType path string true "Asset route"
// @Param id path string true "Asset ID"
// @Success 200 {object} ApiResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /{assetType}/{id} [get]
func (h *AssetHandler) Get(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	asset, err := h.assetService.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, asset, "")
}

// Create godoc
// @Summary Create an asset
// @Tags assets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param assetType path string true "Asset route"
// @Param request body map[string]interface{} true "Asset document"
// @Success 201 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /{assetType} [post]
func (h *AssetHandler) Create(c echo.Context) error {
	payload, err := bindDocument(c)
	if err != nil {
		return err
	}

	asset, err := h.assetService.Create(c.Request().Context(), payload, userID(middleware.CurrentUser(c)))
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, asset, h.label()+" created")
}

// Update godoc
// @Summary Update an asset
// @Tags assets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param assetType path string true "Asset route"
// @Param id path string true "Asset ID"
// @Param request body map[string]interface{} true "Fields to change"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /{assetType}/{id} [put]
func (h *AssetHandler) Update(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	patch, err := bindDocument(c)
	if err != nil {
		return err
	}

	asset, err := h.assetService.Update(c.Request().Context(), id, patch)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, asset, h.label()+" updated")
}

// Delete godoc
// @Summary Delete an asset
// @Tags assets
// @Produce json
// @Security BearerAuth
// @Param assetType path string true "Asset route"
// @Param id path string true "Asset ID"
// @Success 200 {object} ApiResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /{assetType}/{id} [delete]
func (h *AssetHandler) Delete(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.assetService.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil, h.label()+" deleted")
}

// Within godoc
// @Summary Assets inside a circle
// @Tags assets
// @Produce json
// @Param assetType path string true "Asset route"
// @Param lng query number true "Longitude"
// @Param lat query number true "Latitude"
// @Param radius query number true "Radius in km"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /{assetType}/geo/within [get]
func (h *AssetHandler) Within(c echo.Context) error {
	coords, err := queryFloats(c, "lng, lat, radius required", "lng", "lat", "radius")
	if err != nil {
		return err
	}
	assets, err := h.assetService.Within(c.Request().Context(), coords[0], coords[1], coords[2])
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, assets, "")
}

// Near godoc
// @Summary Assets near a point, closest first
// @Tags assets
// @Produce json
// @Param assetType path string true "Asset route"
// @Param lng query number true "Longitude"
// @Param lat query number true "Latitude"
// @Param max query number true "Maximum distance in km"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /{assetType}/geo/near [get]
func (h *AssetHandler) Near(c echo.Context) error {
	coords, err := queryFloats(c, "lng, lat, max required", "lng", "lat", "max")
	if err != nil {
		return err
	}
	assets, err := h.assetService.Near(c.Request().Context(), coords[0], coords[1], coords[2])
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, assets, "")
}

// AddAttachment godoc
// @Summary Upload an attachment
// @Description Accepts JPEG, PNG, GIF, WebP or PDF files up to 10 MB.
// @Tags assets
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param assetType path string true "Asset route"
// @Param id path string true "Asset ID"
// @Param file formData file true "Attachment"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Router /{assetType}/{id}/attachments [post]
func (h *AssetHandler) AddAttachment(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	header, err := c.FormFile("file")
	if err != nil {
		return apperrors.Wrap(http.StatusBadRequest, "file is required", apperrors.ErrBadRequest)
	}
	if header.Size > storage.MaxAttachmentSize {
		return apperrors.Wrap(http.StatusBadRequest, storage.ErrTooLarge.Error(), apperrors.ErrBadRequest)
	}
	file, err := header.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, storage.MaxAttachmentSize+1))
	if err != nil {
		return err
	}

	asset, err := h.assetService.AddAttachment(c.Request().Context(), id, header.Filename, data)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, asset, "Attachment uploaded")
}

// bindDocument decodes a free-form JSON body. Path and query parameters
// are not merged in.
func bindDocument(c echo.Context) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := (&echo.DefaultBinder{}).BindBody(c, &doc); err != nil {
		return nil, apperrors.Wrap(http.StatusBadRequest, "Invalid request body", apperrors.ErrBadRequest)
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	return doc, nil
}

var coordLimits = map[string]float64{"lng": 180, "lat": 90}

// queryFloats reads finite float query parameters. lng and lat must also
// be valid coordinates.
func queryFloats(c echo.Context, missing string, names ...string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, name := range names {
		raw := c.QueryParam(name)
		if raw == "" {
			return nil, apperrors.Wrap(http.StatusBadRequest, missing, apperrors.ErrBadRequest)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, apperrors.Wrap(http.StatusBadRequest, name+" must be a number", apperrors.ErrBadRequest)
		}
		if limit, ok := coordLimits[name]; ok && math.Abs(v) > limit {
			return nil, apperrors.Wrap(http.StatusBadRequest,
				fmt.Sprintf("%s must be between -%v and %v", name, limit, limit), apperrors.ErrBadRequest)
		}
		out[i] = v
	}
	return out, nil
}
