package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "h2grid/internal/errors"
	"h2grid/internal/geo"
	"h2grid/internal/logger"
	"h2grid/internal/repository"
)

const defaultNearestLimit = 10

var (
	// ErrInvalidAssetTable is returned for tables outside the PostGIS whitelist.
	ErrInvalidAssetTable = apperrors.Wrap(http.StatusBadRequest, "Invalid assetType", apperrors.ErrBadRequest)
	// ErrPostGISQuery hides driver errors from clients.
	ErrPostGISQuery = apperrors.Wrap(http.StatusInternalServerError, "Internal server error", errors.New("postgis query failed"))
)

// PostGISService runs spatial queries on the PostGIS side channel.
type PostGISService interface {
	AssetsInPolygon(ctx context.Context, table string, polygon json.RawMessage) ([]map[string]any, error)
	NearestAssets(ctx context.Context, table string, lng, lat float64, limit int) ([]map[string]any, error)
}

type postGISService struct {
	repo repository.PostGISRepository
	log  *logger.Logger
}

// NewPostGISService creates the side-channel service.
func NewPostGISService(repo repository.PostGISRepository, log *logger.Logger) PostGISService {
	if log == nil {
		log = logger.Nop()
	}
	return &postGISService{repo: repo, log: log}
}

func (s *postGISService) AssetsInPolygon(ctx context.Context, table string, polygon json.RawMessage) ([]map[string]any, error) {
	if !repository.IsPostGISTable(table) {
		return nil, ErrInvalidAssetTable
	}
	if _, err := geo.Parse(polygon, geo.KindPolygon); err != nil {
		return nil, apperrors.Wrap(http.StatusBadRequest, "polygon: "+err.Error(), apperrors.ErrBadRequest)
	}
	rows, err := s.repo.AssetsInPolygon(ctx, table, polygon)
	return s.result(rows, err)
}

func (s *postGISService) NearestAssets(ctx context.Context, table string, lng, lat float64, limit int) ([]map[string]any, error) {
	if !repository.IsPostGISTable(table) {
		return nil, ErrInvalidAssetTable
	}
	if limit <= 0 {
		limit = defaultNearestLimit
	}
	rows, err := s.repo.NearestAssets(ctx, table, lng, lat, limit)
	return s.result(rows, err)
}

func (s *postGISService) result(rows []map[string]any, err error) ([]map[string]any, error) {
	switch {
	case err == nil:
		if rows == nil {
			rows = []map[string]any{}
		}
		return rows, nil
	case errors.Is(err, repository.ErrInvalidAssetTable):
		return nil, ErrInvalidAssetTable
	case errors.Is(err, repository.ErrPostGISDisabled):
		return nil, apperrors.Wrap(http.StatusServiceUnavailable, "PostGIS is not configured", apperrors.ErrUnavailable)
	default:
		s.log.Error("postgis query failed", "error", err)
		return nil, ErrPostGISQuery
	}
}
