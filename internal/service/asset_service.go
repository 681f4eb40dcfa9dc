package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"gorm.io/gorm"

	"h2grid/internal/cache"
	apperrors "h2grid/internal/errors"
	"h2grid/internal/geo"
	"h2grid/internal/logger"
	"h2grid/internal/model"
	"h2grid/internal/repository"
	"h2grid/internal/resource"
	"h2grid/internal/storage"
)

const assetCacheTTL = 5 * time.Minute

// ImportOptions controls a best-effort import.
type ImportOptions struct {
	// Overwrite updates an existing asset with the same name instead of
	// reporting it as an error.
	Overwrite bool `json:"overwrite"`
	// Validate rejects items missing a name before any lookup. The type
	// schema is enforced either way.
	Validate bool `json:"validate"`
}

// ImportCounts summarizes an import for one asset type.
type ImportCounts struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Errors  int      `json:"errors"`
	Details []string `json:"details,omitempty"`
}

// AssetService exposes the generic operations shared by every asset type.
type AssetService interface {
	Definition() resource.Definition
	List(ctx context.Context) ([]model.Asset, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Asset, error)
	Create(ctx context.Context, payload map[string]interface{}, createdBy *uuid.UUID) (*model.Asset, error)
	Update(ctx context.Context, id uuid.UUID, patch map[string]interface{}) (*model.Asset, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Within(ctx context.Context, lng, lat, radiusKm float64) ([]model.Asset, error)
	Near(ctx context.Context, lng, lat, maxKm float64) ([]model.Asset, error)
	Import(ctx context.Context, items []map[string]interface{}, opts ImportOptions, createdBy *uuid.UUID) ImportCounts
	AddAttachment(ctx context.Context, id uuid.UUID, filename string, data []byte) (*model.Asset, error)
	CountByStatus(ctx context.Context) (map[model.AssetStatus]int64, error)
}

type assetService struct {
	repo     repository.AssetRepository
	def      resource.Definition
	cache    *cache.Client
	uploader storage.Uploader
	log      *logger.Logger
}

// NewAssetService builds the service for the repository's asset type.
// uploader may be nil when attachments are not configured.
func NewAssetService(repo repository.AssetRepository, cache *cache.Client, uploader storage.Uploader, log *logger.Logger) AssetService {
	if log == nil {
		log = logger.Nop()
	}
	def := repo.Definition()
	return &assetService{
		repo:     repo,
		def:      def,
		cache:    cache,
		uploader: uploader,
		log:      log.With("assetType", def.TypeName),
	}
}

func (s *assetService) Definition() resource.Definition {
	return s.def
}

func (s *assetService) cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("asset:%s:%s", s.def.Table, id)
}

// cachedAsset drops Asset's document marshaller so the row round-trips.
type cachedAsset model.Asset

func (s *assetService) notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(http.StatusNotFound, s.def.Label+" not found", apperrors.ErrNotFound)
	}
	return err
}

func (s *assetService) List(ctx context.Context) ([]model.Asset, error) {
	assets, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.def.Route, err)
	}
	return assets, nil
}

// Get reads through the cache.
func (s *assetService) Get(ctx context.Context, id uuid.UUID) (*model.Asset, error) {
	var cached cachedAsset
	if s.cache.GetJSON(ctx, s.cacheKey(id), &cached) {
		asset := model.Asset(cached)
		asset.GeometryField = s.def.GeometryField
		return &asset, nil
	}

	asset, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.notFound(err)
	}
	s.cache.SetJSON(ctx, s.cacheKey(id), cachedAsset(*asset), assetCacheTTL)
	return asset, nil
}

func (s *assetService) Create(ctx context.Context, payload map[string]interface{}, createdBy *uuid.UUID) (*model.Asset, error) {
	asset, err := s.def.Decode(payload)
	if err != nil {
		return nil, err
	}
	asset.CreatedBy = createdBy
	if err := s.repo.Create(ctx, asset); err != nil {
		return nil, fmt.Errorf("create %s: %w", s.def.Route, err)
	}
	return asset, nil
}

// Update merges patch over the stored document.
func (s *assetService) Update(ctx context.Context, id uuid.UUID, patch map[string]interface{}) (*model.Asset, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.notFound(err)
	}
	merged, err := s.def.Merge(existing, patch)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, merged); err != nil {
		return nil, s.notFound(err)
	}
	_ = s.cache.Delete(ctx, s.cacheKey(id))
	return merged, nil
}

func (s *assetService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.notFound(err)
	}
	_ = s.cache.Delete(ctx, s.cacheKey(id))
	return nil
}

// Within returns assets whose whole geometry lies inside the spherical cap
// of radiusKm around the point.
func (s *assetService) Within(ctx context.Context, lng, lat, radiusKm float64) ([]model.Asset, error) {
	center := orb.Point{lng, lat}
	bound, bounded := geo.SearchBound(center, radiusKm/geo.EarthRadiusKm*orb.EarthRadius)
	candidates, err := s.repo.Candidates(ctx, bound, bounded)
	if err != nil {
		return nil, fmt.Errorf("within %s: %w", s.def.Route, err)
	}

	out := make([]model.Asset, 0, len(candidates))
	for _, a := range candidates {
		g, err := geo.Parse(a.Geometry, s.def.GeometryKind)
		if err != nil {
			s.log.Warn("skipping asset with unreadable geometry", "id", a.ID, "error", err)
			continue
		}
		if geo.WithinSphere(g, center, radiusKm) {
			out = append(out, a)
		}
	}
	return out, nil
}

// Near returns assets within maxKm of the point ordered by ascending distance.
func (s *assetService) Near(ctx context.Context, lng, lat, maxKm float64) ([]model.Asset, error) {
	point := orb.Point{lng, lat}
	maxMeters := maxKm * 1000
	bound, bounded := geo.SearchBound(point, maxMeters)
	candidates, err := s.repo.Candidates(ctx, bound, bounded)
	if err != nil {
		return nil, fmt.Errorf("near %s: %w", s.def.Route, err)
	}

	geoms := make([]orb.Geometry, len(candidates))
	for i, a := range candidates {
		g, err := geo.Parse(a.Geometry, s.def.GeometryKind)
		if err != nil {
			s.log.Warn("skipping asset with unreadable geometry", "id", a.ID, "error", err)
			continue
		}
		geoms[i] = g
	}

	ranked := geo.Nearest(geoms, point, maxMeters)
	out := make([]model.Asset, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, candidates[r.Index])
	}
	return out, nil
}

// Import creates or updates items one by one. A failing item does not roll
// back earlier ones.
func (s *assetService) Import(ctx context.Context, items []map[string]interface{}, opts ImportOptions, createdBy *uuid.UUID) ImportCounts {
	var counts ImportCounts
	fail := func(format string, args ...interface{}) {
		counts.Errors++
		counts.Details = append(counts.Details, fmt.Sprintf(format, args...))
	}

	for i, item := range items {
		name, _ := item["name"].(string)
		label := name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		if opts.Validate && name == "" {
			fail("Invalid %s data: %s", s.def.Label, label)
			continue
		}

		existing, err := s.repo.FindByName(ctx, name)
		switch {
		case err == nil && !opts.Overwrite:
			fail("%s already exists: %s", s.def.Label, label)
		case err == nil:
			if _, err := s.Update(ctx, existing.ID, item); err != nil {
				fail("Error importing %s %s: %v", s.def.Label, label, err)
				continue
			}
			counts.Updated++
		case errors.Is(err, gorm.ErrRecordNotFound):
			if _, err := s.Create(ctx, item, createdBy); err != nil {
				fail("Error importing %s %s: %v", s.def.Label, label, err)
				continue
			}
			counts.Created++
		default:
			fail("Error importing %s %s: %v", s.def.Label, label, err)
		}
	}
	return counts
}

// AddAttachment uploads data and appends its URL to the asset's attachments.
func (s *assetService) AddAttachment(ctx context.Context, id uuid.UUID, filename string, data []byte) (*model.Asset, error) {
	if s.uploader == nil {
		return nil, apperrors.Wrap(http.StatusServiceUnavailable, "File uploads are not configured", apperrors.ErrUnavailable)
	}
	asset, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.notFound(err)
	}

	uploaded, err := s.uploader.Upload(ctx, "h2grid/"+s.def.Route, filename, data)
	switch {
	case errors.Is(err, storage.ErrTooLarge), errors.Is(err, storage.ErrUnsupportedType):
		return nil, apperrors.Wrap(http.StatusBadRequest, err.Error(), apperrors.ErrBadRequest)
	case errors.Is(err, storage.ErrDisabled):
		return nil, apperrors.Wrap(http.StatusServiceUnavailable, "File uploads are not configured", apperrors.ErrUnavailable)
	case err != nil:
		return nil, fmt.Errorf("upload attachment: %w", err)
	}

	list, _ := asset.Attributes["attachments"].([]interface{})
	if asset.Attributes == nil {
		asset.Attributes = map[string]interface{}{}
	}
	asset.Attributes["attachments"] = append(list, uploaded.URL)
	if err := s.repo.Update(ctx, asset); err != nil {
		return nil, s.notFound(err)
	}
	_ = s.cache.Delete(ctx, s.cacheKey(id))
	s.log.Info("attachment added", "id", id, "file", filename, "mime", uploaded.MIME)
	return asset, nil
}

func (s *assetService) CountByStatus(ctx context.Context) (map[model.AssetStatus]int64, error) {
	return s.repo.CountByStatus(ctx)
}
