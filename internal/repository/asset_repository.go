package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"gorm.io/gorm"

	"h2grid/internal/model"
	"h2grid/internal/resource"
)

// AssetRepository defines persistence for one asset type. Every type uses
// the same row shape in its own table.
type AssetRepository interface {
	Definition() resource.Definition
	Migrate(ctx context.Context) error
	List(ctx context.Context) ([]model.Asset, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Asset, error)
	FindByName(ctx context.Context, name string) (*model.Asset, error)
	Create(ctx context.Context, asset *model.Asset) error
	Update(ctx context.Context, asset *model.Asset) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Candidates returns assets whose bounding box intersects bound. When
	// bounded is false every asset is a candidate.
	Candidates(ctx context.Context, bound orb.Bound, bounded bool) ([]model.Asset, error)
	CountByStatus(ctx context.Context) (map[model.AssetStatus]int64, error)
}

type assetRepository struct {
	db  *gorm.DB
	def resource.Definition
}

// NewAssetRepository creates a repository bound to def's table.
func NewAssetRepository(db *gorm.DB, def resource.Definition) AssetRepository {
	return &assetRepository{db: db, def: def}
}

func (r *assetRepository) Definition() resource.Definition {
	return r.def
}

func (r *assetRepository) table(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.def.Table)
}

// Migrate creates the table and its indexes. Index names carry the table
// name so the seven tables never collide.
func (r *assetRepository) Migrate(ctx context.Context) error {
	if err := r.table(ctx).AutoMigrate(&model.Asset{}); err != nil {
		return fmt.Errorf("migrate %s: %w", r.def.Table, err)
	}
	indexes := []struct {
		name    string
		columns string
	}{
		{name: "idx_" + r.def.Table + "_bbox", columns: "min_lng, max_lng, min_lat, max_lat"},
		{name: "idx_" + r.def.Table + "_name", columns: "name"},
		{name: "idx_" + r.def.Table + "_status", columns: "status"},
	}
	migrator := r.db.WithContext(ctx).Migrator()
	for _, idx := range indexes {
		if migrator.HasIndex(r.def.Table, idx.name) {
			continue
		}
		stmt := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, r.def.Table, idx.columns)
		if err := r.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

func (r *assetRepository) bind(assets []model.Asset) []model.Asset {
	for i := range assets {
		assets[i].GeometryField = r.def.GeometryField
	}
	return assets
}

// List returns every asset of the type, oldest first.
func (r *assetRepository) List(ctx context.Context) ([]model.Asset, error) {
	var assets []model.Asset
	if err := r.table(ctx).Order("created_at ASC").Find(&assets).Error; err != nil {
		return nil, err
	}
	return r.bind(assets), nil
}

// FindByID finds an asset by ID.
func (r *assetRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Asset, error) {
	var asset model.Asset
	if err := r.table(ctx).Where("id = ?", id).First(&asset).Error; err != nil {
		return nil, err
	}
	asset.GeometryField = r.def.GeometryField
	return &asset, nil
}

// FindByName finds the first asset with the exact name.
func (r *assetRepository) FindByName(ctx context.Context, name string) (*model.Asset, error) {
	var asset model.Asset
	if err := r.table(ctx).Where("name = ?", name).Order("created_at ASC").First(&asset).Error; err != nil {
		return nil, err
	}
	asset.GeometryField = r.def.GeometryField
	return &asset, nil
}

func (r *assetRepository) Create(ctx context.Context, asset *model.Asset) error {
	asset.GeometryField = r.def.GeometryField
	return r.table(ctx).Create(asset).Error
}

// Update overwrites every column of an existing asset.
func (r *assetRepository) Update(ctx context.Context, asset *model.Asset) error {
	asset.GeometryField = r.def.GeometryField
	asset.UpdatedAt = time.Now()
	res := r.table(ctx).Where("id = ?", asset.ID).Select("*").Omit("id", "created_at").Updates(asset)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete hard-deletes an asset. References held by projects and favorites
// are left untouched.
func (r *assetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.table(ctx).Where("id = ?", id).Delete(&model.Asset{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *assetRepository) Candidates(ctx context.Context, bound orb.Bound, bounded bool) ([]model.Asset, error) {
	q := r.table(ctx)
	if bounded {
		q = q.Where("max_lng >= ? AND min_lng <= ? AND max_lat >= ? AND min_lat <= ?",
			bound.Min.Lon(), bound.Max.Lon(), bound.Min.Lat(), bound.Max.Lat())
	}
	var assets []model.Asset
	if err := q.Find(&assets).Error; err != nil {
		return nil, err
	}
	return r.bind(assets), nil
}

func (r *assetRepository) CountByStatus(ctx context.Context) (map[model.AssetStatus]int64, error) {
	var rows []struct {
		Status model.AssetStatus
		Total  int64
	}
	if err := r.table(ctx).Select("status, COUNT(*) AS total").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := map[model.AssetStatus]int64{
		model.AssetStatusExisting: 0,
		model.AssetStatusPlanned:  0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// AssetRepositories builds one repository per registered asset type, keyed
// by route.
func AssetRepositories(db *gorm.DB) map[string]AssetRepository {
	repos := make(map[string]AssetRepository, len(resource.All()))
	for _, def := range resource.All() {
		repos[def.Route] = NewAssetRepository(db, def)
	}
	return repos
}
