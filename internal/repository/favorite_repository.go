package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"h2grid/internal/model"
)

// FavoriteRepository defines favorite persistence operations.
type FavoriteRepository interface {
	Migrate(ctx context.Context) error
	Exists(ctx context.Context, userID uuid.UUID, assetType string, assetID uuid.UUID) (bool, error)
	Create(ctx context.Context, favorite *model.Favorite) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]model.Favorite, error)
	Delete(ctx context.Context, userID uuid.UUID, assetType string, assetID uuid.UUID) error
}

type favoriteRepository struct {
	db *gorm.DB
}

// NewFavoriteRepository creates a new favorite repository.
func NewFavoriteRepository(db *gorm.DB) FavoriteRepository {
	return &favoriteRepository{db: db}
}

func (r *favoriteRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&model.Favorite{})
}

func (r *favoriteRepository) Exists(ctx context.Context, userID uuid.UUID, assetType string, assetID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Favorite{}).
		Where("user_id = ? AND asset_type = ? AND asset_id = ?", userID, assetType, assetID).
		Count(&count).Error
	return count > 0, err
}

func (r *favoriteRepository) Create(ctx context.Context, favorite *model.Favorite) error {
	return r.db.WithContext(ctx).Create(favorite).Error
}

func (r *favoriteRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.Favorite, error) {
	var favorites []model.Favorite
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&favorites).Error; err != nil {
		return nil, err
	}
	return favorites, nil
}

func (r *favoriteRepository) Delete(ctx context.Context, userID uuid.UUID, assetType string, assetID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND asset_type = ? AND asset_id = ?", userID, assetType, assetID).
		Delete(&model.Favorite{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
