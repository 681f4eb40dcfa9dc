package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "h2grid/internal/errors"
	"h2grid/internal/model"
	"h2grid/internal/repository"
)

var (
	// ErrAlreadyFavorited is returned when the favorite already exists.
	ErrAlreadyFavorited = apperrors.Wrap(http.StatusConflict, "Already favorited", apperrors.ErrConflict)
	// ErrFavoriteNotFound is returned when removing an absent favorite.
	ErrFavoriteNotFound = apperrors.Wrap(http.StatusNotFound, "Favorite not found", apperrors.ErrNotFound)
)

// FavoriteService manages per-user favorite assets.
type FavoriteService interface {
	Add(ctx context.Context, owner uuid.UUID, ref model.AssetRef) (*model.Favorite, error)
	List(ctx context.Context, owner uuid.UUID) ([]model.Favorite, error)
	Remove(ctx context.Context, owner uuid.UUID, ref model.AssetRef) error
}

type favoriteService struct {
	repo repository.FavoriteRepository
}

// NewFavoriteService creates a new favorite service.
func NewFavoriteService(repo repository.FavoriteRepository) FavoriteService {
	return &favoriteService{repo: repo}
}

// Add checks for an existing (user, type, asset) triple before inserting.
func (s *favoriteService) Add(ctx context.Context, owner uuid.UUID, ref model.AssetRef) (*model.Favorite, error) {
	exists, err := s.repo.Exists(ctx, owner, ref.AssetType, ref.AssetID)
	if err != nil {
		return nil, fmt.Errorf("check favorite: %w", err)
	}
	if exists {
		return nil, ErrAlreadyFavorited
	}
	fav := &model.Favorite{UserID: owner, AssetType: ref.AssetType, AssetID: ref.AssetID}
	if err := s.repo.Create(ctx, fav); err != nil {
		return nil, fmt.Errorf("create favorite: %w", err)
	}
	return fav, nil
}

func (s *favoriteService) List(ctx context.Context, owner uuid.UUID) ([]model.Favorite, error) {
	return s.repo.ListForUser(ctx, owner)
}

func (s *favoriteService) Remove(ctx context.Context, owner uuid.UUID, ref model.AssetRef) error {
	err := s.repo.Delete(ctx, owner, ref.AssetType, ref.AssetID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrFavoriteNotFound
	}
	return err
}
