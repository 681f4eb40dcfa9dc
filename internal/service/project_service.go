package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	apperrors "h2grid/internal/errors"
	"h2grid/internal/model"
	"h2grid/internal/repository"
)

// ErrProjectNotFound covers both unknown ids and projects of other users.
var ErrProjectNotFound = apperrors.Wrap(http.StatusNotFound, "Project not found", apperrors.ErrNotFound)

// ProjectInput carries project fields. Nil means unchanged on update.
type ProjectInput struct {
	Name        *string
	Description *string
	Assets      []model.AssetRef
}

// ProjectService manages projects owned by a single user. Asset references
// are stored as given and are not checked against the asset tables.
type ProjectService interface {
	Create(ctx context.Context, owner uuid.UUID, in ProjectInput) (*model.Project, error)
	List(ctx context.Context, owner uuid.UUID) ([]model.Project, error)
	Get(ctx context.Context, owner, id uuid.UUID) (*model.Project, error)
	Update(ctx context.Context, owner, id uuid.UUID, in ProjectInput) (*model.Project, error)
	Delete(ctx context.Context, owner, id uuid.UUID) error
}

type projectService struct {
	repo repository.ProjectRepository
}

// NewProjectService creates a new project service.
func NewProjectService(repo repository.ProjectRepository) ProjectService {
	return &projectService{repo: repo}
}

func (s *projectService) Create(ctx context.Context, owner uuid.UUID, in ProjectInput) (*model.Project, error) {
	p := &model.Project{UserID: owner, Assets: datatypes.JSONSlice[model.AssetRef]{}}
	apply(p, in)
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

func (s *projectService) List(ctx context.Context, owner uuid.UUID) ([]model.Project, error) {
	return s.repo.ListForUser(ctx, owner)
}

func (s *projectService) Get(ctx context.Context, owner, id uuid.UUID) (*model.Project, error) {
	p, err := s.repo.FindForUser(ctx, id, owner)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProjectNotFound
	}
	return p, err
}

func (s *projectService) Update(ctx context.Context, owner, id uuid.UUID, in ProjectInput) (*model.Project, error) {
	p, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	apply(p, in)
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	return p, nil
}

func (s *projectService) Delete(ctx context.Context, owner, id uuid.UUID) error {
	err := s.repo.DeleteForUser(ctx, id, owner)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrProjectNotFound
	}
	return err
}

func apply(p *model.Project, in ProjectInput) {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.Assets != nil {
		p.Assets = datatypes.JSONSlice[model.AssetRef](in.Assets)
	}
}
