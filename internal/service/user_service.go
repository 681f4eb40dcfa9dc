package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"h2grid/internal/cache"
	apperrors "h2grid/internal/errors"
	"h2grid/internal/mailer"
	"h2grid/internal/model"
	"h2grid/internal/repository"
)

const userCacheTTL = 5 * time.Minute

// ErrUserNotFound is returned when the user id does not exist.
var ErrUserNotFound = apperrors.Wrap(http.StatusNotFound, "User not found", apperrors.ErrNotFound)

func userCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("user:%s", id)
}

// ProfileUpdate holds the self-service profile fields. Nil means unchanged.
type ProfileUpdate struct {
	Fullname *string
	PhoneNo  *string
	Email    *string
}

// UserPage is one page of an admin user listing.
type UserPage struct {
	Users      []model.User `json:"users"`
	Pagination Pagination   `json:"pagination"`
}

// Pagination describes a page within a listing.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

// UserService exposes profile and user administration operations.
type UserService interface {
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, in ProfileUpdate) (*model.User, error)
	ListUsers(ctx context.Context, filter repository.UserFilter) (*UserPage, error)
	AllUsers(ctx context.Context) ([]model.User, error)
	UpdateRole(ctx context.Context, actor, target uuid.UUID, role model.Role) (*model.User, error)
	Deactivate(ctx context.Context, actor, target uuid.UUID) (*model.User, error)
	ForcePasswordReset(ctx context.Context, target uuid.UUID) error
	CountByRole(ctx context.Context) (map[model.Role]int64, error)
}

type userService struct {
	repo  repository.UserRepository
	cache *cache.Client
	mail  mailer.Mailer
	now   func() time.Time
}

// NewUserService builds a UserService with repository and cache.
func NewUserService(repo repository.UserRepository, cache *cache.Client, mail mailer.Mailer) UserService {
	return &userService{repo: repo, cache: cache, mail: mail, now: time.Now}
}

func (s *userService) find(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *userService) save(ctx context.Context, user *model.User) error {
	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Wrap(http.StatusConflict, "Email already in use", apperrors.ErrConflict)
		}
		return fmt.Errorf("update user: %w", err)
	}
	_ = s.cache.Delete(ctx, userCacheKey(user.ID))
	return nil
}

// GetUser reads through the cache. The cached copy omits secrets, so it
// must never be written back.
func (s *userService) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var cached model.User
	if s.cache.GetJSON(ctx, userCacheKey(id), &cached) {
		return &cached, nil
	}

	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetJSON(ctx, userCacheKey(id), user, userCacheTTL)
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, id uuid.UUID, in ProfileUpdate) (*model.User, error) {
	if in.Fullname == nil && in.PhoneNo == nil && in.Email == nil {
		return nil, apperrors.Wrap(http.StatusBadRequest, "All fields cannot be empty", apperrors.ErrBadRequest)
	}
	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Fullname != nil {
		user.Fullname = strings.TrimSpace(*in.Fullname)
	}
	if in.PhoneNo != nil {
		user.PhoneNo = strings.TrimSpace(*in.PhoneNo)
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email != user.Email {
			user.Email = email
			user.IsVerified = user.IsFederated()
		}
	}
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *userService) ListUsers(ctx context.Context, filter repository.UserFilter) (*UserPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 10
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	pages := total / int64(filter.Limit)
	if total%int64(filter.Limit) != 0 {
		pages++
	}
	return &UserPage{
		Users:      users,
		Pagination: Pagination{Page: filter.Page, Limit: filter.Limit, Total: total, Pages: pages},
	}, nil
}

func (s *userService) AllUsers(ctx context.Context) ([]model.User, error) {
	users, _, err := s.repo.List(ctx, repository.UserFilter{})
	return users, err
}

// UpdateRole changes target's role. Admins cannot change their own role.
func (s *userService) UpdateRole(ctx context.Context, actor, target uuid.UUID, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, apperrors.Wrap(http.StatusBadRequest, "Invalid role. Must be 'admin', 'planner', or 'user'", apperrors.ErrBadRequest)
	}
	if actor == target {
		return nil, apperrors.Wrap(http.StatusBadRequest, "Cannot change your own role", apperrors.ErrBadRequest)
	}
	user, err := s.find(ctx, target)
	if err != nil {
		return nil, err
	}
	user.Role = role
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Deactivate disables target and ends its session.
func (s *userService) Deactivate(ctx context.Context, actor, target uuid.UUID) (*model.User, error) {
	if actor == target {
		return nil, apperrors.Wrap(http.StatusBadRequest, "Cannot deactivate your own account", apperrors.ErrBadRequest)
	}
	user, err := s.find(ctx, target)
	if err != nil {
		return nil, err
	}
	user.IsActive = false
	user.RefreshTokenHash = ""
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ForcePasswordReset ends target's session and mails a reset token.
func (s *userService) ForcePasswordReset(ctx context.Context, target uuid.UUID) error {
	user, err := s.find(ctx, target)
	if err != nil {
		return err
	}
	user.RefreshTokenHash = ""
	if err := issueResetToken(ctx, s.repo, s.mail, user, s.now()); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, userCacheKey(target))
	return nil
}

func (s *userService) CountByRole(ctx context.Context) (map[model.Role]int64, error) {
	return s.repo.CountByRole(ctx)
}
