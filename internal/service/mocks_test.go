package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"h2grid/internal/mailer"
	"h2grid/internal/model"
	"h2grid/internal/optimizer"
	"h2grid/internal/repository"
)

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) Update(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockUserRepository) user(args mock.Arguments) (*model.User, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return m.user(m.Called(ctx, id))
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return m.user(m.Called(ctx, email))
}

func (m *MockUserRepository) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return m.user(m.Called(ctx, googleID))
}

func (m *MockUserRepository) FindByLogin(ctx context.Context, identifier string) (*model.User, error) {
	return m.user(m.Called(ctx, identifier))
}

func (m *MockUserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	args := m.Called(ctx, username, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context, filter repository.UserFilter) ([]model.User, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]model.User), args.Get(1).(int64), args.Error(2)
}

func (m *MockUserRepository) CountByRole(ctx context.Context) (map[model.Role]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.Role]int64), args.Error(1)
}

func (m *MockUserRepository) ClearExpiredSecrets(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockOptimizationLogRepository is a mock implementation of OptimizationLogRepository.
type MockOptimizationLogRepository struct {
	mock.Mock
}

func (m *MockOptimizationLogRepository) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockOptimizationLogRepository) Create(ctx context.Context, log *model.OptimizationLog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *MockOptimizationLogRepository) Update(ctx context.Context, log *model.OptimizationLog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *MockOptimizationLogRepository) FindForUser(ctx context.Context, id, userID uuid.UUID) (*model.OptimizationLog, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OptimizationLog), args.Error(1)
}

func (m *MockOptimizationLogRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.OptimizationLog, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]model.OptimizationLog), args.Error(1)
}

func (m *MockOptimizationLogRepository) CountByStatus(ctx context.Context) (map[model.OptimizationStatus]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.OptimizationStatus]int64), args.Error(1)
}

func (m *MockOptimizationLogRepository) FailStalePending(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	args := m.Called(ctx, cutoff, reason)
	return args.Get(0).(int64), args.Error(1)
}

// MockOptimizer is a mock implementation of optimizer.Optimizer.
type MockOptimizer struct {
	mock.Mock
}

func (m *MockOptimizer) Plan(ctx context.Context, request interface{}) (optimizer.Plan, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(optimizer.Plan), args.Error(1)
}

func (m *MockOptimizer) Health(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockMailer is a mock implementation of mailer.Mailer.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg mailer.Message) error {
	return m.Called(ctx, msg).Error(0)
}

// MockBlacklist is a mock implementation of auth.TokenBlacklist.
type MockBlacklist struct {
	mock.Mock
}

func (m *MockBlacklist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	return m.Called(ctx, tokenID, ttl).Error(0)
}

func (m *MockBlacklist) IsRevoked(ctx context.Context, tokenID string) bool {
	return m.Called(ctx, tokenID).Bool(0)
}
