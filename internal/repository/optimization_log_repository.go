package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"h2grid/internal/model"
)

// OptimizationLogRepository defines optimization log persistence operations.
type OptimizationLogRepository interface {
	Migrate(ctx context.Context) error
	Create(ctx context.Context, log *model.OptimizationLog) error
	Update(ctx context.Context, log *model.OptimizationLog) error
	FindForUser(ctx context.Context, id, userID uuid.UUID) (*model.OptimizationLog, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]model.OptimizationLog, error)
	CountByStatus(ctx context.Context) (map[model.OptimizationStatus]int64, error)
	// FailStalePending marks logs still pending since before cutoff as errored.
	FailStalePending(ctx context.Context, cutoff time.Time, reason string) (int64, error)
}

type optimizationLogRepository struct {
	db *gorm.DB
}

// NewOptimizationLogRepository creates a new optimization log repository.
func NewOptimizationLogRepository(db *gorm.DB) OptimizationLogRepository {
	return &optimizationLogRepository{db: db}
}

func (r *optimizationLogRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&model.OptimizationLog{})
}

func (r *optimizationLogRepository) Create(ctx context.Context, log *model.OptimizationLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *optimizationLogRepository) Update(ctx context.Context, log *model.OptimizationLog) error {
	return r.db.WithContext(ctx).Save(log).Error
}

func (r *optimizationLogRepository) FindForUser(ctx context.Context, id, userID uuid.UUID) (*model.OptimizationLog, error) {
	var log model.OptimizationLog
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&log).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *optimizationLogRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.OptimizationLog, error) {
	var logs []model.OptimizationLog
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *optimizationLogRepository) CountByStatus(ctx context.Context) (map[model.OptimizationStatus]int64, error) {
	var rows []struct {
		Status model.OptimizationStatus
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&model.OptimizationLog{}).
		Select("status, COUNT(*) AS total").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := map[model.OptimizationStatus]int64{
		model.OptimizationStatusPending: 0,
		model.OptimizationStatusSuccess: 0,
		model.OptimizationStatusError:   0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *optimizationLogRepository) FailStalePending(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.OptimizationLog{}).
		Where("status = ? AND created_at < ?", model.OptimizationStatusPending, cutoff).
		Updates(map[string]interface{}{"status": model.OptimizationStatusError, "error": reason})
	return res.RowsAffected, res.Error
}
