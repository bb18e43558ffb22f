package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/director74/fulfillment_engine/internal/entity"
	apperrors "github.com/director74/fulfillment_engine/pkg/errors"
)

// JobRepository репозиторий задач конвейера автоматизации
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository создает новый репозиторий задач
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{
		db: db,
	}
}

// Create создает задачу конвейера. Уникальный индекс по order_id
// гарантирует не более одной задачи на заказ.
func (r *JobRepository) Create(ctx context.Context, job *entity.AutomationJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID получает задачу по ID
func (r *JobRepository) GetByID(ctx context.Context, id uint) (*entity.AutomationJob, error) {
	var job entity.AutomationJob
	result := r.db.WithContext(ctx).First(&job, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &job, nil
}

// GetByOrderID получает задачу по ID заказа
func (r *JobRepository) GetByOrderID(ctx context.Context, orderID uint) (*entity.AutomationJob, error) {
	var job entity.AutomationJob
	result := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &job, nil
}

// Update сохраняет изменения задачи
func (r *JobRepository) Update(ctx context.Context, job *entity.AutomationJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// FindRunnable возвращает кандидатов на обработку: выполнимые задачи в
// нетерминальных стадиях, не удерживаемые действующей арендой
func (r *JobRepository) FindRunnable(ctx context.Context, limit int) ([]entity.AutomationJob, error) {
	var jobs []entity.AutomationJob
	now := time.Now()

	result := r.db.WithContext(ctx).
		Where("runnable = ?", true).
		Where("stage NOT IN ?", []entity.JobStage{
			entity.JobStageComplete, entity.JobStageFailed, entity.JobStageCancelled,
		}).
		Where("locked_until IS NULL OR locked_until < ?", now).
		Order("updated_at ASC").
		Limit(limit).
		Find(&jobs)
	if result.Error != nil {
		return nil, result.Error
	}

	return jobs, nil
}

// Claim атомарно захватывает аренду задачи для воркера. Условие WHERE
// повторяет условия FindRunnable, поэтому из двух гонящихся воркеров
// ровно один получает RowsAffected=1, второй — ErrLeaseConflict.
func (r *JobRepository) Claim(ctx context.Context, jobID uint, workerID string, leaseTTL time.Duration) error {
	now := time.Now()
	lockedUntil := now.Add(leaseTTL)

	result := r.db.WithContext(ctx).Model(&entity.AutomationJob{}).
		Where("id = ?", jobID).
		Where("runnable = ?", true).
		Where("stage NOT IN ?", []entity.JobStage{
			entity.JobStageComplete, entity.JobStageFailed, entity.JobStageCancelled,
		}).
		Where("locked_until IS NULL OR locked_until < ?", now).
		Updates(map[string]interface{}{
			"locked_by":    workerID,
			"locked_until": lockedUntil,
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return apperrors.NewLeaseConflictError(jobID)
	}
	return nil
}

// ExtendLease продлевает аренду, если она все еще принадлежит воркеру
func (r *JobRepository) ExtendLease(ctx context.Context, jobID uint, workerID string, leaseTTL time.Duration) error {
	result := r.db.WithContext(ctx).Model(&entity.AutomationJob{}).
		Where("id = ? AND locked_by = ?", jobID, workerID).
		Update("locked_until", time.Now().Add(leaseTTL))
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return apperrors.NewLeaseConflictError(jobID)
	}
	return nil
}

// ReleaseLease снимает аренду задачи, если она принадлежит воркеру
func (r *JobRepository) ReleaseLease(ctx context.Context, jobID uint, workerID string) error {
	return r.db.WithContext(ctx).Model(&entity.AutomationJob{}).
		Where("id = ? AND locked_by = ?", jobID, workerID).
		Updates(map[string]interface{}{
			"locked_by":    "",
			"locked_until": nil,
		}).Error
}

// IsLeased сообщает, удерживается ли задача действующей арендой
func (r *JobRepository) IsLeased(ctx context.Context, jobID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.AutomationJob{}).
		Where("id = ? AND locked_until IS NOT NULL AND locked_until >= ?", jobID, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkRunnable помечает задачу выполнимой (например, после наступления
// срока отложенного повтора)
func (r *JobRepository) MarkRunnable(ctx context.Context, jobID uint) error {
	return r.db.WithContext(ctx).Model(&entity.AutomationJob{}).
		Where("id = ?", jobID).
		Update("runnable", true).Error
}

// RequestCancellation выставляет флаг отмены; воркер прочитает его перед
// началом следующей стадии
func (r *JobRepository) RequestCancellation(ctx context.Context, orderID uint) error {
	result := r.db.WithContext(ctx).Model(&entity.AutomationJob{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"cancel_requested": true,
			"runnable":         true,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("Задача конвейера для заказа", orderID)
	}
	return nil
}

// CountByStage возвращает распределение задач арендатора по стадиям
func (r *JobRepository) CountByStage(ctx context.Context, tenantID uint) (map[entity.JobStage]int, error) {
	type stageCount struct {
		Stage entity.JobStage
		Count int
	}

	var rows []stageCount
	err := r.db.WithContext(ctx).Model(&entity.AutomationJob{}).
		Select("stage, count(*) as count").
		Where("tenant_id = ?", tenantID).
		Group("stage").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[entity.JobStage]int, len(rows))
	for _, row := range rows {
		counts[row.Stage] = row.Count
	}
	return counts, nil
}
