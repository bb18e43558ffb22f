package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/director74/fulfillment_engine/internal/entity"
)

// RetryRepository репозиторий отложенных повторов
type RetryRepository struct {
	db *gorm.DB
}

// NewRetryRepository создает новый репозиторий повторов
func NewRetryRepository(db *gorm.DB) *RetryRepository {
	return &RetryRepository{
		db: db,
	}
}

// Schedule создает запись отложенного повтора
func (r *RetryRepository) Schedule(ctx context.Context, task *entity.RetryTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// FindDue возвращает повторы, срок которых наступил
func (r *RetryRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]entity.RetryTask, error) {
	var tasks []entity.RetryTask
	result := r.db.WithContext(ctx).
		Where("not_before <= ?", now).
		Order("not_before ASC").
		Limit(limit).
		Find(&tasks)
	if result.Error != nil {
		return nil, result.Error
	}
	return tasks, nil
}

// Delete удаляет обработанную запись повтора
func (r *RetryRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&entity.RetryTask{}, id).Error
}

// DeleteForJob удаляет все отложенные повторы задачи (ручной ретрай,
// отмена)
func (r *RetryRepository) DeleteForJob(ctx context.Context, jobID uint) error {
	return r.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&entity.RetryTask{}).Error
}
