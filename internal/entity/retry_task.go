package entity

import (
	"time"
)

// RetryTask отложенный повтор стадии конвейера. Хранится в БД, чтобы
// состояние повторов переживало перезапуск процесса.
type RetryTask struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	JobID     uint      `json:"job_id" gorm:"not null;index"`
	Stage     JobStage  `json:"stage" gorm:"not null"`
	NotBefore time.Time `json:"not_before" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName задает имя таблицы для GORM
func (RetryTask) TableName() string {
	return "retry_tasks"
}
