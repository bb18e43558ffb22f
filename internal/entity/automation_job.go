package entity

import (
	"time"
)

// JobStage стадия конвейера автоматизации
type JobStage string

const (
	JobStageReceived  JobStage = "received"
	JobStageValidated JobStage = "validated"
	JobStageSynced    JobStage = "synced"
	JobStagePrinted   JobStage = "printed"
	JobStageComplete  JobStage = "complete"
	JobStageFailed    JobStage = "failed"
	JobStageCancelled JobStage = "cancelled"
)

// Коды ошибок, записываемые в задачу при переводе в failed
const (
	ErrCodeInsufficientInventory = "INSUFFICIENT_INVENTORY"
	ErrCodeMaxRetriesExceeded    = "MAX_RETRIES_EXCEEDED"
	ErrCodeInvalidOrderState     = "INVALID_ORDER_STATE"
	ErrCodeCancelled             = "CANCELLED"
)

// AutomationJob задача конвейера: ровно одна на заказ, владеет
// состоянием прохождения заказа по стадиям. Поля lock_* реализуют
// аренду: задачу продвигает только воркер, удерживающий аренду.
type AutomationJob struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	OrderID         uint       `json:"order_id" gorm:"not null;uniqueIndex"`
	TenantID        uint       `json:"tenant_id" gorm:"not null;index"`
	Stage           JobStage   `json:"stage" gorm:"not null;default:'received';index"`
	FailedStage     JobStage   `json:"failed_stage,omitempty" gorm:"type:varchar(20)"`
	Attempts        int        `json:"attempts" gorm:"not null;default:0"`
	LastError       string     `json:"last_error" gorm:"type:text"`
	ErrorCode       string     `json:"error_code" gorm:"type:varchar(50)"`
	CancelRequested bool       `json:"cancel_requested" gorm:"not null;default:false"`
	Runnable        bool       `json:"runnable" gorm:"not null;default:true;index"`
	LockedBy        string     `json:"locked_by" gorm:"type:varchar(100)"`
	LockedUntil     *time.Time `json:"locked_until" gorm:"index"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName задает имя таблицы для GORM
func (AutomationJob) TableName() string {
	return "automation_jobs"
}

// IsTerminal сообщает, находится ли задача в терминальной стадии
func (j *AutomationJob) IsTerminal() bool {
	switch j.Stage {
	case JobStageComplete, JobStageFailed, JobStageCancelled:
		return true
	}
	return false
}

// NextStage возвращает следующую стадию конвейера.
// Для терминальных стадий возвращает текущую стадию.
func (j *AutomationJob) NextStage() JobStage {
	switch j.Stage {
	case JobStageReceived:
		return JobStageValidated
	case JobStageValidated:
		return JobStageSynced
	case JobStageSynced:
		return JobStagePrinted
	case JobStagePrinted:
		return JobStageComplete
	}
	return j.Stage
}

// GetJobResponse ответ на запрос информации о задаче конвейера
type GetJobResponse struct {
	ID        uint      `json:"id"`
	OrderID   uint      `json:"order_id"`
	TenantID  uint      `json:"tenant_id"`
	Stage     JobStage  `json:"stage"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PipelineStatusResponse статус конвейера для арендатора
type PipelineStatusResponse struct {
	Enabled        bool             `json:"enabled"`
	PerStageCounts map[JobStage]int `json:"per_stage_counts"`
}
