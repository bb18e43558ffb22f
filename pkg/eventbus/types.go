package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// EventType тип события конвейера
type EventType string

const (
	EventJobStageChanged    EventType = "job.stage_changed"
	EventJobFailed          EventType = "job.failed"
	EventJobCompleted       EventType = "job.completed"
	EventReservationChanged EventType = "inventory.reservation_changed"
)

// Event типизированное событие шины. Доставка best-effort: подписчики
// должны считать авторитетным текущее состояние задачи в БД, а не событие.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TenantID  uint      `json:"tenant_id"`
	OrderID   uint      `json:"order_id,omitempty"`
	JobID     uint      `json:"job_id,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	VariantID uint      `json:"variant_id,omitempty"`
	Delta     int64     `json:"delta,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent создает событие с уникальным идентификатором
func NewEvent(eventType EventType) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
	}
}
