package errors

import (
	"errors"
	"fmt"
	"log"
	"strings"
)

// Common errors
var (
	ErrNotFound       = errors.New("ресурс не найден")
	ErrAlreadyExists  = errors.New("ресурс уже существует")
	ErrUnauthorized   = errors.New("не авторизован")
	ErrForbidden      = errors.New("доступ запрещен")
	ErrInternalServer = errors.New("внутренняя ошибка сервера")
	ErrBadRequest     = errors.New("некорректный запрос")
)

// Ошибки конвейера автоматизации и инвентаря
var (
	ErrInsufficientInventory = errors.New("недостаточно товара для резервации")
	ErrCircuitOpen           = errors.New("внешняя система недоступна: circuit breaker открыт")
	ErrGatewayTimeout        = errors.New("превышено время ожидания ответа внешней системы")
	ErrMaxRetriesExceeded    = errors.New("превышено максимальное число попыток")
	ErrInvalidOrderState     = errors.New("недопустимое состояние заказа")
	ErrLeaseConflict         = errors.New("задача уже обрабатывается другим воркером")
	ErrAutomationDisabled    = errors.New("автоматизация отключена")
)

// Retryable сообщает, имеет ли смысл автоматически повторять операцию после этой ошибки
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrGatewayTimeout):
		return true
	case errors.Is(err, ErrInsufficientInventory),
		errors.Is(err, ErrMaxRetriesExceeded),
		errors.Is(err, ErrInvalidOrderState):
		return false
	}
	// Неизвестные ошибки внешних вызовов считаем временными
	return true
}

// AppendPrefix добавляет префикс к сообщению об ошибке
func AppendPrefix(err error, prefix string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", prefix, err)
}

// LogError логирует ошибку с контекстом
func LogError(err error, context string) {
	if err == nil {
		return
	}
	log.Printf("ОШИБКА [%s]: %v", context, err)
}

// LogErrorWithDetails логирует ошибку с контекстом и дополнительными деталями
func LogErrorWithDetails(err error, context string, details map[string]interface{}) {
	if err == nil {
		return
	}

	var detailsString strings.Builder
	for k, v := range details {
		if detailsString.Len() > 0 {
			detailsString.WriteString(", ")
		}
		detailsString.WriteString(fmt.Sprintf("%s=%v", k, v))
	}

	log.Printf("ОШИБКА [%s]: %v | Детали: %s", context, err, detailsString.String())
}

// ErrorWithDetails представляет ошибку с дополнительными деталями
type ErrorWithDetails struct {
	Err     error
	Details map[string]interface{}
}

// NewErrorWithDetails создает новую ошибку с деталями
func NewErrorWithDetails(err error, details map[string]interface{}) *ErrorWithDetails {
	return &ErrorWithDetails{
		Err:     err,
		Details: details,
	}
}

// Error реализует интерфейс error
func (e *ErrorWithDetails) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Err.Error())

	if len(e.Details) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Details {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	return sb.String()
}

// Unwrap возвращает оригинальную ошибку
func (e *ErrorWithDetails) Unwrap() error {
	return e.Err
}

// Is проверяет, соответствует ли ошибка target
func (e *ErrorWithDetails) Is(target error) bool {
	return errors.Is(e.Err, target)
}
