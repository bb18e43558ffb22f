package circuitbreaker

import (
	"log"
	"sync"
	"time"

	"github.com/director74/fulfillment_engine/pkg/errors"
)

// State состояние circuit breaker
type State string

const (
	StateClosed   State = "closed"    // Вызовы проходят
	StateOpen     State = "open"      // Вызовы отклоняются без обращения к внешней системе
	StateHalfOpen State = "half-open" // Разрешен один пробный вызов
)

// Config содержит настройки circuit breaker
type Config struct {
	FailureThreshold int           // Число последовательных ошибок до открытия
	RecoveryTimeout  time.Duration // Время до перехода open -> half-open
}

// NewConfig возвращает конфигурацию по умолчанию
func NewConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// CircuitBreaker защищает вызовы внешней системы от каскадных отказов.
// Состояние разделяется всеми воркерами, обращающимися к одной системе,
// поэтому все переходы выполняются под мьютексом.
type CircuitBreaker struct {
	name   string
	config Config
	logger *log.Logger

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	lastFailureAt       time.Time
	halfOpenInFlight    bool
}

// NewCircuitBreaker создает новый circuit breaker для внешней системы name
func NewCircuitBreaker(name string, config Config, logger *log.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = NewConfig().FailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = NewConfig().RecoveryTimeout
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[CircuitBreaker] ", log.LstdFlags)
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger,
		state:  StateClosed,
	}
}

// State возвращает текущее состояние
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState(time.Now())
}

// ConsecutiveFailures возвращает счетчик последовательных ошибок
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFailures
}

// currentState вычисляет состояние с учетом истечения recovery timeout.
// Вызывается только под мьютексом.
func (cb *CircuitBreaker) currentState(now time.Time) State {
	if cb.state == StateOpen && now.Sub(cb.lastFailureAt) >= cb.config.RecoveryTimeout {
		cb.state = StateHalfOpen
		cb.halfOpenInFlight = false
		cb.logger.Printf("[%s] переход open -> half-open: истек recovery timeout", cb.name)
	}
	return cb.state
}

// Allow проверяет, можно ли выполнить вызов. В half-open пропускается
// ровно один пробный вызов; остальные получают ErrCircuitOpen.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState(time.Now()) {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if cb.halfOpenInFlight {
			return errors.ErrCircuitOpen
		}
		cb.halfOpenInFlight = true
		return nil
	default:
		return errors.ErrCircuitOpen
	}
}

// RecordSuccess фиксирует успешный вызов
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.logger.Printf("[%s] пробный вызов успешен, переход half-open -> closed", cb.name)
	}
	cb.state = StateClosed
	cb.consecutiveFailures = 0
	cb.halfOpenInFlight = false
}

// RecordFailure фиксирует неуспешный вызов (включая таймаут)
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.consecutiveFailures++
	cb.lastFailureAt = now

	if cb.state == StateHalfOpen {
		// Пробный вызов не удался, снова открываемся и перезапускаем таймер
		cb.state = StateOpen
		cb.halfOpenInFlight = false
		cb.logger.Printf("[%s] пробный вызов не удался, переход half-open -> open", cb.name)
		return
	}

	if cb.state == StateClosed && cb.consecutiveFailures >= cb.config.FailureThreshold {
		cb.state = StateOpen
		cb.logger.Printf("[%s] достигнут порог ошибок (%d), переход closed -> open",
			cb.name, cb.consecutiveFailures)
	}
}

// Execute выполняет fn под защитой circuit breaker
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}

	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}

	cb.RecordSuccess()
	return nil
}
