package usecase

import (
	"context"
	"log"
	"time"
)

// RetrySchedulerConfig настройки планировщика отложенных повторов
type RetrySchedulerConfig struct {
	PollInterval time.Duration // Интервал опроса созревших повторов
	Batch        int           // Сколько повторов обрабатывать за тик
}

// NewRetrySchedulerConfig возвращает настройки планировщика по умолчанию
func NewRetrySchedulerConfig() RetrySchedulerConfig {
	return RetrySchedulerConfig{
		PollInterval: 5 * time.Second,
		Batch:        50,
	}
}

// RetryScheduler возвращает задачи с созревшим отложенным повтором
// обратно в очередь конвейера. Повторы долговечны: запланированное в
// таблице переживает перезапуск процесса.
type RetryScheduler struct {
	retries RetryRepository
	jobs    JobRepository
	config  RetrySchedulerConfig
	logger  *log.Logger
}

// NewRetryScheduler создает новый планировщик повторов
func NewRetryScheduler(retries RetryRepository, jobs JobRepository, config RetrySchedulerConfig, logger *log.Logger) *RetryScheduler {
	if logger == nil {
		logger = log.New(log.Writer(), "[RetryScheduler] ", log.LstdFlags)
	}
	if config.PollInterval <= 0 {
		config.PollInterval = NewRetrySchedulerConfig().PollInterval
	}
	if config.Batch <= 0 {
		config.Batch = NewRetrySchedulerConfig().Batch
	}

	return &RetryScheduler{
		retries: retries,
		jobs:    jobs,
		config:  config,
		logger:  logger,
	}
}

// Run запускает цикл планировщика и блокируется до отмены контекста
func (s *RetryScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Printf("ошибка обработки повторов: %v", err)
			}
		}
	}
}

// Tick обрабатывает одну пачку созревших повторов
func (s *RetryScheduler) Tick(ctx context.Context) error {
	due, err := s.retries.FindDue(ctx, time.Now(), s.config.Batch)
	if err != nil {
		return err
	}

	for _, task := range due {
		// Арендованную задачу не трогаем: воркер еще работает с ней,
		// повтор подождет следующего тика
		leased, err := s.jobs.IsLeased(ctx, task.JobID)
		if err != nil {
			s.logger.Printf("ошибка проверки аренды задачи %d: %v", task.JobID, err)
			continue
		}
		if leased {
			continue
		}

		if err := s.jobs.MarkRunnable(ctx, task.JobID); err != nil {
			s.logger.Printf("ошибка возврата задачи %d в очередь: %v", task.JobID, err)
			continue
		}
		if err := s.retries.Delete(ctx, task.ID); err != nil {
			s.logger.Printf("ошибка удаления повтора %d: %v", task.ID, err)
			continue
		}

		s.logger.Printf("задача %d возвращена в очередь по отложенному повтору", task.JobID)
	}

	return nil
}
