package config

import (
	"time"

	"github.com/director74/fulfillment_engine/pkg/config"
)

// Config содержит конфигурацию движка автоматизации исполнения заказов
type Config struct {
	HTTP     config.HTTPConfig
	Postgres config.PostgresConfig
	RabbitMQ config.RabbitMQConfig
	Redis    config.RedisConfig
	JWT      config.JWTConfig
	Gateway  GatewayConfig
	Pipeline PipelineConfig
	Internal InternalAPIConfig
}

// GatewayConfig содержит настройки шлюза внешней системы исполнения
type GatewayConfig struct {
	BaseURL          string
	APIKey           string
	SyncTimeout      time.Duration
	PrintTimeout     time.Duration
	FailureThreshold int
	RecoveryTimeout  time.Duration
	IdempotencyTTL   time.Duration
}

// PipelineConfig содержит настройки конвейера автоматизации
type PipelineConfig struct {
	Workers        int
	ClaimBatch     int
	PollInterval   time.Duration
	LeaseTTL       time.Duration
	MaxAttempts    int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	RetryPoll      time.Duration
	RetryBatch     int
	EventBuffer    int
}

// InternalAPIConfig конфигурация для внутреннего API
type InternalAPIConfig struct {
	TrustedNetworks []string
	APIKeyEnvName   string
	DefaultAPIKey   string
	HeaderName      string
}

// NewConfig создает новую конфигурацию движка
func NewConfig() (*Config, error) {
	// Загружаем общую конфигурацию
	commonConfig := config.LoadCommonConfig("fulfillment", "8086")

	// Загружаем конфигурацию JWT
	jwtConfig := config.LoadJWTConfig("fulfillment-engine")

	return &Config{
		HTTP:     commonConfig.HTTP,
		Postgres: commonConfig.Postgres,
		RabbitMQ: commonConfig.RabbitMQ,
		Redis:    commonConfig.Redis,
		JWT:      *jwtConfig,
		Gateway:  loadGatewayConfig(),
		Pipeline: loadPipelineConfig(),
		Internal: loadInternalAPIConfig(),
	}, nil
}

// loadGatewayConfig загружает настройки шлюза внешней системы
func loadGatewayConfig() GatewayConfig {
	return GatewayConfig{
		BaseURL:          config.GetEnv("FULFILLMENT_GATEWAY_URL", "http://localhost:9090"),
		APIKey:           config.GetEnv("FULFILLMENT_GATEWAY_API_KEY", ""),
		SyncTimeout:      config.GetEnvAsDuration("GATEWAY_SYNC_TIMEOUT", 10*time.Second),
		PrintTimeout:     config.GetEnvAsDuration("GATEWAY_PRINT_TIMEOUT", 15*time.Second),
		FailureThreshold: config.GetEnvAsInt("GATEWAY_FAILURE_THRESHOLD", 5),
		RecoveryTimeout:  config.GetEnvAsDuration("GATEWAY_RECOVERY_TIMEOUT", 30*time.Second),
		IdempotencyTTL:   config.GetEnvAsDuration("GATEWAY_IDEMPOTENCY_TTL", 24*time.Hour),
	}
}

// loadPipelineConfig загружает настройки конвейера
func loadPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Workers:        config.GetEnvAsInt("PIPELINE_WORKERS", 4),
		ClaimBatch:     config.GetEnvAsInt("PIPELINE_CLAIM_BATCH", 10),
		PollInterval:   config.GetEnvAsDuration("PIPELINE_POLL_INTERVAL", 2*time.Second),
		LeaseTTL:       config.GetEnvAsDuration("PIPELINE_LEASE_TTL", time.Minute),
		MaxAttempts:    config.GetEnvAsInt("PIPELINE_MAX_ATTEMPTS", 3),
		BaseRetryDelay: config.GetEnvAsDuration("PIPELINE_BASE_RETRY_DELAY", 5*time.Second),
		MaxRetryDelay:  config.GetEnvAsDuration("PIPELINE_MAX_RETRY_DELAY", 5*time.Minute),
		RetryPoll:      config.GetEnvAsDuration("PIPELINE_RETRY_POLL", 5*time.Second),
		RetryBatch:     config.GetEnvAsInt("PIPELINE_RETRY_BATCH", 50),
		EventBuffer:    config.GetEnvAsInt("PIPELINE_EVENT_BUFFER", 256),
	}
}

// loadInternalAPIConfig загружает конфигурацию для внутреннего API
func loadInternalAPIConfig() InternalAPIConfig {
	return InternalAPIConfig{
		TrustedNetworks: []string{
			"10.0.0.0/8",     // Внутренняя сеть Kubernetes
			"172.16.0.0/12",  // Docker сеть по умолчанию
			"192.168.0.0/16", // Локальная сеть
			"127.0.0.0/8",    // Локальный хост
		},
		APIKeyEnvName: "INTERNAL_API_KEY",
		DefaultAPIKey: "internal-api-key-for-development",
		HeaderName:    "X-Internal-API-Key",
	}
}
