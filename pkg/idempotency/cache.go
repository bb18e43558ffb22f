package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/director74/fulfillment_engine/pkg/config"
)

// ErrNotFound ключ не найден в кэше
var ErrNotFound = errors.New("идемпотентный ключ не найден")

// Cache хранит результаты внешних вызовов по идемпотентному ключу
// в пределах окна удержания
type Cache interface {
	// Get возвращает сохраненный результат для ключа или ErrNotFound
	Get(ctx context.Context, key string, result interface{}) error
	// Set сохраняет результат вызова по ключу
	Set(ctx context.Context, key string, result interface{}) error
}

// RedisCache реализация кэша идемпотентности на Redis с TTL
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisCache создает кэш идемпотентности поверх Redis
func NewRedisCache(cfg config.RedisConfig, keyPrefix string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}, nil
}

func (c *RedisCache) redisKey(key string) string {
	return fmt.Sprintf("%s:idem:%s", c.keyPrefix, key)
}

// Get возвращает сохраненный результат для ключа
func (c *RedisCache) Get(ctx context.Context, key string, result interface{}) error {
	data, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка чтения из Redis: %w", err)
	}

	if result == nil {
		return nil
	}
	return json.Unmarshal(data, result)
}

// Set сохраняет результат вызова по ключу с TTL окна удержания
func (c *RedisCache) Set(ctx context.Context, key string, result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("ошибка маршалинга результата: %w", err)
	}

	if err := c.client.Set(ctx, c.redisKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка записи в Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// MemoryCache потокобезопасный кэш в памяти для тестов и локального запуска
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryCache создает кэш идемпотентности в памяти
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
	}
}

// Get возвращает сохраненный результат для ключа
func (c *MemoryCache) Get(ctx context.Context, key string, result interface{}) error {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return ErrNotFound
	}

	if result == nil {
		return nil
	}
	return json.Unmarshal(entry.data, result)
}

// Set сохраняет результат вызова по ключу
func (c *MemoryCache) Set(ctx context.Context, key string, result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("ошибка маршалинга результата: %w", err)
	}

	c.mu.Lock()
	c.entries[key] = memoryEntry{
		data:      data,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()

	return nil
}
