package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type cachedResult struct {
	ReceiptID string `json:"receipt_id"`
	Printed   bool   `json:"printed"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	ctx := context.Background()

	stored := cachedResult{ReceiptID: "r-1", Printed: true}
	assert.NoError(t, cache.Set(ctx, "1:printed:0", stored))

	var got cachedResult
	assert.NoError(t, cache.Get(ctx, "1:printed:0", &got))
	assert.Equal(t, stored, got)
}

func TestMemoryCacheMiss(t *testing.T) {
	cache := NewMemoryCache(time.Minute)

	var got cachedResult
	err := cache.Get(context.Background(), "нет-такого", &got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache(10 * time.Millisecond)
	ctx := context.Background()

	assert.NoError(t, cache.Set(ctx, "key", cachedResult{ReceiptID: "r-2"}))

	time.Sleep(20 * time.Millisecond)

	var got cachedResult
	assert.ErrorIs(t, cache.Get(ctx, "key", &got), ErrNotFound)
}
