// internal/core/domain/analytics/cache.go
package analytics

import (
	"context"
	"time"
)

// Cache хранилище производных отчётов.
// Значения сериализуются, Get заполняет dest и возвращает found.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// Recorder метрики кэша
type Recorder interface {
	CacheHit()
	CacheMiss()
}

type nopRecorder struct{}

func (nopRecorder) CacheHit()  {}
func (nopRecorder) CacheMiss() {}
