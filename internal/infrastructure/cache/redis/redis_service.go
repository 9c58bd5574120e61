// internal/infrastructure/cache/redis/redis_service.go
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trading-session-guard/internal/infrastructure/config"
	"trading-session-guard/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// RedisService сервис для работы с Redis
type RedisService struct {
	config config.RedisConfig
	mu     sync.RWMutex
	client *redis.Client
	state  ServiceState
}

// ServiceState состояние сервиса
type ServiceState string

const (
	StateStopped  ServiceState = "stopped"
	StateStarting ServiceState = "starting"
	StateRunning  ServiceState = "running"
	StateStopping ServiceState = "stopping"
	StateError    ServiceState = "error"
)

// NewRedisService создает новый Redis сервис
func NewRedisService(cfg config.RedisConfig) *RedisService {
	return &RedisService{
		config: cfg,
		state:  StateStopped,
	}
}

// Start подключается к Redis и проверяет соединение
func (rs *RedisService) Start(ctx context.Context) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.state == StateRunning {
		return fmt.Errorf("Redis service already running")
	}
	rs.state = StateStarting

	options := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", rs.config.Host, rs.config.Port),
		Password: rs.config.Password,
		DB:       rs.config.DB,

		PoolSize:     rs.config.PoolSize,
		MinIdleConns: rs.config.MinIdleConns,

		DialTimeout:  rs.config.DialTimeout,
		ReadTimeout:  rs.config.ReadTimeout,
		WriteTimeout: rs.config.WriteTimeout,

		MaxRetries: rs.config.MaxRetries,
	}
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	logger.Info("📡 [Redis] Подключение к %s (DB: %d)", options.Addr, rs.config.DB)
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		rs.state = StateError
		logger.Error("❌ [Redis] Не удалось подключиться к %s: %v", options.Addr, err)
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	rs.client = client
	rs.state = StateRunning
	logger.Info("✅ [Redis] Подключено, пул: %d, префикс ключей: %q", rs.config.PoolSize, rs.config.KeyPrefix)
	return nil
}

// Stop закрывает клиента
func (rs *RedisService) Stop() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.state != StateRunning {
		return nil
	}
	rs.state = StateStopping

	if err := rs.client.Close(); err != nil {
		rs.state = StateError
		return fmt.Errorf("failed to close Redis client: %w", err)
	}
	rs.client = nil
	rs.state = StateStopped
	logger.Info("🛑 [Redis] Соединение закрыто")
	return nil
}

// GetClient возвращает клиент Redis
func (rs *RedisService) GetClient() *redis.Client {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.client
}

// State возвращает состояние сервиса
func (rs *RedisService) State() ServiceState {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.state
}

// HealthCheck пингует Redis
func (rs *RedisService) HealthCheck(ctx context.Context) error {
	client := rs.GetClient()
	if client == nil {
		return fmt.Errorf("Redis service is not running")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis ping failed: %w", err)
	}
	return nil
}

// GetCache кэш аналитики на клиенте сервиса
func (rs *RedisService) GetCache() *Cache {
	client := rs.GetClient()
	if client == nil {
		return nil
	}
	return NewCache(client, rs.config.KeyPrefix)
}

// GetStats статистика пула соединений
func (rs *RedisService) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"state": rs.State(),
		"host":  rs.config.Host,
		"port":  rs.config.Port,
		"db":    rs.config.DB,
	}

	if client := rs.GetClient(); client != nil {
		poolStats := client.PoolStats()
		stats["pool_hits"] = poolStats.Hits
		stats["pool_misses"] = poolStats.Misses
		stats["pool_timeouts"] = poolStats.Timeouts
		stats["pool_total_conns"] = poolStats.TotalConns
		stats["pool_idle_conns"] = poolStats.IdleConns
	}
	return stats
}

// Name возвращает имя сервиса
func (rs *RedisService) Name() string {
	return "RedisService"
}
