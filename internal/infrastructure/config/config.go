// /internal/infrastructure/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ============================================
// КОНФИГУРАЦИЯ ХРАНИЛИЩ
// ============================================

// DatabaseConfig конфигурация базы данных
type DatabaseConfig struct {
	// Драйвер: postgres или sqlite
	Driver string `mapstructure:"DB_DRIVER"`

	// Параметры подключения PostgreSQL
	Host     string `mapstructure:"DB_HOST"`
	Port     int    `mapstructure:"DB_PORT"`
	User     string `mapstructure:"DB_USER"`
	Password string `mapstructure:"DB_PASSWORD"`
	Name     string `mapstructure:"DB_NAME"`
	SSLMode  string `mapstructure:"DB_SSLMODE"`

	// Путь к файлу SQLite
	SQLitePath string `mapstructure:"DB_SQLITE_PATH"`

	// false: сессии и задачи хранятся в памяти процесса
	Enabled bool `mapstructure:"DB_ENABLED"`

	// Настройки пула соединений
	MaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	MaxConnLifetime time.Duration `mapstructure:"DB_MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `mapstructure:"DB_MAX_CONN_IDLE_TIME"`

	EnableAutoMigrate bool `mapstructure:"DB_ENABLE_AUTO_MIGRATE"`
}

// RedisConfig конфигурация Redis
type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`     // localhost
	Port     int    `mapstructure:"REDIS_PORT"`     // 6379
	Password string `mapstructure:"REDIS_PASSWORD"` // пустой или пароль
	DB       int    `mapstructure:"REDIS_DB"`       // 0

	Enabled bool `mapstructure:"REDIS_ENABLED"`

	PoolSize     int           `mapstructure:"REDIS_POOL_SIZE"`      // 10
	MinIdleConns int           `mapstructure:"REDIS_MIN_IDLE_CONNS"` // 2
	MaxRetries   int           `mapstructure:"REDIS_MAX_RETRIES"`    // 3
	DialTimeout  time.Duration `mapstructure:"REDIS_DIAL_TIMEOUT"`   // 5s
	ReadTimeout  time.Duration `mapstructure:"REDIS_READ_TIMEOUT"`   // 3s
	WriteTimeout time.Duration `mapstructure:"REDIS_WRITE_TIMEOUT"`  // 3s

	// Префикс ключей и канал pub/sub уведомлений
	KeyPrefix           string `mapstructure:"REDIS_KEY_PREFIX"`
	NotificationChannel string `mapstructure:"REDIS_NOTIFICATION_CHANNEL"`
}

// ============================================
// КОНФИГУРАЦИЯ ПЛАНИРОВЩИКА И МОНИТОРИНГА
// ============================================

// SchedulerConfig параметры очереди задач
type SchedulerConfig struct {
	Workers        int           `mapstructure:"SCHEDULER_WORKERS"`
	PollInterval   time.Duration `mapstructure:"SCHEDULER_POLL_INTERVAL"`
	LeaseTTL       time.Duration `mapstructure:"SCHEDULER_LEASE_TTL"`
	HandlerTimeout time.Duration `mapstructure:"SCHEDULER_HANDLER_TIMEOUT"`
	MaxAttempts    int           `mapstructure:"SCHEDULER_MAX_ATTEMPTS"`
	BackoffBase    time.Duration `mapstructure:"SCHEDULER_BACKOFF_BASE"`
	BackoffMax     time.Duration `mapstructure:"SCHEDULER_BACKOFF_MAX"`
}

// MonitorConfig параметры контроля сессий
type MonitorConfig struct {
	LossCheckInterval time.Duration `mapstructure:"MONITOR_LOSS_CHECK_INTERVAL"`
	WarningThreshold  float64       `mapstructure:"MONITOR_WARNING_THRESHOLD"`  // % использования лимита
	CriticalThreshold float64       `mapstructure:"MONITOR_CRITICAL_THRESHOLD"` // верхняя граница полосы предупреждений
	AnalyticsDelay    time.Duration `mapstructure:"MONITOR_ANALYTICS_DELAY"`
}

// CleanupConfig параметры суточной очистки
type CleanupConfig struct {
	DailyHour        int           `mapstructure:"CLEANUP_DAILY_HOUR"` // UTC
	DailyMinute      int           `mapstructure:"CLEANUP_DAILY_MINUTE"`
	SessionRetention time.Duration `mapstructure:"CLEANUP_SESSION_RETENTION"`
	JobRetention     time.Duration `mapstructure:"CLEANUP_JOB_RETENTION"`
	RunOnStartup     bool          `mapstructure:"CLEANUP_RUN_ON_STARTUP"`
}

// AnalyticsConfig эвристики аналитики
type AnalyticsConfig struct {
	CacheTTL                time.Duration `mapstructure:"ANALYTICS_CACHE_TTL"`
	RiskFreeRate            float64       `mapstructure:"ANALYTICS_RISK_FREE_RATE"`
	MinTimingSessions       int           `mapstructure:"ANALYTICS_MIN_TIMING_SESSIONS"`
	MinPredictionMatches    int           `mapstructure:"ANALYTICS_MIN_PREDICTION_MATCHES"`
	PredictionWindow        float64       `mapstructure:"ANALYTICS_PREDICTION_WINDOW"` // доля, 0.2 = ±20%
	FallbackConfidence      float64       `mapstructure:"ANALYTICS_FALLBACK_CONFIDENCE"`
	MaxConfidence           float64       `mapstructure:"ANALYTICS_MAX_CONFIDENCE"`
	ConfidenceSampleScale   int           `mapstructure:"ANALYTICS_CONFIDENCE_SAMPLE_SCALE"`
	VelocityMediumThreshold float64       `mapstructure:"ANALYTICS_VELOCITY_MEDIUM"` // сделок в минуту
	VelocityHighThreshold   float64       `mapstructure:"ANALYTICS_VELOCITY_HIGH"`
	LossUsageMedium         float64       `mapstructure:"ANALYTICS_LOSS_USAGE_MEDIUM"` // %
	LossUsageHigh           float64       `mapstructure:"ANALYTICS_LOSS_USAGE_HIGH"`
	TradeConfidenceScale    int           `mapstructure:"ANALYTICS_TRADE_CONFIDENCE_SCALE"`
}

// OrdersConfig клиент подсистемы ордеров
type OrdersConfig struct {
	BaseURL string        `mapstructure:"ORDERS_BASE_URL"` // пустой: ордера не отменяются, только логируются
	Timeout time.Duration `mapstructure:"ORDERS_TIMEOUT"`
	APIKey  string        `mapstructure:"ORDERS_API_KEY"`
}

// LoggingConfig настройки логирования и служебного HTTP
type LoggingConfig struct {
	Level       string `mapstructure:"LOG_LEVEL"`
	File        string `mapstructure:"LOG_FILE"`
	Color       bool   `mapstructure:"LOG_COLOR"`
	HTTPEnabled bool   `mapstructure:"HTTP_ENABLED"`
	HTTPPort    int    `mapstructure:"HTTP_PORT"`
}

// EventBusConfig параметры шины уведомлений
type EventBusConfig struct {
	BufferSize      int           `mapstructure:"EVENT_BUS_BUFFER_SIZE"`
	WorkerCount     int           `mapstructure:"EVENT_BUS_WORKER_COUNT"`
	MetricsInterval time.Duration `mapstructure:"EVENT_BUS_METRICS_INTERVAL"`
}

// ============================================
// ОСНОВНАЯ КОНФИГУРАЦИЯ ПРИЛОЖЕНИЯ
// ============================================

// Config основная структура конфигурации
type Config struct {
	Environment     string        `mapstructure:"ENVIRONMENT"`
	Version         string        `mapstructure:"VERSION"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	Database  DatabaseConfig  `mapstructure:"DATABASE"`
	Redis     RedisConfig     `mapstructure:",squash"`
	Scheduler SchedulerConfig `mapstructure:",squash"`
	Monitor   MonitorConfig   `mapstructure:",squash"`
	Cleanup   CleanupConfig   `mapstructure:",squash"`
	Analytics AnalyticsConfig `mapstructure:",squash"`
	Orders    OrdersConfig    `mapstructure:",squash"`
	Logging   LoggingConfig   `mapstructure:",squash"`
	EventBus  EventBusConfig  `mapstructure:",squash"`
}

// LoadConfig загружает конфигурацию из .env файла и переменных окружения
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			fmt.Printf("⚠️  Config file not found, using environment variables\n")
		}
	}

	cfg := &Config{}

	// ======================
	// ОСНОВНЫЕ НАСТРОЙКИ
	// ======================
	cfg.Environment = getEnv("ENVIRONMENT", "production")
	cfg.Version = getEnv("VERSION", "1.0.0")
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)

	// ======================
	// БАЗА ДАННЫХ
	// ======================
	cfg.Database.Driver = strings.ToLower(getEnv("DB_DRIVER", "postgres"))
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "")
	cfg.Database.Password = getEnv("DB_PASSWORD", "")
	cfg.Database.Name = getEnv("DB_NAME", "")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.SQLitePath = getEnv("DB_SQLITE_PATH", "./data/guard.db")
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 10)
	cfg.Database.MaxConnLifetime = getEnvDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute)
	cfg.Database.MaxConnIdleTime = getEnvDuration("DB_MAX_CONN_IDLE_TIME", 10*time.Minute)
	cfg.Database.EnableAutoMigrate = getEnvBool("DB_ENABLE_AUTO_MIGRATE", true)
	cfg.Database.Enabled = getEnvBool("DB_ENABLED", true)

	// ======================
	// REDIS
	// ======================
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	cfg.Redis.Port = getEnvInt("REDIS_PORT", 6379)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", 10)
	cfg.Redis.MinIdleConns = getEnvInt("REDIS_MIN_IDLE_CONNS", 2)
	cfg.Redis.MaxRetries = getEnvInt("REDIS_MAX_RETRIES", 3)
	cfg.Redis.DialTimeout = getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second)
	cfg.Redis.ReadTimeout = getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second)
	cfg.Redis.WriteTimeout = getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second)
	cfg.Redis.KeyPrefix = getEnv("REDIS_KEY_PREFIX", "guard:")
	cfg.Redis.NotificationChannel = getEnv("REDIS_NOTIFICATION_CHANNEL", "guard:notifications")
	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", false)

	// ======================
	// ПЛАНИРОВЩИК
	// ======================
	cfg.Scheduler.Workers = getEnvInt("SCHEDULER_WORKERS", 8)
	cfg.Scheduler.PollInterval = getEnvDuration("SCHEDULER_POLL_INTERVAL", time.Second)
	cfg.Scheduler.LeaseTTL = getEnvDuration("SCHEDULER_LEASE_TTL", 2*time.Minute)
	cfg.Scheduler.HandlerTimeout = getEnvDuration("SCHEDULER_HANDLER_TIMEOUT", 30*time.Second)
	cfg.Scheduler.MaxAttempts = getEnvInt("SCHEDULER_MAX_ATTEMPTS", 5)
	cfg.Scheduler.BackoffBase = getEnvDuration("SCHEDULER_BACKOFF_BASE", 2*time.Second)
	cfg.Scheduler.BackoffMax = getEnvDuration("SCHEDULER_BACKOFF_MAX", 5*time.Minute)

	// ======================
	// МОНИТОРИНГ СЕССИЙ
	// ======================
	cfg.Monitor.LossCheckInterval = getEnvDuration("MONITOR_LOSS_CHECK_INTERVAL", 30*time.Second)
	cfg.Monitor.WarningThreshold = getEnvFloat("MONITOR_WARNING_THRESHOLD", 80)
	cfg.Monitor.CriticalThreshold = getEnvFloat("MONITOR_CRITICAL_THRESHOLD", 95)
	cfg.Monitor.AnalyticsDelay = getEnvDuration("MONITOR_ANALYTICS_DELAY", time.Minute)

	// ======================
	// ОЧИСТКА
	// ======================
	cfg.Cleanup.DailyHour = getEnvInt("CLEANUP_DAILY_HOUR", 3)
	cfg.Cleanup.DailyMinute = getEnvInt("CLEANUP_DAILY_MINUTE", 0)
	cfg.Cleanup.SessionRetention = getEnvDuration("CLEANUP_SESSION_RETENTION", 30*24*time.Hour)
	cfg.Cleanup.JobRetention = getEnvDuration("CLEANUP_JOB_RETENTION", 7*24*time.Hour)
	cfg.Cleanup.RunOnStartup = getEnvBool("CLEANUP_RUN_ON_STARTUP", true)

	// ======================
	// АНАЛИТИКА
	// ======================
	cfg.Analytics.CacheTTL = getEnvDuration("ANALYTICS_CACHE_TTL", 5*time.Minute)
	cfg.Analytics.RiskFreeRate = getEnvFloat("ANALYTICS_RISK_FREE_RATE", 0)
	cfg.Analytics.MinTimingSessions = getEnvInt("ANALYTICS_MIN_TIMING_SESSIONS", 10)
	cfg.Analytics.MinPredictionMatches = getEnvInt("ANALYTICS_MIN_PREDICTION_MATCHES", 5)
	cfg.Analytics.PredictionWindow = getEnvFloat("ANALYTICS_PREDICTION_WINDOW", 0.2)
	cfg.Analytics.FallbackConfidence = getEnvFloat("ANALYTICS_FALLBACK_CONFIDENCE", 0.1)
	cfg.Analytics.MaxConfidence = getEnvFloat("ANALYTICS_MAX_CONFIDENCE", 0.9)
	cfg.Analytics.ConfidenceSampleScale = getEnvInt("ANALYTICS_CONFIDENCE_SAMPLE_SCALE", 50)
	cfg.Analytics.VelocityMediumThreshold = getEnvFloat("ANALYTICS_VELOCITY_MEDIUM", 0.5)
	cfg.Analytics.VelocityHighThreshold = getEnvFloat("ANALYTICS_VELOCITY_HIGH", 2)
	cfg.Analytics.LossUsageMedium = getEnvFloat("ANALYTICS_LOSS_USAGE_MEDIUM", 50)
	cfg.Analytics.LossUsageHigh = getEnvFloat("ANALYTICS_LOSS_USAGE_HIGH", 80)
	cfg.Analytics.TradeConfidenceScale = getEnvInt("ANALYTICS_TRADE_CONFIDENCE_SCALE", 20)

	// ======================
	// ОРДЕРА
	// ======================
	cfg.Orders.BaseURL = getEnv("ORDERS_BASE_URL", "")
	cfg.Orders.Timeout = getEnvDuration("ORDERS_TIMEOUT", 5*time.Second)
	cfg.Orders.APIKey = getEnv("ORDERS_API_KEY", "")

	// ======================
	// ЛОГИРОВАНИЕ И HTTP
	// ======================
	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")
	cfg.Logging.File = getEnv("LOG_FILE", "")
	cfg.Logging.Color = getEnvBool("LOG_COLOR", true)
	cfg.Logging.HTTPEnabled = getEnvBool("HTTP_ENABLED", true)
	cfg.Logging.HTTPPort = getEnvInt("HTTP_PORT", 9090)

	// ======================
	// ШИНА СОБЫТИЙ
	// ======================
	cfg.EventBus.BufferSize = getEnvInt("EVENT_BUS_BUFFER_SIZE", 1000)
	cfg.EventBus.WorkerCount = getEnvInt("EVENT_BUS_WORKER_COUNT", 4)
	cfg.EventBus.MetricsInterval = getEnvDuration("EVENT_BUS_METRICS_INTERVAL", 0)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate собирает все ошибки конфигурации в одно сообщение
func (c *Config) validate() error {
	var validationErrors []string

	if c.Database.Enabled {
		switch c.Database.Driver {
		case "postgres":
			if c.Database.Host == "" {
				validationErrors = append(validationErrors, "DB_HOST is required")
			}
			if c.Database.Port <= 0 {
				validationErrors = append(validationErrors, "DB_PORT must be positive")
			}
			if c.Database.User == "" {
				validationErrors = append(validationErrors, "DB_USER is required")
			}
			if c.Database.Name == "" {
				validationErrors = append(validationErrors, "DB_NAME is required")
			}
		case "sqlite":
			if c.Database.SQLitePath == "" {
				validationErrors = append(validationErrors, "DB_SQLITE_PATH is required for sqlite")
			}
		default:
			validationErrors = append(validationErrors, "DB_DRIVER должен быть 'postgres' или 'sqlite'")
		}
	}

	if c.Scheduler.Workers <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_WORKERS must be positive")
	}
	if c.Scheduler.PollInterval <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_POLL_INTERVAL must be positive")
	}
	if c.Scheduler.HandlerTimeout <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_HANDLER_TIMEOUT must be positive")
	}
	if c.Scheduler.LeaseTTL <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_LEASE_TTL must be positive")
	}
	if c.Scheduler.MaxAttempts <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_MAX_ATTEMPTS must be positive")
	}
	if c.Scheduler.BackoffBase <= 0 || c.Scheduler.BackoffMax < c.Scheduler.BackoffBase {
		validationErrors = append(validationErrors, "SCHEDULER_BACKOFF_BASE must be positive and not exceed SCHEDULER_BACKOFF_MAX")
	}

	if c.Monitor.LossCheckInterval <= 0 {
		validationErrors = append(validationErrors, "MONITOR_LOSS_CHECK_INTERVAL must be positive")
	}
	if c.Monitor.WarningThreshold <= 0 || c.Monitor.WarningThreshold >= c.Monitor.CriticalThreshold || c.Monitor.CriticalThreshold > 100 {
		validationErrors = append(validationErrors, "MONITOR_WARNING_THRESHOLD < MONITOR_CRITICAL_THRESHOLD <= 100 required")
	}

	if c.Cleanup.DailyHour < 0 || c.Cleanup.DailyHour > 23 {
		validationErrors = append(validationErrors, "CLEANUP_DAILY_HOUR must be in range 0-23")
	}
	if c.Cleanup.DailyMinute < 0 || c.Cleanup.DailyMinute > 59 {
		validationErrors = append(validationErrors, "CLEANUP_DAILY_MINUTE must be in range 0-59")
	}
	if c.Cleanup.SessionRetention <= 0 {
		validationErrors = append(validationErrors, "CLEANUP_SESSION_RETENTION must be positive")
	}

	if c.Analytics.CacheTTL <= 0 {
		validationErrors = append(validationErrors, "ANALYTICS_CACHE_TTL must be positive")
	}
	if c.Analytics.PredictionWindow <= 0 || c.Analytics.PredictionWindow >= 1 {
		validationErrors = append(validationErrors, "ANALYTICS_PREDICTION_WINDOW must be in range (0, 1)")
	}
	if c.Analytics.MaxConfidence <= 0 || c.Analytics.MaxConfidence > 1 {
		validationErrors = append(validationErrors, "ANALYTICS_MAX_CONFIDENCE must be in range (0, 1]")
	}
	if c.Analytics.ConfidenceSampleScale <= 0 || c.Analytics.TradeConfidenceScale <= 0 {
		validationErrors = append(validationErrors, "ANALYTICS confidence scales must be positive")
	}
	if c.Analytics.VelocityMediumThreshold >= c.Analytics.VelocityHighThreshold {
		validationErrors = append(validationErrors, "ANALYTICS_VELOCITY_MEDIUM must be below ANALYTICS_VELOCITY_HIGH")
	}
	if c.Analytics.LossUsageMedium >= c.Analytics.LossUsageHigh {
		validationErrors = append(validationErrors, "ANALYTICS_LOSS_USAGE_MEDIUM must be below ANALYTICS_LOSS_USAGE_HIGH")
	}

	if c.Logging.HTTPEnabled && (c.Logging.HTTPPort <= 0 || c.Logging.HTTPPort > 65535) {
		validationErrors = append(validationErrors, "HTTP_PORT должен быть в диапазоне 1-65535")
	}

	if len(validationErrors) > 0 {
		return fmt.Errorf("%s", strings.Join(validationErrors, "; "))
	}
	return nil
}

// Validate публичная обертка для validate
func (c *Config) Validate() error {
	return c.validate()
}

// GetPostgresDSN возвращает DSN для подключения к PostgreSQL
func (c *Config) GetPostgresDSN() string {
	return c.Database.PostgresDSN()
}

// PostgresDSN DSN в формате key=value для lib/pq
func (d DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// GetRedisAddress адрес Redis host:port
func (c *Config) GetRedisAddress() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// IsDev true для окружения разработки
func (c *Config) IsDev() bool {
	return c.Environment == "dev" || c.Environment == "development"
}

// PrintSummary выводит основные параметры конфигурации
func (c *Config) PrintSummary() {
	log.Printf("📋 Конфигурация приложения:")
	log.Printf("   • Окружение: %s (версия %s)", c.Environment, c.Version)
	log.Printf("   • Уровень логирования: %s", c.Logging.Level)

	if c.Database.Enabled {
		if c.Database.Driver == "sqlite" {
			log.Printf("   • SQLite: %s", c.Database.SQLitePath)
		} else {
			log.Printf("   • PostgreSQL: %s:%d/%s", c.Database.Host, c.Database.Port, c.Database.Name)
		}
	} else {
		log.Printf("   • База данных отключена, хранилище в памяти")
	}
	if c.Redis.Enabled {
		log.Printf("   • Redis: %s (DB: %d, Pool: %d)", c.GetRedisAddress(), c.Redis.DB, c.Redis.PoolSize)
	} else {
		log.Printf("   • Redis отключен, кэш аналитики в памяти")
	}

	log.Printf("   • Планировщик: %d воркеров, опрос %v, аренда %v, бюджет %v",
		c.Scheduler.Workers, c.Scheduler.PollInterval, c.Scheduler.LeaseTTL, c.Scheduler.HandlerTimeout)
	log.Printf("   • Повторы: до %d попыток, backoff %v..%v",
		c.Scheduler.MaxAttempts, c.Scheduler.BackoffBase, c.Scheduler.BackoffMax)
	log.Printf("   • Проверка убытка: каждые %v, предупреждения %.0f%%..%.0f%%",
		c.Monitor.LossCheckInterval, c.Monitor.WarningThreshold, c.Monitor.CriticalThreshold)
	log.Printf("   • Очистка: ежедневно в %02d:%02d UTC, хранение %v",
		c.Cleanup.DailyHour, c.Cleanup.DailyMinute, c.Cleanup.SessionRetention)
	log.Printf("   • Кэш аналитики: TTL %v", c.Analytics.CacheTTL)

	if c.Orders.BaseURL != "" {
		log.Printf("   • Подсистема ордеров: %s", c.Orders.BaseURL)
	} else {
		log.Printf("   • Подсистема ордеров не задана, отмена ордеров только логируется")
	}
	log.Printf("   • HTTP сервер: %v (порт: %d)", c.Logging.HTTPEnabled, c.Logging.HTTPPort)
}

// ============================================
// ВСПОМОГАТЕЛЬНЫЕ ФУНКЦИИ
// ============================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
