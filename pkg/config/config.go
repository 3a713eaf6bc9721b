// Package config предоставляет загрузку конфигурации из переменных окружения.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config содержит полную конфигурацию приложения.
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	MySQL     MySQLConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Order     OrderConfig
	Reaper    ReaperConfig
	Lock      LockConfig
	Inventory InventoryConfig
	Outbox    OutboxConfig
	JWT       JWTConfig
	Jaeger    JaegerConfig
	Metrics   MetricsConfig
}

// AppConfig содержит общие настройки приложения.
type AppConfig struct {
	Name      string `env:"APP_NAME" envDefault:"order-service"`
	Env       string `env:"APP_ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// HTTPConfig содержит настройки HTTP API.
type HTTPConfig struct {
	Host            string        `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Addr возвращает адрес HTTP сервера.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MySQLConfig содержит настройки подключения к MySQL.
type MySQLConfig struct {
	Host            string        `env:"MYSQL_HOST" envDefault:"localhost"`
	Port            int           `env:"MYSQL_PORT" envDefault:"3306"`
	User            string        `env:"MYSQL_USER" envDefault:"root"`
	Password        string        `env:"MYSQL_PASSWORD" envDefault:"root"`
	Database        string        `env:"MYSQL_DATABASE" envDefault:"reservation_order"`
	MaxOpenConns    int           `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"MYSQL_CONN_MAX_LIFETIME" envDefault:"5m"`
	AutoMigrate     bool          `env:"MYSQL_AUTO_MIGRATE" envDefault:"true"`
}

// DSN возвращает строку подключения к MySQL.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig содержит настройки подключения к Redis.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Addr возвращает адрес Redis сервера.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig содержит настройки подключения к Kafka.
type KafkaConfig struct {
	Brokers       []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	ConsumerGroup string        `env:"KAFKA_CONSUMER_GROUP" envDefault:"order-service"`
	MaxRetries    int           `env:"KAFKA_HANDLER_MAX_RETRIES" envDefault:"3"`
	RestartDelay  time.Duration `env:"KAFKA_CONSUMER_RESTART_DELAY" envDefault:"1s"`
	UseDLQ        bool          `env:"KAFKA_USE_DLQ" envDefault:"true"`
	EnsureTopics  bool          `env:"KAFKA_ENSURE_TOPICS" envDefault:"true"`
}

// OrderConfig содержит бизнес-параметры заказа.
type OrderConfig struct {
	// ValidTime — окно оплаты: заказ старше CreatedAt+ValidTime считается истёкшим.
	ValidTime time.Duration `env:"ORDER_VALID_TIME" envDefault:"10m"`
}

// ReaperConfig содержит настройки планировщика истечения заказов.
type ReaperConfig struct {
	Enabled     bool   `env:"ORDER_EXPIRATION_ENABLED" envDefault:"true"`
	Cron        string `env:"ORDER_EXPIRATION_CRON" envDefault:"0 * * * * *"` // секунды минуты часы день месяц день_недели
	Parallelism int    `env:"REAPER_PARALLELISM" envDefault:"8"`
}

// LockConfig содержит настройки распределённой блокировки.
type LockConfig struct {
	Backend          string        `env:"LOCK_BACKEND" envDefault:"redis"` // redis | zookeeper
	Key              string        `env:"LOCK_KEY" envDefault:"order-expiration-lock"`
	TTL              time.Duration `env:"LOCK_TTL" envDefault:"50s"`
	ZooKeeperServers []string      `env:"ZOOKEEPER_SERVERS" envDefault:"localhost:2181" envSeparator:","`
	ZooKeeperTimeout time.Duration `env:"ZOOKEEPER_SESSION_TIMEOUT" envDefault:"10s"`
}

// InventoryConfig содержит настройки клиента Inventory Service.
type InventoryConfig struct {
	BaseURL string        `env:"INVENTORY_BASE_URL" envDefault:"http://localhost:8081"`
	Timeout time.Duration `env:"INVENTORY_TIMEOUT" envDefault:"3s"`
}

// OutboxConfig содержит настройки relay.
type OutboxConfig struct {
	PollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	BatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	Retention    time.Duration `env:"OUTBOX_RETENTION" envDefault:"168h"`
}

// JWTConfig содержит настройки проверки JWT токенов (RS256).
// Пустой PublicKeyPath: идентичность берётся из доверенного заголовка User-Id.
type JWTConfig struct {
	PublicKeyPath string `env:"JWT_PUBLIC_KEY_PATH"`
	Issuer        string `env:"JWT_ISSUER" envDefault:"user-service"`
}

// JaegerConfig содержит настройки трассировки Jaeger.
type JaegerConfig struct {
	Enabled  bool   `env:"JAEGER_ENABLED" envDefault:"true"`
	Host     string `env:"JAEGER_HOST" envDefault:"localhost"`
	OTLPPort int    `env:"JAEGER_OTLP_PORT" envDefault:"4317"` // OTLP gRPC порт
}

// OTLPEndpoint возвращает OTLP gRPC endpoint для Jaeger.
func (c JaegerConfig) OTLPEndpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.OTLPPort)
}

// MetricsConfig содержит настройки Prometheus метрик.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`
	Port    int  `env:"METRICS_PORT" envDefault:"9090"`
}

// Addr возвращает адрес для Metrics HTTP сервера.
func (c MetricsConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load загружает конфигурацию из переменных окружения.
// Опционально загружает .env файл, если он существует.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return parse()
}

// LoadFromFile загружает конфигурацию из указанного .env файла.
func LoadFromFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("ошибка загрузки .env файла %s: %w", path, err)
	}
	return parse()
}

func parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет значения, которые нельзя выразить тегами.
func (c *Config) Validate() error {
	if c.Order.ValidTime <= 0 {
		return fmt.Errorf("ORDER_VALID_TIME должен быть положительным")
	}
	if c.Reaper.Parallelism <= 0 {
		return fmt.Errorf("REAPER_PARALLELISM должен быть положительным")
	}
	switch c.Lock.Backend {
	case "redis", "zookeeper":
	default:
		return fmt.Errorf("неизвестный LOCK_BACKEND: %q", c.Lock.Backend)
	}
	if c.Lock.TTL <= 0 {
		return fmt.Errorf("LOCK_TTL должен быть положительным")
	}
	return nil
}

// IsDevelopment возвращает true, если приложение запущено в development режиме.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction возвращает true, если приложение запущено в production режиме.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
