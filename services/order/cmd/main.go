// Order Service — резервирование товара и жизненный цикл заказа.
// HTTP API размещает заказы (сага склада), Kafka сигналы Inventory/Payment двигают
// состояние, Reaper отменяет неоплаченные заказы, outbox relay публикует события.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"example.com/reservation-order/pkg/circuitbreaker"
	"example.com/reservation-order/pkg/config"
	dbpkg "example.com/reservation-order/pkg/db"
	"example.com/reservation-order/pkg/healthcheck"
	"example.com/reservation-order/pkg/jwt"
	"example.com/reservation-order/pkg/kafka"
	"example.com/reservation-order/pkg/lock"
	"example.com/reservation-order/pkg/logger"
	"example.com/reservation-order/pkg/metrics"
	"example.com/reservation-order/pkg/outbox"
	"example.com/reservation-order/pkg/tracing"
	"example.com/reservation-order/services/order/internal/consumer"
	"example.com/reservation-order/services/order/internal/events"
	"example.com/reservation-order/services/order/internal/handler"
	"example.com/reservation-order/services/order/internal/inventory"
	"example.com/reservation-order/services/order/internal/reaper"
	"example.com/reservation-order/services/order/internal/repository"
	"example.com/reservation-order/services/order/internal/reservation"
	"example.com/reservation-order/services/order/internal/service"
	"example.com/reservation-order/services/order/internal/transition"
)

const serviceName = "order-service"

func main() {
	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Инициализируем логгер
	logger.Init(logger.Config{
		Level:       cfg.App.LogLevel,
		Pretty:      cfg.App.LogPretty,
		Service:     serviceName,
		Environment: cfg.App.Env,
	})

	log := logger.With().Logger()

	log.Info().
		Str("env", cfg.App.Env).
		Str("http_addr", cfg.HTTP.Addr()).
		Dur("valid_time", cfg.Order.ValidTime).
		Str("lock_backend", cfg.Lock.Backend).
		Msg("Запуск Order Service")

	// === Observability: Tracing ===

	shutdownTracing, err := tracing.InitTracer(tracing.Config{
		ServiceName:    serviceName,
		Environment:    cfg.App.Env,
		JaegerEndpoint: cfg.Jaeger.OTLPEndpoint(),
		Enabled:        cfg.Jaeger.Enabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Не удалось инициализировать tracing")
	}

	// === Подключение к зависимостям ===

	db, err := dbpkg.ConnectMySQL(cfg.MySQL, cfg.IsDevelopment())
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка подключения к MySQL")
	}
	log.Info().Msg("Подключение к MySQL установлено")

	if cfg.MySQL.AutoMigrate {
		if err := repository.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("Ошибка миграции схемы")
		}
	}

	rdb, err := dbpkg.ConnectRedis(context.Background(), cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка подключения к Redis")
	}
	log.Info().Msg("Подключение к Redis установлено")

	locker, closeLocker, err := newLocker(cfg.Lock, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка инициализации распределённой блокировки")
	}

	if cfg.Kafka.EnsureTopics {
		if err := kafka.EnsureTopics(cfg.Kafka.Brokers, kafka.DefaultOrderTopics()); err != nil {
			log.Warn().Err(err).Msg("Не удалось создать топики (возможно Kafka недоступна)")
		}
	}

	kafkaCfg := kafka.Config{Brokers: cfg.Kafka.Brokers, ConsumerGroup: cfg.Kafka.ConsumerGroup}
	kafkaProducer, err := kafka.NewProducer(kafkaCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка создания Kafka Producer")
	}

	readinessCheck := healthcheck.Composite(
		func(ctx context.Context) error { return healthcheck.CheckMySQL(ctx, db) },
		func(ctx context.Context) error { return healthcheck.CheckRedis(ctx, rdb) },
		healthcheck.CheckKafka(cfg.Kafka.Brokers),
	)

	// === Инициализация бизнес-логики ===

	orderRepo := repository.NewOrderRepository(db)
	transitions := transition.NewService(repository.NewTxManager(db), events.NewProducer())

	inventoryClient := inventory.NewHTTPClient(inventory.Config{
		BaseURL: cfg.Inventory.BaseURL,
		Timeout: cfg.Inventory.Timeout,
	}, circuitbreaker.New("inventory"))

	placer := reservation.NewService(inventoryClient, transitions, reservation.DefaultRetryPolicy())
	orderService := service.NewOrderService(orderRepo, placer, cfg.Order.ValidTime)

	var validator handler.TokenValidator
	if cfg.JWT.PublicKeyPath != "" {
		v, err := jwt.NewValidator(jwt.Config{PublicKeyPath: cfg.JWT.PublicKeyPath, Issuer: cfg.JWT.Issuer})
		if err != nil {
			log.Fatal().Err(err).Msg("Ошибка загрузки публичного ключа JWT")
		}
		validator = v.WithRevocationStore(rdb)
		log.Info().Msg("Идентичность пользователя: JWT (RS256)")
	} else {
		log.Info().Msg("Идентичность пользователя: заголовок User-Id")
	}

	router := handler.NewRouter(handler.RouterConfig{
		ServiceName:    serviceName,
		OrderService:   orderService,
		Validator:      validator,
		ReadinessCheck: readinessCheck,
		Debug:          cfg.IsDevelopment(),
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           router.Engine(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	outboxWorker := outbox.NewWorker(repository.NewOutboxRepository(db), kafkaProducer, outbox.WorkerConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		Retention:    cfg.Outbox.Retention,
	}, "order")

	signalRunner := consumer.NewRunner(func(topic string) (consumer.KafkaConsumer, error) {
		c, err := kafka.NewConsumer(kafkaCfg, topic, cfg.Kafka.ConsumerGroup)
		if err != nil {
			return nil, err
		}
		if cfg.Kafka.UseDLQ {
			c.SetDLQProducer(kafkaProducer)
		}
		return c, nil
	}, transitions, consumer.RunnerConfig{
		MaxRetries:   cfg.Kafka.MaxRetries,
		RestartDelay: cfg.Kafka.RestartDelay,
	})

	expirationReaper := reaper.New(orderRepo, transitions, inventoryClient, locker, reaper.Config{
		ValidTime:   cfg.Order.ValidTime,
		LockKey:     cfg.Lock.Key,
		LockTTL:     cfg.Lock.TTL,
		Parallelism: cfg.Reaper.Parallelism,
	})

	// === Запуск ===

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP сервер запущен")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ошибка HTTP сервера: %w", err)
		}
		return nil
	})

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr(), serviceName, metrics.WithReadinessCheck(readinessCheck))
		g.Go(metricsServer.Start)
	}

	g.Go(func() error {
		outboxWorker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return signalRunner.Run(gctx)
	})

	if cfg.Reaper.Enabled {
		scheduler := reaper.NewScheduler(expirationReaper, cfg.Reaper.Cron)
		g.Go(func() error {
			return scheduler.Run(gctx)
		})
	} else {
		log.Warn().Msg("Reaper отключён (ORDER_EXPIRATION_ENABLED=false)")
	}

	// Останавливаем серверы, когда пришёл сигнал или упала любая горутина.
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Получен сигнал завершения, останавливаем сервер...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки HTTP сервера")
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Ошибка остановки Metrics Server")
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Order Service остановлен с ошибкой")
	}

	// === Освобождение ресурсов ===

	if err := kafkaProducer.Close(); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия Kafka Producer")
	}
	closeLocker()
	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия Redis")
	}
	closeMySQL(db)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Tracing")
		}
	}

	log.Info().Msg("Order Service остановлен")
}

// newLocker создаёт блокировку Reaper по LOCK_BACKEND.
// Возвращаемая функция закрывает соединение с ZooKeeper (для Redis — no-op).
func newLocker(cfg config.LockConfig, rdb *redis.Client) (lock.Locker, func(), error) {
	switch cfg.Backend {
	case "zookeeper":
		conn, err := lock.ConnectZooKeeper(cfg.ZooKeeperServers, cfg.ZooKeeperTimeout)
		if err != nil {
			return nil, nil, err
		}
		return lock.NewZooKeeperLocker(conn, "/locks"), conn.Close, nil
	default:
		return lock.NewRedisLocker(rdb, "lock:"), func() {}, nil
	}
}

func closeMySQL(db *gorm.DB) {
	if err := dbpkg.CloseMySQL(db); err != nil {
		logger.Error().Err(err).Msg("Ошибка закрытия MySQL")
	}
}
