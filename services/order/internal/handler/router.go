package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"example.com/reservation-order/pkg/metrics"
	"example.com/reservation-order/services/order/internal/service"
)

// ReadinessChecker — функция проверки готовности сервиса.
type ReadinessChecker func(ctx context.Context) error

// RouterConfig — параметры для создания роутера.
type RouterConfig struct {
	ServiceName    string
	OrderService   service.OrderService
	Validator      TokenValidator   // nil — идентичность из заголовка User-Id
	ReadinessCheck ReadinessChecker // опциональная проверка готовности для /readyz
	Debug          bool             // Режим отладки Gin
}

// Router — HTTP роутер Order Service.
type Router struct {
	engine         *gin.Engine
	orders         *OrderHandler
	identity       gin.HandlerFunc
	readinessCheck ReadinessChecker
}

// NewRouter создаёт и настраивает HTTP роутер.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(SecurityHeaders())
	engine.Use(otelgin.Middleware(cfg.ServiceName))
	engine.Use(metrics.GinMetricsMiddleware(cfg.ServiceName))
	engine.Use(Tracing())

	r := &Router{
		engine:         engine,
		orders:         NewOrderHandler(cfg.OrderService),
		identity:       Identity(cfg.Validator),
		readinessCheck: cfg.ReadinessCheck,
	}

	r.setupRoutes()
	return r
}

// setupRoutes настраивает все маршруты API.
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)
	r.engine.GET("/healthz", r.livenessCheck)
	r.engine.GET("/readyz", r.readinessCheckHandler)

	api := r.engine.Group("/api/orders")

	// Служебные маршруты для Payment и Product сервисов, без идентичности пользователя.
	api.POST("/products/count", r.orders.CountOrders)
	api.GET("/:id/payable", r.orders.IsPayable)

	user := api.Group("", r.identity)
	{
		user.POST("/products/:productId", r.orders.PlaceOrder)
		user.GET("", r.orders.ListOrders)
		user.GET("/:id", r.orders.GetOrder)
	}
}

// Engine возвращает Gin engine для запуска сервера.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "order-service"})
}

// livenessCheck — liveness probe: сервер отвечает, значит процесс жив.
func (r *Router) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// readinessCheckHandler — readiness probe: все зависимости доступны.
func (r *Router) readinessCheckHandler(c *gin.Context) {
	if r.readinessCheck == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := r.readinessCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
