// Package inventory — HTTP клиент Inventory Service.
//
// Каждый вызов ограничен таймаутом, обёрнут в client span и Circuit Breaker.
// Ответы отображаются в доменные ошибки:
//
//	404 -> domain.ErrProductNotFound
//	409 -> domain.ErrInsufficientStock
//	остальное, таймаут, сеть, breaker open -> domain.ErrExternalService
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"example.com/reservation-order/pkg/circuitbreaker"
	"example.com/reservation-order/pkg/logger"
	"example.com/reservation-order/pkg/metrics"
	"example.com/reservation-order/pkg/tracing"
	"example.com/reservation-order/services/order/internal/domain"
)

// Client — операции со складом, нужные Order Service.
type Client interface {
	// DecreaseStock резервирует quantity единиц товара.
	DecreaseStock(ctx context.Context, productID string, quantity int) error

	// IncreaseStock возвращает quantity единиц товара на склад.
	IncreaseStock(ctx context.Context, productID string, quantity int) error
}

const (
	opDecrease = "decrease"
	opIncrease = "increase"
)

// Config — настройки HTTP клиента.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPClient реализует Client поверх HTTP JSON API Inventory Service.
type HTTPClient struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	tracer     trace.Tracer
}

// NewHTTPClient создаёт клиент. Таймаут задаётся на каждый вызов через context.
func NewHTTPClient(cfg Config, breaker *circuitbreaker.Breaker) *HTTPClient {
	if breaker == nil {
		breaker = circuitbreaker.New("inventory")
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breaker: breaker,
		tracer:  tracing.Tracer("inventory-client"),
	}
}

// DecreaseStock вызывает POST /api/products/{id}/stock/decrease.
func (c *HTTPClient) DecreaseStock(ctx context.Context, productID string, quantity int) error {
	return c.call(ctx, opDecrease, productID, quantity)
}

// IncreaseStock вызывает POST /api/products/{id}/stock/increase.
func (c *HTTPClient) IncreaseStock(ctx context.Context, productID string, quantity int) error {
	return c.call(ctx, opIncrease, productID, quantity)
}

type stockRequest struct {
	Quantity int `json:"quantity"`
}

func (c *HTTPClient) call(ctx context.Context, op, productID string, quantity int) error {
	ctx, span := c.tracer.Start(ctx, "inventory."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("product.id", productID),
		attribute.Int("quantity", quantity),
	)

	start := time.Now()
	status := "error"

	err := c.breaker.Execute(func() error {
		code, err := c.do(ctx, op, productID, quantity)
		if code != 0 {
			status = strconv.Itoa(code)
		}
		return err
	}, isInfraError)

	metrics.InventoryRequestDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())

	if errors.Is(err, circuitbreaker.ErrOpen) {
		err = fmt.Errorf("%w: %w", domain.ErrExternalService, err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		logger.Ctx(ctx).Warn().
			Err(err).
			Str("operation", op).
			Str("product_id", productID).
			Int("quantity", quantity).
			Msg("Ошибка вызова Inventory Service")
	}

	return err
}

// do выполняет один HTTP запрос. Возвращает статус ответа (0 при сетевой ошибке).
func (c *HTTPClient) do(ctx context.Context, op, productID string, quantity int) (int, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(stockRequest{Quantity: quantity})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrExternalService, err)
	}

	endpoint := fmt.Sprintf("%s/api/products/%s/stock/%s", c.baseURL, url.PathEscape(productID), op)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrExternalService, err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectHTTP(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrExternalService, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	case resp.StatusCode == http.StatusConflict:
		return resp.StatusCode, fmt.Errorf("%w: %s", domain.ErrInsufficientStock, productID)
	default:
		return resp.StatusCode, fmt.Errorf("%w: inventory ответил %s", domain.ErrExternalService, resp.Status)
	}
}

// isInfraError — только сбои сервиса открывают breaker, бизнес-ответы нет.
func isInfraError(err error) bool {
	return errors.Is(err, domain.ErrExternalService)
}
