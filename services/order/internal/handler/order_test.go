// Package handler содержит unit тесты для HTTP API Order Service.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/reservation-order/pkg/jwt"
	"example.com/reservation-order/services/order/internal/domain"
	"example.com/reservation-order/services/order/internal/reservation"
	"example.com/reservation-order/services/order/internal/testutil"
)

// MockOrderService — мок для service.OrderService.
type MockOrderService struct {
	PlaceOrderFunc      func(ctx context.Context, userID, productID string, quantity int) (string, error)
	CountByProductsFunc func(ctx context.Context, productIDs []string) (map[string]int64, error)
	ListFunc            func(ctx context.Context, userID string) ([]*domain.Order, error)
	GetOrderFunc        func(ctx context.Context, orderID string) (*domain.Order, error)
	IsPayableFunc       func(ctx context.Context, orderID string) (bool, error)
}

func (m *MockOrderService) PlaceOrder(ctx context.Context, userID, productID string, quantity int) (string, error) {
	if m.PlaceOrderFunc != nil {
		return m.PlaceOrderFunc(ctx, userID, productID, quantity)
	}
	return "", nil
}

func (m *MockOrderService) CountByProducts(ctx context.Context, productIDs []string) (map[string]int64, error) {
	if m.CountByProductsFunc != nil {
		return m.CountByProductsFunc(ctx, productIDs)
	}
	return map[string]int64{}, nil
}

func (m *MockOrderService) ListPaymentCompletedOrders(ctx context.Context, userID string) ([]*domain.Order, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID)
	}
	return []*domain.Order{}, nil
}

func (m *MockOrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if m.GetOrderFunc != nil {
		return m.GetOrderFunc(ctx, orderID)
	}
	return nil, domain.ErrOrderNotFound
}

func (m *MockOrderService) IsPayable(ctx context.Context, orderID string) (bool, error) {
	if m.IsPayableFunc != nil {
		return m.IsPayableFunc(ctx, orderID)
	}
	return false, nil
}

// fakeValidator принимает единственный токен "good-token".
type fakeValidator struct{}

func (fakeValidator) Validate(_ context.Context, token string) (*jwt.Claims, error) {
	if token != "good-token" {
		return nil, jwt.ErrInvalidToken
	}
	return &jwt.Claims{UserID: "jwt-user"}, nil
}

func newTestRouter(svc *MockOrderService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterConfig{ServiceName: "order-service-test", OrderService: svc}).Engine()
}

func doRequest(r http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// =============================================================================
// PlaceOrder
// =============================================================================

func TestOrderHandler_PlaceOrder(t *testing.T) {
	var gotUser, gotProduct string
	var gotQty int
	svc := &MockOrderService{
		PlaceOrderFunc: func(_ context.Context, userID, productID string, quantity int) (string, error) {
			gotUser, gotProduct, gotQty = userID, productID, quantity
			return "order-1", nil
		},
	}

	w := doRequest(newTestRouter(svc), http.MethodPost, "/api/orders/products/product-7", "user-1", PlaceOrderRequest{Quantity: 3})

	require.Equal(t, http.StatusCreated, w.Code)

	var resp PlaceOrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "order-1", resp.OrderID)
	assert.Equal(t, "user-1", gotUser)
	assert.Equal(t, "product-7", gotProduct)
	assert.Equal(t, 3, gotQty)
}

func TestOrderHandler_PlaceOrder_Errors(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		body       any
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{"нет User-Id", "", PlaceOrderRequest{Quantity: 1}, nil, http.StatusUnauthorized, "unauthorized"},
		{"нет quantity", "user-1", map[string]any{}, nil, http.StatusBadRequest, "invalid_request"},
		{"отрицательное количество", "user-1", PlaceOrderRequest{Quantity: -1}, domain.ErrInvalidQuantity, http.StatusBadRequest, "invalid_argument"},
		{"товар не найден", "user-1", PlaceOrderRequest{Quantity: 1}, domain.ErrProductNotFound, http.StatusNotFound, "not_found"},
		{"нет остатка", "user-1", PlaceOrderRequest{Quantity: 1}, domain.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
		{"склад недоступен", "user-1", PlaceOrderRequest{Quantity: 1}, domain.ErrExternalService, http.StatusServiceUnavailable, "service_unavailable"},
		{"ошибка сохранения", "user-1", PlaceOrderRequest{Quantity: 1}, domain.ErrRepository, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockOrderService{
				PlaceOrderFunc: func(context.Context, string, string, int) (string, error) {
					return "", tt.serviceErr
				},
			}

			w := doRequest(newTestRouter(svc), http.MethodPost, "/api/orders/products/p1", tt.userID, tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Error)
		})
	}
}

// failingCreator не сохраняет заказ.
type failingCreator struct{}

func (failingCreator) Create(context.Context, *domain.Order) error {
	return fmt.Errorf("%w: mysql недоступен", domain.ErrRepository)
}

func TestOrderHandler_PlaceOrder_CompensationFailed(t *testing.T) {
	tests := []struct {
		name        string
		increaseErr error
	}{
		{"склад недоступен при возврате", domain.ErrExternalService},
		{"товар пропал при возврате", domain.ErrProductNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &testutil.MockInventory{}
			inv.On("DecreaseStock", mock.Anything, "p1", 2).Return(nil).Once()
			inv.On("IncreaseStock", mock.Anything, "p1", 2).Return(tt.increaseErr)

			placer := reservation.NewService(inv, failingCreator{}, reservation.RetryPolicy{
				MaxAttempts:     2,
				InitialInterval: time.Millisecond,
				MaxInterval:     2 * time.Millisecond,
			})
			svc := &MockOrderService{PlaceOrderFunc: placer.PlaceOrder}

			w := doRequest(newTestRouter(svc), http.MethodPost, "/api/orders/products/p1", "user-1", PlaceOrderRequest{Quantity: 2})

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "compensation_failed", resp.Error)
			inv.AssertExpectations(t)
		})
	}
}

// =============================================================================
// CountOrders
// =============================================================================

func TestOrderHandler_CountOrders(t *testing.T) {
	svc := &MockOrderService{
		CountByProductsFunc: func(_ context.Context, ids []string) (map[string]int64, error) {
			return map[string]int64{"p1": 2, "p2": 0}, nil
		},
	}

	w := doRequest(newTestRouter(svc), http.MethodPost, "/api/orders/products/count", "",
		CountOrdersRequest{ProductIDs: []string{"p1", "p2", "p1"}})

	require.Equal(t, http.StatusOK, w.Code)

	var resp CountOrdersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []ProductCountResponse{
		{ProductID: "p1", Count: 2},
		{ProductID: "p2", Count: 0},
	}, resp.Counts)
}

func TestOrderHandler_CountOrders_BadRequest(t *testing.T) {
	w := doRequest(newTestRouter(&MockOrderService{}), http.MethodPost, "/api/orders/products/count", "", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// ListOrders
// =============================================================================

func TestOrderHandler_ListOrders(t *testing.T) {
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := &MockOrderService{
		ListFunc: func(_ context.Context, userID string) ([]*domain.Order, error) {
			return []*domain.Order{
				{ID: "o1", ProductID: "p1", Quantity: 2, UserID: userID, State: domain.StateCompleted, CreatedAt: created, UpdatedAt: created},
			}, nil
		},
	}

	w := doRequest(newTestRouter(svc), http.MethodGet, "/api/orders", "user-1", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp ListOrdersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Orders, 1)
	assert.Equal(t, "o1", resp.Orders[0].ID)
	assert.Equal(t, "COMPLETED", resp.Orders[0].State)
	assert.Equal(t, created.Unix(), resp.Orders[0].CreatedAt)
}

func TestOrderHandler_ListOrders_Empty(t *testing.T) {
	w := doRequest(newTestRouter(&MockOrderService{}), http.MethodGet, "/api/orders", "user-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"orders":[]}`, w.Body.String())
}

// =============================================================================
// GetOrder / IsPayable
// =============================================================================

func TestOrderHandler_GetOrder(t *testing.T) {
	svc := &MockOrderService{
		GetOrderFunc: func(_ context.Context, id string) (*domain.Order, error) {
			if id != "o1" {
				return nil, domain.ErrOrderNotFound
			}
			return &domain.Order{ID: "o1", UserID: "owner", State: domain.StateCreated}, nil
		},
	}
	r := newTestRouter(svc)

	w := doRequest(r, http.MethodGet, "/api/orders/o1", "owner", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/api/orders/o1", "stranger", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(r, http.MethodGet, "/api/orders/missing", "owner", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrderHandler_IsPayable(t *testing.T) {
	svc := &MockOrderService{
		IsPayableFunc: func(_ context.Context, id string) (bool, error) {
			switch id {
			case "o1":
				return true, nil
			case "o2":
				return false, nil
			default:
				return false, domain.ErrOrderNotFound
			}
		},
	}
	r := newTestRouter(svc)

	for id, want := range map[string]bool{"o1": true, "o2": false} {
		w := doRequest(r, http.MethodGet, fmt.Sprintf("/api/orders/%s/payable", id), "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp PayableResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, want, resp.Payable, id)
	}

	w := doRequest(r, http.MethodGet, "/api/orders/missing/payable", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// Identity / Tracing / Health
// =============================================================================

func TestIdentity_JWT(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var gotUser string
	svc := &MockOrderService{
		ListFunc: func(_ context.Context, userID string) ([]*domain.Order, error) {
			gotUser = userID
			return []*domain.Order{}, nil
		},
	}
	r := NewRouter(RouterConfig{ServiceName: "order-service-test", OrderService: svc, Validator: fakeValidator{}}).Engine()

	tests := []struct {
		name       string
		auth       string
		wantStatus int
	}{
		{"валидный токен", "Bearer good-token", http.StatusOK},
		{"регистр префикса", "bearer good-token", http.StatusOK},
		{"нет токена", "", http.StatusUnauthorized},
		{"невалидный токен", "Bearer bad-token", http.StatusUnauthorized},
		{"не Bearer", "Basic abc", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = ""
			req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			req.Header.Set(HeaderUserID, "header-user") // игнорируется в режиме JWT
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "jwt-user", gotUser)
			}
		})
	}
}

func TestTracing_Headers(t *testing.T) {
	r := newTestRouter(&MockOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "request-id-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "request-id-1", w.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, w.Header().Get(HeaderCorrelationID))
}

func TestReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ready := NewRouter(RouterConfig{OrderService: &MockOrderService{}}).Engine()
	w := doRequest(ready, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	notReady := NewRouter(RouterConfig{
		OrderService:   &MockOrderService{},
		ReadinessCheck: func(context.Context) error { return errors.New("mysql down") },
	}).Engine()
	w = doRequest(notReady, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
