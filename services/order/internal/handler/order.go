package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/reservation-order/pkg/logger"
	"example.com/reservation-order/services/order/internal/domain"
	"example.com/reservation-order/services/order/internal/service"
)

// OrderHandler — обработчик заказов.
type OrderHandler struct {
	orderService service.OrderService
}

// NewOrderHandler создаёт новый обработчик заказов.
func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// === Request/Response DTOs ===

// PlaceOrderRequest — запрос на размещение заказа.
type PlaceOrderRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// PlaceOrderResponse — ответ на размещение заказа.
type PlaceOrderResponse struct {
	OrderID string `json:"order_id"`
}

// CountOrdersRequest — запрос на подсчёт оплаченных заказов по товарам.
type CountOrdersRequest struct {
	ProductIDs []string `json:"product_ids" binding:"required"`
}

// ProductCountResponse — число оплаченных заказов товара.
type ProductCountResponse struct {
	ProductID string `json:"product_id"`
	Count     int64  `json:"count"`
}

// CountOrdersResponse — ответ на подсчёт (в порядке запроса, без повторов).
type CountOrdersResponse struct {
	Counts []ProductCountResponse `json:"counts"`
}

// OrderResponse — информация о заказе в ответе.
type OrderResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UserID    string `json:"user_id"`
	State     string `json:"state"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// ListOrdersResponse — ответ на запрос списка заказов.
type ListOrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
}

// GetOrderResponse — ответ на запрос заказа.
type GetOrderResponse struct {
	Order OrderResponse `json:"order"`
}

// PayableResponse — можно ли оплатить заказ.
type PayableResponse struct {
	OrderID string `json:"order_id"`
	Payable bool   `json:"payable"`
}

// === Handlers ===

// PlaceOrder резервирует товар и создаёт заказ.
// POST /api/orders/products/:productId
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug().Err(err).Msg("Невалидный запрос на размещение заказа")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Невалидные данные запроса",
		})
		return
	}

	productID := c.Param("productId")
	orderID, err := h.orderService.PlaceOrder(ctx, userID, productID, req.Quantity)
	if err != nil {
		HandleError(c, err, "PlaceOrder")
		return
	}

	log.Info().
		Str("order_id", orderID).
		Str("user_id", userID).
		Str("product_id", productID).
		Int("quantity", req.Quantity).
		Msg("Заказ размещён")

	c.JSON(http.StatusCreated, PlaceOrderResponse{OrderID: orderID})
}

// CountOrders возвращает число оплаченных заказов по товарам.
// POST /api/orders/products/count
func (h *OrderHandler) CountOrders(c *gin.Context) {
	ctx := c.Request.Context()

	var req CountOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Ctx(ctx).Debug().Err(err).Msg("Невалидный запрос на подсчёт заказов")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Невалидные данные запроса",
		})
		return
	}

	counts, err := h.orderService.CountByProducts(ctx, req.ProductIDs)
	if err != nil {
		HandleError(c, err, "CountOrders")
		return
	}

	resp := CountOrdersResponse{Counts: make([]ProductCountResponse, 0, len(counts))}
	seen := make(map[string]struct{}, len(counts))
	for _, id := range req.ProductIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		resp.Counts = append(resp.Counts, ProductCountResponse{ProductID: id, Count: counts[id]})
	}

	c.JSON(http.StatusOK, resp)
}

// ListOrders возвращает оплаченные заказы текущего пользователя.
// GET /api/orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	orders, err := h.orderService.ListPaymentCompletedOrders(ctx, userID)
	if err != nil {
		HandleError(c, err, "ListOrders")
		return
	}

	resp := ListOrdersResponse{Orders: make([]OrderResponse, len(orders))}
	for i, o := range orders {
		resp.Orders[i] = orderToResponse(o)
	}

	c.JSON(http.StatusOK, resp)
}

// GetOrder возвращает заказ текущего пользователя по ID.
// GET /api/orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	orderID := c.Param("id")
	order, err := h.orderService.GetOrder(ctx, orderID)
	if err != nil {
		HandleError(c, err, "GetOrder")
		return
	}

	if order.UserID != userID {
		log.Warn().
			Str("order_id", orderID).
			Str("order_user_id", order.UserID).
			Str("request_user_id", userID).
			Msg("Попытка доступа к чужому заказу")
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "Доступ к заказу запрещён",
		})
		return
	}

	c.JSON(http.StatusOK, GetOrderResponse{Order: orderToResponse(order)})
}

// IsPayable сообщает Payment Service, можно ли оплатить заказ.
// GET /api/orders/:id/payable
func (h *OrderHandler) IsPayable(c *gin.Context) {
	orderID := c.Param("id")

	payable, err := h.orderService.IsPayable(c.Request.Context(), orderID)
	if err != nil {
		HandleError(c, err, "IsPayable")
		return
	}

	c.JSON(http.StatusOK, PayableResponse{OrderID: orderID, Payable: payable})
}

// === Helper functions ===

// getUserID извлекает user_id, выставленный Identity middleware.
// Возвращает false и отправляет ошибку, если user_id не найден.
func (h *OrderHandler) getUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(contextKeyUserID)
	if userID == "" {
		logger.Ctx(c.Request.Context()).Warn().Msg("user_id не найден в контексте")
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Требуется авторизация",
		})
		return "", false
	}
	return userID, true
}

// orderToResponse преобразует domain.Order в OrderResponse.
func orderToResponse(o *domain.Order) OrderResponse {
	return OrderResponse{
		ID:        o.ID,
		ProductID: o.ProductID,
		Quantity:  o.Quantity,
		UserID:    o.UserID,
		State:     string(o.State),
		CreatedAt: o.CreatedAt.Unix(),
		UpdatedAt: o.UpdatedAt.Unix(),
	}
}
