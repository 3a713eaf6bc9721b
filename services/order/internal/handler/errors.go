// Package handler содержит HTTP обработчики REST API Order Service.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/reservation-order/pkg/logger"
	"example.com/reservation-order/services/order/internal/domain"
)

// ErrorResponse — стандартный формат ошибки API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HandleError преобразует доменную ошибку в HTTP ответ.
// ВАЖНО: err не должен быть nil — это баг в вызывающем коде.
func HandleError(c *gin.Context, err error, method string) {
	if err == nil {
		logger.Error().Str("method", method).Msg("HandleError вызван с nil ошибкой — баг в коде")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Внутренняя ошибка сервера",
		})
		return
	}

	log := logger.FromContext(c.Request.Context())

	httpStatus, errorCode := classify(err)
	if httpStatus >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("method", method).
			Int("status", httpStatus).
			Msg("Ошибка обработки запроса")
	}

	message := err.Error()
	if httpStatus == http.StatusInternalServerError {
		message = "Внутренняя ошибка сервера"
	}

	c.JSON(httpStatus, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// classify сопоставляет доменные ошибки с HTTP статусом и кодом ошибки.
// ErrCompensationFailed проверяется первым: такая ошибка несёт и ErrRepository,
// и ошибку склада, из-за которой резерв не вернулся.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrCompensationFailed):
		return http.StatusInternalServerError, "compensation_failed"
	case errors.Is(err, domain.ErrInvalidUserID),
		errors.Is(err, domain.ErrInvalidProductID),
		errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConcurrentUpdate):
		return http.StatusConflict, "failed_precondition"
	case errors.Is(err, domain.ErrExternalService):
		return http.StatusServiceUnavailable, "service_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
