package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"example.com/reservation-order/pkg/jwt"
	"example.com/reservation-order/pkg/logger"
	"example.com/reservation-order/pkg/tracing"
)

// HTTP заголовки для трассировки и идентификации.
const (
	HeaderTraceID       = "X-Trace-ID"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-ID" // Алиас для Trace ID
	HeaderUserID        = "User-Id"      // Выставляется upstream gateway
)

// contextKeyUserID — ключ user_id в gin.Context.
const contextKeyUserID = "user_id"

// Tracing добавляет trace_id и correlation_id в контекст запроса.
// trace_id берётся из заголовков, затем из span otelgin; иначе генерируется.
func Tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = c.GetHeader(HeaderRequestID)
		}
		if traceID == "" {
			traceID = tracing.TraceIDFromSpan(c.Request.Context())
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}

		correlationID := c.GetHeader(HeaderCorrelationID)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		ctx := logger.NewContextWithIDs(c.Request.Context(), traceID, correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Header(HeaderTraceID, traceID)
		c.Header(HeaderCorrelationID, correlationID)

		log := logger.FromContext(ctx)
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("client_ip", c.ClientIP()).
			Msg("Входящий запрос")

		c.Next()

		statusCode := c.Writer.Status()

		logEvent := log.Info()
		if statusCode >= 400 {
			logEvent = log.Warn()
		}
		if statusCode >= 500 {
			logEvent = log.Error()
		}

		logEvent.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", statusCode).
			Dur("duration", time.Since(start)).
			Msg("Запрос завершён")
	}
}

// TokenValidator — интерфейс для валидации токенов (*jwt.Validator).
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*jwt.Claims, error)
}

// Identity определяет вызывающего пользователя.
// С validator: Bearer токен RS256. Без него: доверенный заголовок User-Id.
func Identity(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromContext(c.Request.Context())

		var userID string
		if validator != nil {
			token := extractBearerToken(c)
			if token == "" {
				log.Debug().Msg("Отсутствует токен авторизации")
				abortUnauthorized(c, "Требуется авторизация")
				return
			}

			claims, err := validator.Validate(c.Request.Context(), token)
			if err != nil {
				log.Warn().Err(err).Msg("Ошибка валидации токена")
				abortUnauthorized(c, "Невалидный токен")
				return
			}
			userID = claims.UserID
		} else {
			userID = strings.TrimSpace(c.GetHeader(HeaderUserID))
			if userID == "" {
				log.Debug().Msg("Отсутствует заголовок User-Id")
				abortUnauthorized(c, "Требуется заголовок User-Id")
				return
			}
		}

		c.Set(contextKeyUserID, userID)
		c.Next()
	}
}

// SecurityHeaders добавляет заголовки безопасности ко всем ответам.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Cache-Control", "no-store")
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
		Error:   "unauthorized",
		Message: message,
	})
}

// extractBearerToken извлекает токен из Authorization header ("Bearer <token>").
func extractBearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
