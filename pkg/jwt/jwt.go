// Package jwt проверяет JWT токены (RS256), выданные сервисом пользователей.
// Order Service только валидирует: нужен публичный ключ, приватный не используется.
package jwt

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// prefixRevoked — ключ отозванного токена в Redis: jwt:blacklist:{jti}.
const prefixRevoked = "jwt:blacklist:"

var (
	// ErrInvalidToken — подпись, срок действия или claims некорректны.
	ErrInvalidToken = errors.New("невалидный токен")

	// ErrRevokedToken — токен отозван.
	ErrRevokedToken = errors.New("токен отозван")
)

// Claims содержит данные JWT токена.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

// Config содержит параметры для создания Validator.
type Config struct {
	PublicKeyPath string // Путь к публичному ключу (PEM)
	Issuer        string // Ожидаемый издатель; пустой — не проверяется
}

// Validator проверяет токены и, если задан Redis, список отзыва.
type Validator struct {
	publicKey *rsa.PublicKey
	issuer    string
	revoked   *redis.Client
}

// NewValidator загружает публичный ключ и создаёт Validator.
func NewValidator(cfg Config) (*Validator, error) {
	publicKey, err := LoadPublicKey(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки публичного ключа: %w", err)
	}
	return &Validator{publicKey: publicKey, issuer: cfg.Issuer}, nil
}

// NewValidatorWithKey создаёт Validator из уже загруженного ключа.
func NewValidatorWithKey(publicKey *rsa.PublicKey, issuer string) *Validator {
	return &Validator{publicKey: publicKey, issuer: issuer}
}

// WithRevocationStore включает проверку отозванных токенов в Redis.
func (v *Validator) WithRevocationStore(rdb *redis.Client) *Validator {
	v.revoked = rdb
	return v
}

// Validate проверяет подпись, срок действия, издателя и отзыв токена.
func (v *Validator) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	if v.revoked != nil && claims.ID != "" {
		exists, err := v.revoked.Exists(ctx, prefixRevoked+claims.ID).Result()
		if err != nil {
			return nil, fmt.Errorf("ошибка проверки blacklist: %w", err)
		}
		if exists > 0 {
			return nil, ErrRevokedToken
		}
	}

	return claims, nil
}

// LoadPublicKey загружает RSA публичный ключ из PEM файла (PKIX или PKCS#1).
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("не удалось декодировать PEM блок из %s", path)
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}

	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("ключ не является RSA публичным ключом")
	}

	return rsaKey, nil
}
