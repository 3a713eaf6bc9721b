package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==================== Вспомогательные функции ====================

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "не удалось сгенерировать RSA ключ")
	return key
}

func writePublicKey(t *testing.T, key *rsa.PublicKey, pkcs1 bool) string {
	t.Helper()

	var block *pem.Block
	if pkcs1 {
		block = &pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(key)}
	} else {
		der, err := x509.MarshalPKIXPublicKey(key)
		require.NoError(t, err)
		block = &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	}

	path := filepath.Join(t.TempDir(), "public.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims Claims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims(userID string) Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			Issuer:    "user-service",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
		UserID: userID,
	}
}

// ==================== LoadPublicKey ====================

func TestLoadPublicKey(t *testing.T) {
	key := generateKey(t)

	t.Run("PKIX", func(t *testing.T) {
		pub, err := LoadPublicKey(writePublicKey(t, &key.PublicKey, false))
		require.NoError(t, err)
		assert.Equal(t, key.PublicKey.N, pub.N)
	})

	t.Run("PKCS1", func(t *testing.T) {
		pub, err := LoadPublicKey(writePublicKey(t, &key.PublicKey, true))
		require.NoError(t, err)
		assert.Equal(t, key.PublicKey.N, pub.N)
	})

	t.Run("файл не существует", func(t *testing.T) {
		_, err := LoadPublicKey(filepath.Join(t.TempDir(), "missing.pem"))
		assert.Error(t, err)
	})

	t.Run("не PEM", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.pem")
		require.NoError(t, os.WriteFile(path, []byte("not a pem"), 0o600))

		_, err := LoadPublicKey(path)
		assert.Error(t, err)
	})
}

// ==================== Validate ====================

func TestValidator_Validate(t *testing.T) {
	key := generateKey(t)
	v := NewValidatorWithKey(&key.PublicKey, "user-service")
	ctx := context.Background()

	t.Run("валидный токен", func(t *testing.T) {
		claims, err := v.Validate(ctx, signToken(t, key, validClaims("user-1")))
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
	})

	t.Run("истёкший токен", func(t *testing.T) {
		c := validClaims("user-1")
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

		_, err := v.Validate(ctx, signToken(t, key, c))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("чужой издатель", func(t *testing.T) {
		c := validClaims("user-1")
		c.Issuer = "someone-else"

		_, err := v.Validate(ctx, signToken(t, key, c))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("подписан другим ключом", func(t *testing.T) {
		_, err := v.Validate(ctx, signToken(t, generateKey(t), validClaims("user-1")))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("без user_id", func(t *testing.T) {
		_, err := v.Validate(ctx, signToken(t, key, validClaims("")))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("мусор вместо токена", func(t *testing.T) {
		_, err := v.Validate(ctx, "abc.def.ghi")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestValidator_Revoked(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	key := generateKey(t)
	v := NewValidatorWithKey(&key.PublicKey, "").WithRevocationStore(rdb)
	token := signToken(t, key, validClaims("user-1"))

	_, err := v.Validate(context.Background(), token)
	require.NoError(t, err)

	require.NoError(t, mr.Set(prefixRevoked+"jti-1", "1"))

	_, err = v.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrRevokedToken)
}

func TestNewValidator_FromFile(t *testing.T) {
	key := generateKey(t)

	v, err := NewValidator(Config{PublicKeyPath: writePublicKey(t, &key.PublicKey, false)})
	require.NoError(t, err)

	claims, err := v.Validate(context.Background(), signToken(t, key, validClaims("u")))
	require.NoError(t, err)
	assert.Equal(t, "u", claims.UserID)

	_, err = NewValidator(Config{PublicKeyPath: "/nonexistent"})
	assert.Error(t, err)
}
