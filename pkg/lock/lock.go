// Package lock предоставляет кластерную взаимную блокировку для фоновых задач.
//
// Захват неблокирующий: если блокировка занята, TryAcquire сразу возвращает
// acquired=false, и задача пропускает запуск до следующего тика.
// Lease всегда освобождается вызывающим (defer), TTL страхует от падения процесса.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Locker захватывает именованную блокировку с ограниченным временем жизни.
type Locker interface {
	// TryAcquire пытается захватить key без ожидания.
	// Возвращает (nil, false, nil), если блокировка занята.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)
}

// Lease — захваченная блокировка.
type Lease interface {
	// Release освобождает блокировку, только если она всё ещё наша.
	Release(ctx context.Context) error
}

// newToken возвращает уникальный идентификатор владельца блокировки.
func newToken() string {
	return uuid.New().String()
}
