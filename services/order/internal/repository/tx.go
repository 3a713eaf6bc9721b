package repository

import (
	"context"

	"gorm.io/gorm"

	"example.com/reservation-order/pkg/outbox"
)

// aggregateOrder — тип агрегата в таблице outbox.
const aggregateOrder = "order"

// Store — репозитории, привязанные к одной транзакции.
type Store interface {
	Orders() OrderRepository
	Outbox() outbox.OutboxRepository
}

// TxManager выполняет fn в одной транзакции БД.
// Ошибка fn или паника откатывают транзакцию, иначе она фиксируется.
type TxManager interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

type txStore struct {
	tx *gorm.DB
}

func (s *txStore) Orders() OrderRepository {
	return NewOrderRepository(s.tx)
}

func (s *txStore) Outbox() outbox.OutboxRepository {
	return outbox.NewOutboxRepository(s.tx, aggregateOrder)
}

type gormTxManager struct {
	db *gorm.DB
}

// NewTxManager создаёт TxManager поверх GORM.
func NewTxManager(db *gorm.DB) TxManager {
	return &gormTxManager{db: db}
}

// WithinTransaction открывает транзакцию через gorm.DB.Transaction.
func (m *gormTxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &txStore{tx: tx})
	})
}

// NewOutboxRepository возвращает outbox репозиторий заказов вне транзакции (для relay).
func NewOutboxRepository(db *gorm.DB) outbox.OutboxRepository {
	return outbox.NewOutboxRepository(db, aggregateOrder)
}

// Migrate создаёт таблицы orders и outbox.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&OrderModel{}, &outbox.OutboxModel{})
}
