package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/reservation-order/pkg/outbox"
	"example.com/reservation-order/services/order/internal/domain"
	"example.com/reservation-order/services/order/internal/repository"
)

// MemoryDB — хранилище заказов и outbox в памяти с семантикой транзакции:
// транзакции выполняются последовательно, ошибка fn откатывает все изменения.
type MemoryDB struct {
	txMu   sync.Mutex // сериализует транзакции (аналог блокировки строк)
	mu     sync.Mutex
	orders map[string]domain.Order
	outbox []*outbox.Outbox

	// FailUpdateState, если задан, возвращается из UpdateState.
	FailUpdateState error
	// FailOutbox, если задан, возвращается из Outbox().Create.
	FailOutbox error
}

// NewMemoryDB создаёт пустое хранилище.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{orders: make(map[string]domain.Order)}
}

// WithinTransaction реализует repository.TxManager.
func (db *MemoryDB) WithinTransaction(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	ordersSnapshot := make(map[string]domain.Order, len(db.orders))
	for k, v := range db.orders {
		ordersSnapshot[k] = v
	}
	outboxLen := len(db.outbox)
	db.mu.Unlock()

	if err := fn(ctx, memoryStore{db: db}); err != nil {
		db.mu.Lock()
		db.orders = ordersSnapshot
		db.outbox = db.outbox[:outboxLen]
		db.mu.Unlock()
		return err
	}
	return nil
}

// Put кладёт заказ напрямую, минуя транзакции.
func (db *MemoryDB) Put(o *domain.Order) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.orders[o.ID] = *o
}

// Order возвращает копию заказа.
func (db *MemoryDB) Order(id string) (*domain.Order, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	o, ok := db.orders[id]
	if !ok {
		return nil, false
	}
	return &o, true
}

// OrderCount возвращает число заказов.
func (db *MemoryDB) OrderCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.orders)
}

// OutboxEventTypes возвращает типы событий outbox в порядке записи.
func (db *MemoryDB) OutboxEventTypes() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	types := make([]string, len(db.outbox))
	for i, r := range db.outbox {
		types[i] = r.EventType
	}
	return types
}

// OutboxRecords возвращает записи outbox.
func (db *MemoryDB) OutboxRecords() []*outbox.Outbox {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]*outbox.Outbox(nil), db.outbox...)
}

// Orders возвращает OrderRepository вне транзакции.
func (db *MemoryDB) Orders() repository.OrderRepository {
	return memoryOrders{db: db}
}

type memoryStore struct {
	db *MemoryDB
}

func (s memoryStore) Orders() repository.OrderRepository { return memoryOrders{db: s.db} }

func (s memoryStore) Outbox() outbox.OutboxRepository { return memoryOutbox{db: s.db} }

type memoryOrders struct {
	db *MemoryDB
}

func (r memoryOrders) Create(_ context.Context, order *domain.Order) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.orders[order.ID] = *order
	return nil
}

func (r memoryOrders) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	o, ok := r.db.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &o, nil
}

func (r memoryOrders) GetByIDForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.GetByID(ctx, id)
}

func (r memoryOrders) UpdateState(_ context.Context, id string, from, to domain.OrderState, updatedAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.FailUpdateState != nil {
		return r.db.FailUpdateState
	}
	o, ok := r.db.orders[id]
	if !ok || o.State != from {
		return domain.ErrConcurrentUpdate
	}
	o.State = to
	o.UpdatedAt = updatedAt
	r.db.orders[id] = o
	return nil
}

func (r memoryOrders) ListByState(_ context.Context, state domain.OrderState) ([]*domain.Order, error) {
	return r.filter(func(o domain.Order) bool { return o.State == state }), nil
}

func (r memoryOrders) ListByUserAndStates(_ context.Context, userID string, states []domain.OrderState) ([]*domain.Order, error) {
	return r.filter(func(o domain.Order) bool { return o.UserID == userID && contains(states, o.State) }), nil
}

func (r memoryOrders) CountByProductsAndStates(_ context.Context, productIDs []string, states []domain.OrderState) (map[string]int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	counts := make(map[string]int64)
	for _, o := range r.db.orders {
		for _, p := range productIDs {
			if o.ProductID == p && contains(states, o.State) {
				counts[p]++
			}
		}
	}
	return counts, nil
}

func (r memoryOrders) filter(keep func(domain.Order) bool) []*domain.Order {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]*domain.Order, 0)
	for _, o := range r.db.orders {
		if keep(o) {
			o := o
			out = append(out, &o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func contains(states []domain.OrderState, s domain.OrderState) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

type memoryOutbox struct {
	db *MemoryDB
}

func (r memoryOutbox) Create(_ context.Context, record *outbox.Outbox) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.FailOutbox != nil {
		return r.db.FailOutbox
	}
	r.db.outbox = append(r.db.outbox, record)
	return nil
}

func (r memoryOutbox) GetUnpublished(_ context.Context, limit int) ([]*outbox.Outbox, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]*outbox.Outbox, 0, limit)
	for _, rec := range r.db.outbox {
		if !rec.Published && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r memoryOutbox) MarkPublished(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := time.Now()
	for _, rec := range r.db.outbox {
		if rec.ID == id {
			rec.Published = true
			rec.PublishedAt = &now
		}
	}
	return nil
}

func (r memoryOutbox) MarkFailed(_ context.Context, id string, err error) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	msg := err.Error()
	for _, rec := range r.db.outbox {
		if rec.ID == id {
			rec.RetryCount++
			rec.LastError = &msg
		}
	}
	return nil
}

func (r memoryOutbox) DeletePublishedBefore(_ context.Context, before time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	kept := r.db.outbox[:0]
	var deleted int64
	for _, rec := range r.db.outbox {
		if rec.Published && rec.PublishedAt != nil && rec.PublishedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	r.db.outbox = kept
	return deleted, nil
}

// MemoryInventory — склад в памяти для сценарных тестов.
type MemoryInventory struct {
	mu    sync.Mutex
	stock map[string]int

	// FailIncrease / FailDecrease, если заданы, возвращаются из соответствующих вызовов.
	FailIncrease error
	FailDecrease error
}

// NewMemoryInventory создаёт склад с начальными остатками.
func NewMemoryInventory(stock map[string]int) *MemoryInventory {
	s := make(map[string]int, len(stock))
	for k, v := range stock {
		s[k] = v
	}
	return &MemoryInventory{stock: s}
}

func (m *MemoryInventory) DecreaseStock(_ context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDecrease != nil {
		return m.FailDecrease
	}
	current, ok := m.stock[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if current < quantity {
		return domain.ErrInsufficientStock
	}
	m.stock[productID] = current - quantity
	return nil
}

func (m *MemoryInventory) IncreaseStock(_ context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIncrease != nil {
		return m.FailIncrease
	}
	if _, ok := m.stock[productID]; !ok {
		return domain.ErrProductNotFound
	}
	m.stock[productID] += quantity
	return nil
}

// Stock возвращает текущий остаток.
func (m *MemoryInventory) Stock(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[productID]
}
