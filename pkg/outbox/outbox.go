// Package outbox реализует Outbox Pattern для гарантированной доставки событий в Kafka.
// В одной транзакции пишем изменение состояния заказа и записи outbox.
// Отдельный Worker (relay) читает неопубликованные записи и отправляет их в Kafka.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Outbox — запись в таблице outbox для гарантированной доставки в Kafka.
type Outbox struct {
	ID            string            // UUID записи
	AggregateType string            // Тип агрегата (order)
	AggregateID   string            // ID агрегата (order_id)
	EventType     string            // Тип события (order.created / order.canceled ...)
	Topic         string            // Kafka топик
	MessageKey    string            // Ключ сообщения (для партиционирования)
	Payload       []byte            // JSON payload
	Headers       map[string]string // Headers для Kafka (trace_id, correlation_id)
	CreatedAt     time.Time         // Время создания
	Published     bool              // Запись отправлена relay
	PublishedAt   *time.Time        // Время публикации
	RetryCount    int               // Количество неудачных попыток отправки
	LastError     *string           // Последняя ошибка
}

// New создаёт неопубликованную запись outbox.
// Ключ сообщения совпадает с aggregateID: события одного заказа попадают в одну партицию.
func New(aggregateType, aggregateID, eventType, topic string, payload []byte, headers map[string]string) *Outbox {
	return &Outbox{
		ID:            uuid.New().String(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Topic:         topic,
		MessageKey:    aggregateID,
		Payload:       payload,
		Headers:       headers,
		CreatedAt:     time.Now(),
	}
}

// HeadersJSON возвращает headers в формате JSON для БД.
func (o *Outbox) HeadersJSON() ([]byte, error) {
	if o.Headers == nil {
		return nil, nil
	}
	return json.Marshal(o.Headers)
}

// SetHeadersFromJSON устанавливает headers из JSON.
func (o *Outbox) SetHeadersFromJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &o.Headers)
}
