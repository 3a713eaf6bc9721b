package kafka

import (
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// DefaultOrderTopics возвращает все топики, с которыми работает Order Service.
func DefaultOrderTopics() []string {
	return []string{
		TopicDeductionCompleted,
		TopicDeductionFailed,
		TopicPaymentCompleted,
		TopicPaymentCanceled,
		TopicOrderAwaitingCompletion,
		TopicOrderCreated,
		TopicOrderCanceled,
		TopicOrderErrored,
		TopicOrderDeductionAfterCanceled,
		TopicOrderPaymentAfterCanceled,
		TopicDLQ,
	}
}

// EnsureTopics создаёт недостающие топики через контроллер кластера.
// Уже существующие топики не считаются ошибкой.
func EnsureTopics(brokers []string, topics []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("не указаны брокеры Kafka")
	}

	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("ошибка подключения к Kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("ошибка получения контроллера Kafka: %w", err)
	}

	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("ошибка подключения к контроллеру Kafka: %w", err)
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     3,
			ReplicationFactor: 1,
		})
	}

	if err := controllerConn.CreateTopics(configs...); err != nil {
		return fmt.Errorf("ошибка создания топиков: %w", err)
	}
	return nil
}
