package kafka

import (
	"errors"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var (
	errPublisherNotInitialized = errors.New("kafka order event publisher is not initialized")
	errEventTypeMissing        = errors.New("order event has no event type")
)

// OrderEventPublisher отправляет события заказов из outbox в один Kafka topic.
// Ключом сообщения служит id заказа, поэтому события одного заказа идут в одну партицию.
type OrderEventPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOrderEventPublisher создаёт publisher для topic; пустой topic означает
// TopicOrderEvents.
func NewOrderEventPublisher(producer *Producer, topic string) *OrderEventPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OrderEventPublisher{producer: producer, topic: topic, now: time.Now}
}

// Topic возвращает topic, в который пишет publisher.
func (p *OrderEventPublisher) Topic() string {
	return p.topic
}

func (p *OrderEventPublisher) Publish(msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}
	if msg.EventType == "" {
		return errEventTypeMissing
	}

	return p.producer.PublishEvent(p.topic, partitionKey(msg), msg.EventType, newEnvelope(msg, p.now()))
}

// partitionKey возвращает id заказа, а для событий без агрегата id outbox-сообщения.
func partitionKey(msg domain.OutboxMessage) string {
	if msg.AggregateID != "" {
		return msg.AggregateID
	}
	return msg.ID
}

var _ domain.OutboxPublisher = (*OrderEventPublisher)(nil)
