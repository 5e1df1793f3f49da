package app

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

// eventPublishers определяет, куда outbox worker отправляет события заказов.
type eventPublishers struct {
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	producer  *kafka.Producer
}

// initEventPublishers выбирает Kafka, если заданы брокеры, иначе лог.
// Недоступная Kafka не мешает старту: магазин продолжает работу с логом.
func initEventPublishers(cfg Config, logger *log.Entry) eventPublishers {
	logPublisher := outbox.NewLogPublisher(logger.WithField("layer", "events"))

	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil || producer == nil {
		return eventPublishers{publisher: logPublisher}
	}

	return eventPublishers{
		publisher: kafka.NewOrderEventPublisher(producer, cfg.KafkaTopic),
		dlq:       kafka.NewOrderEventPublisher(producer, kafka.TopicDeadLetterQueue),
		producer:  producer,
	}
}

// initKafkaProducer возвращает nil, nil при пустом списке брокеров.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, logger.WithField("layer", "kafka"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, fmt.Errorf("init kafka producer: %w", err)
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
