package app

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// Config описывает настройки запуска магазина.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	GRPCAddr    string
	// StaticDir — каталог с index.html. Пустая строка отключает статику.
	StaticDir string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxPending — порог backlog, после которого /healthz сообщает degraded.
	OutboxMaxPending int

	// KafkaBrokers пустой: события заказов пишутся в лог.
	KafkaBrokers []string
	KafkaTopic   string

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:           ":3001",
		MetricsAddr:        ":9090",
		GRPCAddr:           ":50051",
		StaticDir:          "public",
		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,
		OutboxMaxPending:   1000,
		KafkaTopic:         kafka.TopicOrderEvents,
		ShutdownTimeout:    5 * time.Second,
	}
}
