package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/shop"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

// Dependencies содержит состояние магазина и его окружение.
type Dependencies struct {
	OutboxRepo   *memory.OutboxRepository
	Shop         *shop.Service
	ShopMetrics  *metrics.ShopMetrics
	HTTPMetrics  *metrics.HTTPMetrics
	EventMetrics *metrics.OrderEventMetrics
	Logger       *log.Entry
}

// NewDependencies создаёт магазин с демонстрационным каталогом.
func NewDependencies(logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	outboxRepo := memory.NewOutboxRepository()
	shopMetrics := metrics.NewShopMetrics()

	svc := shop.NewService(
		memory.NewCatalog(memory.SeedProducts()),
		shop.WithOutbox(outboxRepo),
		shop.WithMetrics(shopMetrics),
		shop.WithLogger(logger.WithField("layer", "shop")),
	)

	return &Dependencies{
		OutboxRepo:   outboxRepo,
		Shop:         svc,
		ShopMetrics:  shopMetrics,
		HTTPMetrics:  metrics.NewHTTPMetrics(),
		EventMetrics: metrics.NewOrderEventMetrics(),
		Logger:       logger,
	}
}

// PendingEvents возвращает размер backlog outbox для health check.
func (d *Dependencies) PendingEvents() int {
	stats, err := d.OutboxRepo.Stats()
	if err != nil {
		return 0
	}
	return stats.PendingCount
}
