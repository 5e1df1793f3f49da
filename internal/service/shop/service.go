package shop

import (
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

// Service владеет состоянием магазина: каталогом, корзиной и журналом заказов.
//
// Все операции выполняются под одним mutex, поэтому последовательности
// "проверить остаток, затем изменить" атомарны даже при параллельных
// HTTP-запросах. Наружу отдаются только копии.
type Service struct {
	mu      sync.Mutex
	catalog *memory.Catalog
	cart    *memory.Cart
	ledger  *memory.Ledger

	outbox  domain.OutboxRepository
	metrics *metrics.ShopMetrics
	logger  *log.Entry
	now     func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithOutbox включает постановку событий order.placed в outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) {
		s.outbox = outbox
	}
}

// WithMetrics задаёт Prometheus-метрики.
func WithMetrics(m *metrics.ShopMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создаёт сервис поверх каталога с пустой корзиной и журналом.
func NewService(catalog *memory.Catalog, options ...Option) *Service {
	s := &Service{
		catalog: catalog,
		cart:    memory.NewCart(),
		ledger:  memory.NewLedger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "shop")
	}
	return s
}

// ListProducts возвращает все товары каталога в порядке добавления.
func (s *Service) ListProducts() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.catalog.List()
}

// GetProduct возвращает товар по ID или ErrProductNotFound.
func (s *Service) GetProduct(id int64) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.catalog.Get(id)
}

// AddToCart добавляет quantity единиц товара в корзину и возвращает
// суммарное количество единиц в корзине.
//
// Остаток проверяется по полному складу товара, без учёта того, что уже
// лежит в корзине: корзина ничего не резервирует до оформления.
func (s *Service) AddToCart(productID int64, quantity int) (int, error) {
	count, err := s.addToCart(productID, quantity)
	if s.metrics != nil {
		s.metrics.RecordCartAdd(resultLabel(err))
	}
	return count, err
}

func (s *Service) addToCart(productID int64, quantity int) (int, error) {
	if productID <= 0 {
		return 0, domain.ErrProductIDInvalid
	}
	if quantity <= 0 {
		return 0, domain.ErrQuantityInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, err := s.catalog.Get(productID)
	if err != nil {
		return 0, err
	}
	if product.Stock < quantity {
		return 0, &domain.InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Requested:   quantity,
			Available:   product.Stock,
		}
	}

	count := s.cart.Add(product, quantity)
	s.setCartItems(count)
	return count, nil
}

// ViewCart возвращает снимок корзины с суммами по позициям и общей суммой.
func (s *Service) ViewCart() domain.CartView {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.NewCartView(s.cart.Lines())
}

// RemoveFromCart удаляет позицию товара и возвращает новое количество единиц.
func (s *Service) RemoveFromCart(productID int64) (int, error) {
	s.mu.Lock()
	count, err := s.cart.Remove(productID)
	if err == nil {
		s.setCartItems(count)
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordCartRemove(resultLabel(err))
	}
	return count, err
}

// setCartItems обновляет gauge корзины. Вызывается под s.mu, иначе
// параллельные запросы могут записать устаревшее значение последним.
func (s *Service) setCartItems(count int) {
	if s.metrics != nil {
		s.metrics.SetCartItems(count)
	}
}

// PlaceOrder оформляет заказ из текущей корзины.
//
// Проверки выполняются по порядку, первая неудачная побеждает: данные
// покупателя и непустая корзина (ErrInvalidInput), затем остаток по каждой
// позиции в порядке корзины (InsufficientStockError). Если проверки прошли,
// списываются остатки, заказ попадает в журнал и outbox, корзина очищается.
// При ошибке состояние не меняется.
func (s *Service) PlaceOrder(customer domain.Customer) (domain.Order, error) {
	start := time.Now()
	order, err := s.placeOrder(customer.Normalize())
	if s.metrics != nil {
		s.metrics.RecordCheckoutDuration(time.Since(start))
		if err != nil {
			s.metrics.RecordOrderFailed(resultLabel(err))
		} else {
			s.metrics.RecordOrderPlaced(order.Total)
		}
	}
	return order, err
}

func (s *Service) placeOrder(customer domain.Customer) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := customer.Validate(); err != nil {
		return domain.Order{}, err
	}
	if s.cart.Empty() {
		return domain.Order{}, domain.ErrCartEmpty
	}

	lines := s.cart.Lines()
	// Withdraw проверяет все позиции до первого списания, так что при
	// ошибке склад не меняется.
	if err := s.catalog.Withdraw(lines); err != nil {
		return domain.Order{}, err
	}

	order := s.ledger.Append(customer, lines, s.now())
	s.enqueueOrderPlaced(order)
	s.cart.Clear()
	s.setCartItems(0)

	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"total":    order.Total,
		"items":    len(order.Items),
	}).Info("order placed")

	return order, nil
}

// enqueueOrderPlaced ставит событие в outbox. Заказ к этому моменту уже
// сохранён, поэтому ошибка только логируется.
func (s *Service) enqueueOrderPlaced(order domain.Order) {
	if s.outbox == nil {
		return
	}

	payload, err := json.Marshal(order)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to marshal order event")
		return
	}

	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   strconv.FormatInt(order.ID, 10),
		EventType:     domain.EventTypeOrderPlaced,
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to enqueue order event")
	}
}

// ListOrders возвращает все заказы в порядке оформления.
func (s *Service) ListOrders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ledger.List()
}

// CatalogSize возвращает количество товаров (для стартового лога и health).
func (s *Service) CatalogSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.catalog.Len()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, domain.ErrInvalidInput):
		return metrics.ResultInvalidInput
	case domain.IsNotFound(err):
		return metrics.ResultNotFound
	case errors.Is(err, domain.ErrInsufficientStock):
		return metrics.ResultInsufficientStock
	default:
		return metrics.ResultError
	}
}
