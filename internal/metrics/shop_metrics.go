package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций для label `result`.
const (
	ResultOK                = "ok"
	ResultInvalidInput      = "invalid_input"
	ResultNotFound          = "not_found"
	ResultInsufficientStock = "insufficient_stock"
	ResultError             = "error"
)

// ShopMetrics содержит метрики корзины и оформления заказов.
type ShopMetrics struct {
	// Счётчики операций с корзиной
	cartAdds    *prometheus.CounterVec
	cartRemoves *prometheus.CounterVec

	// Оформление заказов
	ordersPlaced   prometheus.Counter
	orderFailures  *prometheus.CounterVec
	orderValue     prometheus.Histogram
	checkoutTiming prometheus.Histogram

	// Текущее состояние
	cartItems prometheus.Gauge
}

// NewShopMetrics создаёт метрики и регистрирует их в default registry.
func NewShopMetrics() *ShopMetrics {
	return NewShopMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewShopMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация переиспользует уже существующие коллекторы.
func NewShopMetricsWithRegisterer(registerer prometheus.Registerer) *ShopMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ShopMetrics{
		cartAdds: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_add_total",
			Help: "Total number of add-to-cart requests grouped by result",
		}, []string{"result"}),
		cartRemoves: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cart_remove_total",
			Help: "Total number of remove-from-cart requests grouped by result",
		}, []string{"result"}),
		ordersPlaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Total number of orders placed successfully",
		}),
		orderFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_failures_total",
			Help: "Total number of rejected checkouts grouped by reason",
		}, []string{"reason"}),
		orderValue: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_order_total_value",
			Help:    "Total value of placed orders",
			Buckets: prometheus.ExponentialBuckets(100, 4, 8),
		}),
		checkoutTiming: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_duration_seconds",
			Help:    "Duration of checkout processing in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		cartItems: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_cart_items",
			Help: "Current number of item units in the cart",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordCartAdd учитывает попытку добавить товар в корзину.
func (m *ShopMetrics) RecordCartAdd(result string) {
	m.cartAdds.WithLabelValues(result).Inc()
}

// RecordCartRemove учитывает попытку удалить товар из корзины.
func (m *ShopMetrics) RecordCartRemove(result string) {
	m.cartRemoves.WithLabelValues(result).Inc()
}

// RecordOrderPlaced учитывает успешный заказ и его сумму.
func (m *ShopMetrics) RecordOrderPlaced(total int64) {
	m.ordersPlaced.Inc()
	m.orderValue.Observe(float64(total))
}

// RecordOrderFailed учитывает отклонённое оформление.
func (m *ShopMetrics) RecordOrderFailed(reason string) {
	m.orderFailures.WithLabelValues(reason).Inc()
}

// RecordCheckoutDuration записывает время оформления заказа.
func (m *ShopMetrics) RecordCheckoutDuration(duration time.Duration) {
	m.checkoutTiming.Observe(duration.Seconds())
}

// SetCartItems выставляет текущее количество единиц в корзине.
func (m *ShopMetrics) SetCartItems(count int) {
	m.cartItems.Set(float64(count))
}
