package outbox

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	defaultRetryMaxDelay  = 2 * time.Second

	drainTimeout = 2 * time.Second
)

type workerConfig struct {
	logger       *log.Entry
	deadLetters  domain.OutboxPublisher
	metrics      *metrics.OrderEventMetrics
	pollInterval time.Duration
	batchSize    int
	retry        retryPolicy
	now          func() time.Time
}

// Option настраивает Worker.
type Option func(*workerConfig)

func WithLogger(logger *log.Entry) Option {
	return func(cfg *workerConfig) {
		cfg.logger = logger
	}
}

// WithDLQPublisher задаёт, куда уходят события, которые не удалось доставить.
// Без него такие события только помечаются failed.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(cfg *workerConfig) {
		cfg.deadLetters = publisher
	}
}

func WithMetrics(m *metrics.OrderEventMetrics) Option {
	return func(cfg *workerConfig) {
		cfg.metrics = m
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(cfg *workerConfig) {
		cfg.pollInterval = interval
	}
}

func WithBatchSize(batchSize int) Option {
	return func(cfg *workerConfig) {
		cfg.batchSize = batchSize
	}
}

// WithMaxAttempts задаёт число попыток публикации одного события за проход.
func WithMaxAttempts(maxAttempts int) Option {
	return func(cfg *workerConfig) {
		cfg.retry.maxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт паузу после первой неудачной попытки.
// 0 отключает паузы между попытками.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(cfg *workerConfig) {
		cfg.retry.initialDelay = delay
	}
}

// WithClock подменяет источник времени для отметок в DLQ и возраста backlog.
func WithClock(now func() time.Time) Option {
	return func(cfg *workerConfig) {
		cfg.now = now
	}
}

// Worker доставляет события заказов из outbox.
//
// Каждое событие проходит один из трёх путей: опубликовано и помечено sent;
// отвергнуто без повторов (неизвестный тип, нечитаемый заказ) и отправлено
// в DLQ; исчерпало попытки и тоже отправлено в DLQ. Если воркер
// останавливается посреди повторов, событие остаётся pending и достаётся
// финальному проходу.
type Worker struct {
	repo        domain.OutboxRepository
	publisher   domain.OutboxPublisher
	deadLetters domain.OutboxPublisher
	metrics     *metrics.OrderEventMetrics
	logger      *log.Entry

	pollInterval time.Duration
	batchSize    int
	retry        retryPolicy
	now          func() time.Time
}

// NewWorker создаёт воркер. Некорректные значения опций заменяются значениями по умолчанию.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	cfg := workerConfig{
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		retry: retryPolicy{
			maxAttempts:  defaultMaxAttempts,
			initialDelay: defaultRetryBaseDelay,
			maxDelay:     defaultRetryMaxDelay,
		},
		now: time.Now,
	}
	for _, option := range options {
		option(&cfg)
	}

	if cfg.logger == nil {
		cfg.logger = log.WithField("component", "outbox-worker")
	}
	if cfg.metrics == nil {
		cfg.metrics = metrics.NewOrderEventMetrics()
	}
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = defaultPollInterval
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = defaultBatchSize
	}
	if cfg.retry.maxAttempts <= 0 {
		cfg.retry.maxAttempts = defaultMaxAttempts
	}
	if cfg.retry.initialDelay < 0 {
		cfg.retry.initialDelay = 0
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	return &Worker{
		repo:         repo,
		publisher:    publisher,
		deadLetters:  cfg.deadLetters,
		metrics:      cfg.metrics,
		logger:       cfg.logger,
		pollInterval: cfg.pollInterval,
		batchSize:    cfg.batchSize,
		retry:        cfg.retry,
		now:          cfg.now,
	}
}

// Run опрашивает outbox до отмены ctx, затем делает финальный проход
// с отдельным таймаутом: заказы, оформленные перед остановкой, не теряют события.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)

		select {
		case <-ctx.Done():
			w.drain()
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if published := w.ProcessOnce(ctx); published > 0 {
		w.logger.WithField("published", published).Info("order events drained on shutdown")
	}
}

// ProcessOnce делает один проход по pending-событиям и возвращает число
// опубликованных.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer w.refreshBacklog()

	pending, err := w.repo.PullPending(w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending order events")
		return 0
	}

	var published int
	for _, msg := range pending {
		if ctx.Err() != nil {
			break
		}
		if w.deliver(ctx, msg) {
			published++
		}
	}
	return published
}

// deliver доводит одно событие до конечного состояния. Возвращает true,
// если событие опубликовано.
func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) bool {
	event, err := decodeOrderEvent(msg)
	entry := w.logger.WithFields(event.fields())
	if err != nil {
		w.deadLetter(entry, event, 0, err)
		return false
	}

	attempts, err := w.publish(ctx, event)
	if err != nil {
		if ctx.Err() != nil {
			entry.WithField("attempts", attempts).Info("order event left pending: worker is stopping")
			return false
		}
		w.deadLetter(entry, event, attempts, err)
		return false
	}

	if err := w.repo.MarkSent(msg.ID); err != nil {
		entry.WithError(err).Warn("order event published but not marked as sent")
		return false
	}

	w.metrics.RecordPublished(msg.EventType, attempts)
	entry = entry.WithField("attempts", attempts)
	if attempts > 1 {
		entry.Info("order event published after retry")
	} else {
		entry.Debug("order event published")
	}
	return true
}

// publish публикует событие, повторяя попытки по retryPolicy.
// Возвращает число сделанных попыток.
func (w *Worker) publish(ctx context.Context, event orderEvent) (int, error) {
	for attempt := 1; ; attempt++ {
		err := w.publisher.Publish(event.msg)
		if err == nil {
			return attempt, nil
		}
		if attempt >= w.retry.maxAttempts {
			return attempt, &publishError{attempts: attempt, err: err}
		}

		w.metrics.RecordRetry(event.msg.EventType)
		if waitErr := w.retry.wait(ctx, attempt); waitErr != nil {
			return attempt, waitErr
		}
	}
}

// deadLetter отправляет событие в DLQ и помечает его failed, чтобы оно
// больше не блокировало backlog.
func (w *Worker) deadLetter(entry *log.Entry, event orderEvent, attempts int, cause error) {
	reason := deadLetterReason(cause)
	entry.WithError(cause).WithFields(log.Fields{
		"reason":   reason,
		"attempts": attempts,
	}).Error("order event dead-lettered")

	outcome := metrics.EventDeadLettered
	if err := w.publishDeadLetter(event, attempts, cause); err != nil {
		entry.WithError(err).Warn("order event dropped: dead letter not published")
		outcome = metrics.EventDropped
	}
	w.metrics.RecordDelivery(event.msg.EventType, outcome)

	if err := w.repo.MarkFailed(event.msg.ID); err != nil {
		entry.WithError(err).Warn("failed to mark order event as failed")
	}
}

func (w *Worker) publishDeadLetter(event orderEvent, attempts int, cause error) error {
	if w.deadLetters == nil {
		return errNoDeadLetterPublisher
	}

	msg, err := newDeadLetterMessage(event, attempts, cause, w.now())
	if err != nil {
		return err
	}
	return w.deadLetters.Publish(msg)
}

func (w *Worker) refreshBacklog() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	var age time.Duration
	if !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetBacklog(stats.PendingCount, age)
}
