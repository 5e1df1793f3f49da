package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func orderPlaced(id, orderID string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   orderID,
		EventType:     domain.EventTypeOrderPlaced,
		Payload:       []byte(`{"id":` + orderID + `,"total":30000,"status":"confirmed","items":[{"productId":1,"quantity":2}]}`),
	}
}

func newTestWorker(t *testing.T, repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) (*Worker, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	base := []Option{
		WithMetrics(metrics.NewOrderEventMetricsWithRegisterer(reg)),
		WithRetryBaseDelay(0),
		WithClock(func() time.Time { return fixedNow }),
	}
	return NewWorker(repo, publisher, append(base, options...)...), reg
}

// metricValue возвращает значение counter или gauge с заданными label.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := 0
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] == pair.GetValue() {
					matched++
				}
			}
			if matched != len(labels) {
				continue
			}
			if metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}

func decodeDeadLetter(t *testing.T, msg domain.OutboxMessage) DeadLetter {
	t.Helper()

	var letter DeadLetter
	require.NoError(t, json.Unmarshal(msg.Payload, &letter))
	return letter
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderPlaced("msg-1", "1")}}
	publisher := &stubPublisher{}
	worker, reg := newTestWorker(t, repo, publisher)

	published := worker.ProcessOnce(context.Background())

	assert.Equal(t, 1, published)
	assert.Equal(t, []string{"msg-1"}, repo.sentIDs)
	assert.Empty(t, repo.failedIDs)
	assert.Equal(t, 1, publisher.calls())
	assert.Equal(t, 1.0, metricValue(t, reg, "storefront_order_events_total", map[string]string{
		"event_type": domain.EventTypeOrderPlaced,
		"outcome":    metrics.EventPublished,
	}))
}

func TestWorker_ProcessOnce_RetriesExhaustedGoToDLQ(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderPlaced("msg-2", "2")}}
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlq := &stubPublisher{}
	worker, reg := newTestWorker(t, repo, publisher, WithDLQPublisher(dlq), WithMaxAttempts(3))

	published := worker.ProcessOnce(context.Background())

	assert.Zero(t, published)
	assert.Equal(t, 3, publisher.calls())
	assert.Empty(t, repo.sentIDs)
	assert.Equal(t, []string{"msg-2"}, repo.failedIDs)
	require.Equal(t, 1, dlq.calls())

	msg := dlq.last()
	assert.Equal(t, "msg-2", msg.ID)
	assert.Equal(t, "2", msg.AggregateID, "dead letter keeps the order key")

	letter := decodeDeadLetter(t, msg)
	assert.Equal(t, ReasonRetriesExhausted, letter.Reason)
	assert.Equal(t, 3, letter.Attempts)
	assert.Equal(t, int64(2), letter.OrderID)
	assert.Equal(t, "publish failed after 3 attempts: broker unavailable", letter.Error)
	assert.True(t, fixedNow.Equal(letter.DeadLetteredAt))
	assert.JSONEq(t, string(orderPlaced("msg-2", "2").Payload), string(letter.Payload))

	assert.Equal(t, 2.0, metricValue(t, reg, "storefront_order_event_retries_total", map[string]string{
		"event_type": domain.EventTypeOrderPlaced,
	}))
	assert.Equal(t, 1.0, metricValue(t, reg, "storefront_order_events_total", map[string]string{
		"event_type": domain.EventTypeOrderPlaced,
		"outcome":    metrics.EventDeadLettered,
	}))
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderPlaced("msg-3", "3")}}
	publisher := &stubPublisher{
		sequenceErrors: []error{
			errors.New("attempt 1"),
			errors.New("attempt 2"),
			nil,
		},
	}
	worker, _ := newTestWorker(t, repo, publisher, WithMaxAttempts(3))

	assert.Equal(t, 1, worker.ProcessOnce(context.Background()))
	assert.Equal(t, 3, publisher.calls())
	assert.Equal(t, []string{"msg-3"}, repo.sentIDs)
	assert.Empty(t, repo.failedIDs)
}

func TestWorker_ProcessOnce_UndeliverableEventsSkipRetries(t *testing.T) {
	t.Parallel()

	unknown := orderPlaced("msg-unknown", "4")
	unknown.EventType = "order.shipped"

	broken := orderPlaced("msg-broken", "5")
	broken.Payload = []byte(`{"id":`)

	noOrderID := orderPlaced("msg-no-id", "6")
	noOrderID.Payload = []byte(`{"total":100}`)

	tests := []struct {
		name       string
		msg        domain.OutboxMessage
		wantReason string
		wantRaw    string
	}{
		{"unsupported event type", unknown, ReasonUnsupportedEvent, ""},
		{"payload is not json", broken, ReasonMalformedPayload, `{"id":`},
		{"payload without order id", noOrderID, ReasonMalformedPayload, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubOutboxRepo{pending: []domain.OutboxMessage{tt.msg}}
			publisher := &stubPublisher{}
			dlq := &stubPublisher{}
			worker, _ := newTestWorker(t, repo, publisher, WithDLQPublisher(dlq), WithMaxAttempts(5))

			assert.Zero(t, worker.ProcessOnce(context.Background()))
			assert.Zero(t, publisher.calls(), "retrying cannot fix this event")
			assert.Equal(t, []string{tt.msg.ID}, repo.failedIDs)
			require.Equal(t, 1, dlq.calls())

			letter := decodeDeadLetter(t, dlq.last())
			assert.Equal(t, tt.wantReason, letter.Reason)
			assert.Zero(t, letter.Attempts)
			assert.Equal(t, tt.wantRaw, letter.RawPayload)
		})
	}
}

func TestWorker_ProcessOnce_WithoutDLQEventIsDropped(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderPlaced("msg-7", "7")}}
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	worker, reg := newTestWorker(t, repo, publisher, WithMaxAttempts(2))

	assert.Zero(t, worker.ProcessOnce(context.Background()))
	assert.Equal(t, []string{"msg-7"}, repo.failedIDs)
	assert.Equal(t, 1.0, metricValue(t, reg, "storefront_order_events_total", map[string]string{
		"event_type": domain.EventTypeOrderPlaced,
		"outcome":    metrics.EventDropped,
	}))
}

func TestWorker_ProcessOnce_StopDuringRetryKeepsEventPending(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	_, err := repo.Enqueue(orderPlaced("", "8"))
	require.NoError(t, err)

	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlq := &stubPublisher{}
	worker, _ := newTestWorker(t, repo, publisher,
		WithDLQPublisher(dlq),
		WithMaxAttempts(5),
		WithRetryBaseDelay(time.Hour),
	)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	assert.Zero(t, worker.ProcessOnce(ctx))
	assert.Equal(t, 1, publisher.calls())
	assert.Zero(t, dlq.calls())
	assert.Len(t, repo.AllPending(), 1, "interrupted event must wait for the next pass")
}

func TestWorker_ProcessOnce_CanceledContext(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderPlaced("msg-9", "9")}}
	publisher := &stubPublisher{}
	worker, _ := newTestWorker(t, repo, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Zero(t, worker.ProcessOnce(ctx))
	assert.Zero(t, publisher.calls())
}

func TestWorker_ProcessOnce_RefreshesBacklog(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending:       []domain.OutboxMessage{orderPlaced("msg-10", "10"), orderPlaced("msg-11", "11")},
		oldestPending: fixedNow.Add(-30 * time.Second),
	}
	worker, reg := newTestWorker(t, repo, &stubPublisher{}, WithBatchSize(1))

	assert.Equal(t, 1, worker.ProcessOnce(context.Background()))
	assert.Equal(t, 1.0, metricValue(t, reg, "storefront_order_events_backlog", nil))
	assert.Equal(t, 30.0, metricValue(t, reg, "storefront_order_events_backlog_age_seconds", nil))
}

func TestWorker_WithMemoryOutbox(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	for _, id := range []string{"1", "2", "3"} {
		_, err := repo.Enqueue(orderPlaced("", id))
		require.NoError(t, err)
	}
	publisher := &stubPublisher{}
	worker, _ := newTestWorker(t, repo, publisher, WithBatchSize(2))

	assert.Equal(t, 2, worker.ProcessOnce(context.Background()))
	assert.Equal(t, 1, worker.ProcessOnce(context.Background()))
	assert.Zero(t, worker.ProcessOnce(context.Background()))
	assert.Empty(t, repo.AllPending())
	assert.Equal(t, 3, publisher.calls())
}

func TestWorker_Run_StopsOnContextCancelAndDrains(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	publisher := &stubPublisher{}
	worker, _ := newTestWorker(t, repo, publisher, WithPollInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	// Событие появляется после первого прохода; забрать его должен финальный проход.
	time.Sleep(20 * time.Millisecond)
	_, err := repo.Enqueue(orderPlaced("late", "12"))
	require.NoError(t, err)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}

	assert.Empty(t, repo.AllPending())
	assert.Equal(t, 1, publisher.calls())
}

func TestWorker_Run_DisabledWithoutPublisher(t *testing.T) {
	t.Parallel()

	worker, _ := newTestWorker(t, memory.NewOutboxRepository(), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker without publisher should return immediately")
	}
}

func TestNewWorker_InvalidOptionsFallBackToDefaults(t *testing.T) {
	t.Parallel()

	worker := NewWorker(
		&stubOutboxRepo{},
		&stubPublisher{},
		WithMetrics(metrics.NewOrderEventMetricsWithRegisterer(prometheus.NewRegistry())),
		WithPollInterval(-time.Second),
		WithBatchSize(0),
		WithMaxAttempts(-1),
		WithRetryBaseDelay(-time.Millisecond),
		WithClock(nil),
	)

	assert.Equal(t, defaultPollInterval, worker.pollInterval)
	assert.Equal(t, defaultBatchSize, worker.batchSize)
	assert.Equal(t, defaultMaxAttempts, worker.retry.maxAttempts)
	assert.Zero(t, worker.retry.initialDelay)
	assert.Equal(t, defaultRetryMaxDelay, worker.retry.maxDelay)
	assert.NotNil(t, worker.now)
}

func TestRetryPolicy_Delay(t *testing.T) {
	t.Parallel()

	policy := retryPolicy{maxAttempts: 10, initialDelay: 10 * time.Millisecond, maxDelay: 50 * time.Millisecond}

	assert.Equal(t, 10*time.Millisecond, policy.delay(1))
	assert.Equal(t, 20*time.Millisecond, policy.delay(2))
	assert.Equal(t, 40*time.Millisecond, policy.delay(3))
	assert.Equal(t, 50*time.Millisecond, policy.delay(4))
	assert.Equal(t, 50*time.Millisecond, policy.delay(200))

	assert.Zero(t, retryPolicy{maxDelay: time.Second}.delay(3))
}

func TestRetryPolicy_WaitStopsOnCancel(t *testing.T) {
	t.Parallel()

	policy := retryPolicy{initialDelay: time.Hour, maxDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, policy.wait(ctx, 1), context.Canceled)
	assert.ErrorIs(t, retryPolicy{}.wait(ctx, 1), context.Canceled)
	assert.NoError(t, retryPolicy{}.wait(context.Background(), 1))
}

func TestPublishError_WrapsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("broker unavailable")
	err := error(&publishError{attempts: 2, err: cause})

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, domain.ErrOutboxPublish)
	assert.Equal(t, ReasonRetriesExhausted, deadLetterReason(err))
}

func TestLogPublisher(t *testing.T) {
	t.Parallel()

	publisher := NewLogPublisher(nil)
	assert.NoError(t, publisher.Publish(orderPlaced("msg-13", "13")))
}

type stubOutboxRepo struct {
	pending       []domain.OutboxMessage
	oldestPending time.Time
	sentIDs       []string
	failedIDs     []string
}

func (s *stubOutboxRepo) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (s *stubOutboxRepo) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats() (domain.OutboxStats, error) {
	stats := domain.OutboxStats{PendingCount: len(s.pending)}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = s.oldestPending
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(id string) error {
	s.sentIDs = append(s.sentIDs, id)
	s.remove(id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(id string) error {
	s.failedIDs = append(s.failedIDs, id)
	s.remove(id)
	return nil
}

func (s *stubOutboxRepo) remove(id string) {
	for i, msg := range s.pending {
		if msg.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	callCount      int
	events         []domain.OutboxMessage
}

func (s *stubPublisher) Publish(event domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.events = append(s.events, event)
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}

	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

var _ domain.OutboxRepository = (*stubOutboxRepo)(nil)
var _ domain.OutboxPublisher = (*stubPublisher)(nil)
