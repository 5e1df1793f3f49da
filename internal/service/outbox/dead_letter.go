package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Причины, по которым событие уходит в DLQ.
const (
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonUnsupportedEvent = "unsupported_event"
	ReasonMalformedPayload = "malformed_payload"
)

var (
	errUnsupportedEvent = errors.New("unsupported order event")
	errMalformedPayload = errors.New("malformed order event payload")
)

// DeadLetter описывает тело сообщения в DLQ: исходное событие и причину отказа.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	EventType      string          `json:"event_type"`
	OrderID        int64           `json:"order_id,omitempty"`
	Reason         string          `json:"reason"`
	Attempts       int             `json:"attempts"`
	Error          string          `json:"error"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	RawPayload     string          `json:"raw_payload,omitempty"`
	DeadLetteredAt time.Time       `json:"dead_lettered_at"`
}

// orderEvent хранит то, что воркер знает о событии после разбора payload.
type orderEvent struct {
	msg   domain.OutboxMessage
	order domain.Order
}

// decodeOrderEvent разбирает событие заказа. Ошибка означает, что повтор
// публикации ничего не исправит.
func decodeOrderEvent(msg domain.OutboxMessage) (orderEvent, error) {
	event := orderEvent{msg: msg}

	if msg.EventType != domain.EventTypeOrderPlaced {
		return event, fmt.Errorf("%w: %q", errUnsupportedEvent, msg.EventType)
	}
	if err := json.Unmarshal(msg.Payload, &event.order); err != nil {
		return event, fmt.Errorf("%w: %v", errMalformedPayload, err)
	}
	if event.order.ID <= 0 {
		return event, fmt.Errorf("%w: order id is missing", errMalformedPayload)
	}
	return event, nil
}

func (e orderEvent) fields() log.Fields {
	fields := log.Fields{
		"outbox_id":  e.msg.ID,
		"event_type": e.msg.EventType,
	}
	if e.order.ID > 0 {
		fields["order_id"] = e.order.ID
		fields["order_total"] = e.order.Total
		fields["order_items"] = len(e.order.Items)
	}
	return fields
}

// deadLetterReason сопоставляет ошибку доставки с причиной для DLQ.
func deadLetterReason(err error) string {
	switch {
	case errors.Is(err, errUnsupportedEvent):
		return ReasonUnsupportedEvent
	case errors.Is(err, errMalformedPayload):
		return ReasonMalformedPayload
	default:
		return ReasonRetriesExhausted
	}
}

// newDeadLetterMessage упаковывает отказ в outbox-сообщение для DLQ publisher.
// Ключ агрегата и тип события сохраняются, меняется только payload.
func newDeadLetterMessage(e orderEvent, attempts int, cause error, now time.Time) (domain.OutboxMessage, error) {
	letter := DeadLetter{
		OutboxID:       e.msg.ID,
		EventType:      e.msg.EventType,
		OrderID:        e.order.ID,
		Reason:         deadLetterReason(cause),
		Attempts:       attempts,
		Error:          cause.Error(),
		DeadLetteredAt: now.UTC(),
	}
	// Нечитаемый payload кладётся строкой, чтобы не сломать JSON самого DLQ.
	if json.Valid(e.msg.Payload) {
		letter.Payload = json.RawMessage(e.msg.Payload)
	} else {
		letter.RawPayload = string(e.msg.Payload)
	}

	payload, err := json.Marshal(letter)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal dead letter: %w", err)
	}

	msg := e.msg
	msg.Payload = payload
	return msg, nil
}

var errNoDeadLetterPublisher = errors.New("dead letter publisher is not configured")

// publishError означает, что publisher отказал на каждой из attempts попыток.
type publishError struct {
	attempts int
	err      error
}

func (e *publishError) Error() string {
	return fmt.Sprintf("publish failed after %d attempts: %v", e.attempts, e.err)
}

func (e *publishError) Unwrap() []error {
	return []error{domain.ErrOutboxPublish, e.err}
}
