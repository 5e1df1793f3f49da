package outbox

import (
	"context"
	"time"
)

// retryPolicy задаёт повторы публикации внутри одного прохода воркера.
type retryPolicy struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
}

// delay возвращает паузу после неудачной попытки attempt (с 1):
// initialDelay, удвоенная на каждой следующей попытке, но не больше maxDelay.
func (p retryPolicy) delay(attempt int) time.Duration {
	if p.initialDelay <= 0 {
		return 0
	}

	delay := p.initialDelay
	for i := 1; i < attempt && delay < p.maxDelay; i++ {
		delay *= 2
	}
	if delay > p.maxDelay {
		delay = p.maxDelay
	}
	return delay
}

// wait ждёт паузу перед следующей попыткой. Возвращает ошибку ctx,
// если воркер останавливается.
func (p retryPolicy) wait(ctx context.Context, attempt int) error {
	delay := p.delay(attempt)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
