package memory

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Ledger — append-only журнал заказов. Не потокобезопасен.
type Ledger struct {
	orders []domain.Order
	nextID int64
}

// NewLedger создаёт пустой журнал, нумерация заказов начинается с 1.
func NewLedger() *Ledger {
	return &Ledger{nextID: 1}
}

// Append выдаёт следующий ID, сохраняет заказ и возвращает его копию.
func (l *Ledger) Append(customer domain.Customer, lines []domain.CartLine, now time.Time) domain.Order {
	order := domain.NewOrder(l.nextID, customer, lines, now)
	l.nextID++
	l.orders = append(l.orders, order)
	return order.Clone()
}

// List возвращает глубокие копии всех заказов в порядке создания.
func (l *Ledger) List() []domain.Order {
	result := make([]domain.Order, 0, len(l.orders))
	for _, o := range l.orders {
		result = append(result, o.Clone())
	}
	return result
}

// Len возвращает количество заказов.
func (l *Ledger) Len() int {
	return len(l.orders)
}
