package domain

import (
	"strings"
	"time"
)

// OrderStatus описывает статус заказа.
type OrderStatus string

// OrderStatusConfirmed — единственный статус: заказ оформлен и больше не меняется.
const OrderStatusConfirmed OrderStatus = "confirmed"

// Order — неизменяемая запись об оформленной покупке.
type Order struct {
	ID            int64       `json:"id"`
	CustomerName  string      `json:"customerName"`
	CustomerEmail string      `json:"customerEmail"`
	Items         []CartLine  `json:"items"`
	Total         int64       `json:"total"`
	Date          time.Time   `json:"date"`
	Status        OrderStatus `json:"status"`
}

// Customer содержит данные покупателя для оформления заказа.
type Customer struct {
	Name  string
	Email string
}

// Normalize убирает пробелы по краям имени и email.
func (c Customer) Normalize() Customer {
	return Customer{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.TrimSpace(c.Email),
	}
}

// Validate проверяет, что имя и email заполнены.
func (c Customer) Validate() error {
	if c.Name == "" || c.Email == "" {
		return ErrCustomerIncomplete
	}
	return nil
}

// NewOrder собирает заказ из позиций корзины. Позиции копируются,
// поэтому последующие изменения корзины не влияют на заказ.
func NewOrder(id int64, customer Customer, lines []CartLine, now time.Time) Order {
	items := make([]CartLine, len(lines))
	copy(items, lines)

	var total int64
	for _, item := range items {
		total += item.Total()
	}

	return Order{
		ID:            id,
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		Items:         items,
		Total:         total,
		Date:          now,
		Status:        OrderStatusConfirmed,
	}
}

// Clone возвращает глубокую копию заказа.
func (o Order) Clone() Order {
	items := make([]CartLine, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}
