package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput — отсутствующие или некорректные поля запроса.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProductNotFound возвращается, если товара нет в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrCartLineNotFound возвращается, если товара нет в корзине.
	ErrCartLineNotFound = errors.New("product not found in cart")
	// ErrInsufficientStock — запрошено больше, чем есть на складе.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOutboxPublish сигнализирует об ошибке публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrQuantityInvalid: quantity отсутствует или <= 0.
	ErrQuantityInvalid = fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidInput)
	// ErrProductIDInvalid: productId отсутствует или <= 0.
	ErrProductIDInvalid = fmt.Errorf("%w: productId must be a positive integer", ErrInvalidInput)
	// ErrCustomerIncomplete — не заполнено имя или email покупателя.
	ErrCustomerIncomplete = fmt.Errorf("%w: customerName and customerEmail are required", ErrInvalidInput)
	// ErrCartEmpty возвращается при попытке оформить заказ с пустой корзиной.
	ErrCartEmpty = fmt.Errorf("%w: cart is empty", ErrInvalidInput)
)

// InsufficientStockError описывает товар, которого не хватает на складе.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

// Unwrap позволяет сравнивать ошибку через errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// IsNotFound проверяет, относится ли ошибка к отсутствующему товару или позиции корзины.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrCartLineNotFound)
}
