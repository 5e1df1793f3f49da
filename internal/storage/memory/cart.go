package memory

import (
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Cart — единственная корзина процесса. Не потокобезопасна.
type Cart struct {
	lines []domain.CartLine
}

// NewCart создаёт пустую корзину.
func NewCart() *Cart {
	return &Cart{}
}

// Add добавляет товар: увеличивает quantity существующей позиции
// или создаёт новую. Возвращает суммарное количество единиц.
func (c *Cart) Add(product domain.Product, qty int) int {
	for i := range c.lines {
		if c.lines[i].ProductID == product.ID {
			c.lines[i].Quantity += qty
			return c.Count()
		}
	}
	c.lines = append(c.lines, domain.CartLine{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.Price,
		Quantity:  qty,
	})
	return c.Count()
}

// Remove удаляет позицию по ID товара.
func (c *Cart) Remove(productID int64) (int, error) {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return c.Count(), nil
		}
	}
	return c.Count(), domain.ErrCartLineNotFound
}

// Lines возвращает копию позиций корзины в порядке добавления.
func (c *Cart) Lines() []domain.CartLine {
	result := make([]domain.CartLine, len(c.lines))
	copy(result, c.lines)
	return result
}

// Count возвращает сумму quantity по всем позициям.
func (c *Cart) Count() int {
	return domain.CountItems(c.lines)
}

// Empty сообщает, пуста ли корзина.
func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

// Clear очищает корзину.
func (c *Cart) Clear() {
	c.lines = nil
}
