package memory

import (
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Catalog хранит in-memory каталог товаров в порядке добавления.
// Не потокобезопасен: доступ сериализует shop.Service.
type Catalog struct {
	products []domain.Product
	index    map[int64]int
}

// NewCatalog создаёт каталог из переданных товаров. Дубликаты ID отбрасываются.
func NewCatalog(products []domain.Product) *Catalog {
	c := &Catalog{
		products: make([]domain.Product, 0, len(products)),
		index:    make(map[int64]int, len(products)),
	}
	for _, p := range products {
		if _, exists := c.index[p.ID]; exists {
			continue
		}
		c.index[p.ID] = len(c.products)
		c.products = append(c.products, p)
	}
	return c
}

// SeedProducts возвращает демонстрационный каталог.
func SeedProducts() []domain.Product {
	return []domain.Product{
		{ID: 1, Name: "Laptop", Price: 15000, Stock: 5, Image: "laptop.jpg"},
		{ID: 2, Name: "Wireless Mouse", Price: 500, Stock: 20, Image: "mouse.jpg"},
		{ID: 3, Name: "Mechanical Keyboard", Price: 1200, Stock: 15, Image: "keyboard.jpg"},
		{ID: 4, Name: `Monitor 24"`, Price: 3500, Stock: 8, Image: "monitor.jpg"},
		{ID: 5, Name: "Bluetooth Headphones", Price: 800, Stock: 12, Image: "headphones.jpg"},
	}
}

// Get возвращает копию товара или ErrProductNotFound.
func (c *Catalog) Get(id int64) (domain.Product, error) {
	i, ok := c.index[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return c.products[i], nil
}

// List возвращает копию всех товаров в порядке добавления.
func (c *Catalog) List() []domain.Product {
	result := make([]domain.Product, len(c.products))
	copy(result, c.products)
	return result
}

// Len возвращает количество товаров.
func (c *Catalog) Len() int {
	return len(c.products)
}

// Withdraw списывает остатки по всем позициям или не списывает ничего.
// Сначала проверяются все позиции в порядке передачи, ошибка указывает на
// первую неудачную; остатки меняются только после успешной проверки.
// Повторы одного товара суммируются.
func (c *Catalog) Withdraw(lines []domain.CartLine) error {
	requested := make(map[int64]int, len(lines))
	for _, line := range lines {
		i, ok := c.index[line.ProductID]
		if !ok {
			return fmt.Errorf("product %d: %w", line.ProductID, domain.ErrProductNotFound)
		}
		requested[line.ProductID] += line.Quantity

		p := c.products[i]
		if p.Stock < requested[line.ProductID] {
			return &domain.InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   requested[line.ProductID],
				Available:   p.Stock,
			}
		}
	}

	for id, qty := range requested {
		c.products[c.index[id]].Stock -= qty
	}
	return nil
}
