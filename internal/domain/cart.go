package domain

// CartLine — одна позиция корзины, не более одной на товар.
type CartLine struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	// Price копируется из каталога в момент добавления.
	Price    int64 `json:"price"`
	Quantity int   `json:"quantity"`
}

// Total возвращает стоимость позиции: price * quantity.
func (l CartLine) Total() int64 {
	return l.Price * int64(l.Quantity)
}

// CartLineView дополняет позицию корзины рассчитанной суммой.
type CartLineView struct {
	CartLine
	Total int64 `json:"total"`
}

// CartView содержит снимок корзины для отображения.
type CartView struct {
	Lines      []CartLineView
	GrandTotal int64
	// ItemCount — количество различных позиций, а не сумма quantity.
	ItemCount int
}

// NewCartView строит представление корзины по списку позиций.
func NewCartView(lines []CartLine) CartView {
	view := CartView{
		Lines:     make([]CartLineView, 0, len(lines)),
		ItemCount: len(lines),
	}
	for _, line := range lines {
		total := line.Total()
		view.Lines = append(view.Lines, CartLineView{CartLine: line, Total: total})
		view.GrandTotal += total
	}
	return view
}

// CountItems возвращает суммарное количество единиц товара в позициях.
func CountItems(lines []CartLine) int {
	var count int
	for _, line := range lines {
		count += line.Quantity
	}
	return count
}
