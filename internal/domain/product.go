package domain

// Product описывает позицию каталога.
type Product struct {
	// ID назначается при создании каталога и никогда не переиспользуется.
	ID int64 `json:"id"`
	// Name показывается покупателю.
	Name string `json:"name"`
	// Price задаёт цену за единицу, не меньше нуля.
	Price int64 `json:"price"`
	// Stock — остаток на складе; уменьшается только при оформлении заказа.
	Stock int `json:"stock"`
	// Image: ссылка на картинку товара, не интерпретируется.
	Image string `json:"image"`
}
