package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// flexInt принимает и JSON-число, и числовую строку ("3"). Дробные
// числа и нечисловые строки отклоняются.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("not an integer: %s", data)
	}
	*f = flexInt(n)
	return nil
}

type addToCartRequest struct {
	ProductID flexInt `json:"productId"`
	Quantity  flexInt `json:"quantity"`
}

type placeOrderRequest struct {
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`
}

func (r placeOrderRequest) customer() domain.Customer {
	return domain.Customer{Name: r.CustomerName, Email: r.CustomerEmail}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type productsResponse struct {
	Success  bool             `json:"success"`
	Products []domain.Product `json:"products"`
}

type productResponse struct {
	Success bool           `json:"success"`
	Product domain.Product `json:"product"`
}

type cartCountResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	CartCount int    `json:"cartCount"`
}

type cartResponse struct {
	Success    bool                  `json:"success"`
	Cart       []domain.CartLineView `json:"cart"`
	GrandTotal int64                 `json:"grandTotal"`
	ItemCount  int                   `json:"itemCount"`
}

type orderResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	OrderID int64        `json:"orderId"`
	Order   domain.Order `json:"order"`
}

type ordersResponse struct {
	Success bool           `json:"success"`
	Orders  []domain.Order `json:"orders"`
}
