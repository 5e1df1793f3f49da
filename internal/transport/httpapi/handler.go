package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Shop описывает операции магазина, которые использует HTTP API.
type Shop interface {
	ListProducts() []domain.Product
	GetProduct(id int64) (domain.Product, error)
	AddToCart(productID int64, quantity int) (int, error)
	ViewCart() domain.CartView
	RemoveFromCart(productID int64) (int, error)
	PlaceOrder(customer domain.Customer) (domain.Order, error)
	ListOrders() []domain.Order
}

const (
	msgInvalidData         = "invalid data"
	msgProductNotFound     = "product not found"
	msgInsufficientStock   = "insufficient stock"
	msgNotInCart           = "product not found in cart"
	msgIncompleteOrder     = "incomplete data or empty cart"
	msgInternalServerError = "internal server error"

	msgAddedToCart     = "product added to cart"
	msgRemovedFromCart = "product removed from cart"
	msgOrderPlaced     = "order placed successfully"
)

// Handler переводит HTTP-запросы в операции магазина.
type Handler struct {
	shop   Shop
	logger *log.Entry
}

func NewHandler(shop Shop, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	return &Handler{shop: shop, logger: logger.WithField("layer", "http")}
}

// RegisterRoutes подключает маршруты /api.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")
	api.GET("/products", h.ListProducts)
	api.GET("/products/:id", h.GetProduct)
	api.POST("/cart/add", h.AddToCart)
	api.GET("/cart", h.ViewCart)
	api.DELETE("/cart/:productId", h.RemoveFromCart)
	api.POST("/order", h.PlaceOrder)
	api.GET("/orders", h.ListOrders)
}

func (h *Handler) ListProducts(c *gin.Context) {
	c.JSON(http.StatusOK, productsResponse{Success: true, Products: h.shop.ListProducts()})
}

// GetProduct: нечисловой или неположительный id не совпадёт ни с одним
// товаром каталога, поэтому ответ 404.
func (h *Handler) GetProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, http.StatusNotFound, msgProductNotFound, err)
		return
	}

	product, err := h.shop.GetProduct(id)
	if err != nil {
		h.respondError(c, err, errorMessages{notFound: msgProductNotFound})
		return
	}

	c.JSON(http.StatusOK, productResponse{Success: true, Product: product})
}

func (h *Handler) AddToCart(c *gin.Context) {
	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, msgInvalidData, err)
		return
	}

	count, err := h.shop.AddToCart(int64(req.ProductID), int(req.Quantity))
	if err != nil {
		h.respondError(c, err, errorMessages{
			invalid:      msgInvalidData,
			notFound:     msgProductNotFound,
			insufficient: func(*domain.InsufficientStockError) string { return msgInsufficientStock },
		})
		return
	}

	c.JSON(http.StatusOK, cartCountResponse{Success: true, Message: msgAddedToCart, CartCount: count})
}

func (h *Handler) ViewCart(c *gin.Context) {
	view := h.shop.ViewCart()
	c.JSON(http.StatusOK, cartResponse{
		Success:    true,
		Cart:       view.Lines,
		GrandTotal: view.GrandTotal,
		ItemCount:  view.ItemCount,
	})
}

// RemoveFromCart: нечисловой id не совпадёт ни с одной позицией, поэтому
// ответ 404, как и для отсутствующего товара.
func (h *Handler) RemoveFromCart(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		h.fail(c, http.StatusNotFound, msgNotInCart, err)
		return
	}

	count, err := h.shop.RemoveFromCart(id)
	if err != nil {
		h.respondError(c, err, errorMessages{notFound: msgNotInCart})
		return
	}

	c.JSON(http.StatusOK, cartCountResponse{Success: true, Message: msgRemovedFromCart, CartCount: count})
}

func (h *Handler) PlaceOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, msgIncompleteOrder, err)
		return
	}

	order, err := h.shop.PlaceOrder(req.customer())
	if err != nil {
		h.respondError(c, err, errorMessages{
			invalid: msgIncompleteOrder,
			insufficient: func(e *domain.InsufficientStockError) string {
				return fmt.Sprintf("insufficient stock for %s", e.ProductName)
			},
		})
		return
	}

	c.JSON(http.StatusOK, orderResponse{
		Success: true,
		Message: msgOrderPlaced,
		OrderID: order.ID,
		Order:   order,
	})
}

func (h *Handler) ListOrders(c *gin.Context) {
	c.JSON(http.StatusOK, ordersResponse{Success: true, Orders: h.shop.ListOrders()})
}

// errorMessages задаёт тексты ответов для доменных ошибок конкретного
// маршрута. Пустой текст означает, что ошибка не ожидается и уйдёт в 500.
type errorMessages struct {
	invalid      string
	notFound     string
	insufficient func(*domain.InsufficientStockError) string
}

func (h *Handler) respondError(c *gin.Context, err error, messages errorMessages) {
	var stockErr *domain.InsufficientStockError

	switch {
	case errors.Is(err, domain.ErrInvalidInput) && messages.invalid != "":
		h.fail(c, http.StatusBadRequest, messages.invalid, err)
	case domain.IsNotFound(err) && messages.notFound != "":
		h.fail(c, http.StatusNotFound, messages.notFound, err)
	case errors.As(err, &stockErr) && messages.insufficient != nil:
		h.fail(c, http.StatusBadRequest, messages.insufficient(stockErr), err)
	default:
		h.fail(c, http.StatusInternalServerError, msgInternalServerError, err)
	}
}

// fail пишет тело ошибки. Клиентские ошибки логируются как warn,
// внутренние как error; детали внутренней ошибки клиенту не отдаются.
func (h *Handler) fail(c *gin.Context, status int, message string, err error) {
	entry := h.logger.WithFields(log.Fields{
		"request_id": requestIDFrom(c),
		"path":       c.FullPath(),
		"status":     status,
	})
	if err != nil {
		entry = entry.WithError(err)
	}

	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}

	c.AbortWithStatusJSON(status, errorResponse{Success: false, Message: message})
}
