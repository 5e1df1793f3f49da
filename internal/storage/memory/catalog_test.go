package memory_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestCatalog_GetAndList(t *testing.T) {
	catalog := memory.NewCatalog(memory.SeedProducts())

	if catalog.Len() != 5 {
		t.Fatalf("expected 5 products, got %d", catalog.Len())
	}

	laptop, err := catalog.Get(1)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if laptop.Name != "Laptop" || laptop.Price != 15000 || laptop.Stock != 5 {
		t.Fatalf("unexpected seed product: %+v", laptop)
	}

	products := catalog.List()
	for i, p := range products {
		if p.ID != int64(i+1) {
			t.Fatalf("expected insertion order, got id %d at %d", p.ID, i)
		}
	}
}

func TestCatalog_GetUnknown(t *testing.T) {
	catalog := memory.NewCatalog(memory.SeedProducts())

	if _, err := catalog.Get(42); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCatalog_ListReturnsCopies(t *testing.T) {
	catalog := memory.NewCatalog(memory.SeedProducts())

	products := catalog.List()
	products[0].Stock = 0

	laptop, _ := catalog.Get(1)
	if laptop.Stock != 5 {
		t.Fatalf("catalog mutated through List result: stock %d", laptop.Stock)
	}
}

func TestCatalog_DuplicateIDsIgnored(t *testing.T) {
	catalog := memory.NewCatalog([]domain.Product{
		{ID: 1, Name: "first"},
		{ID: 1, Name: "second"},
	})

	if catalog.Len() != 1 {
		t.Fatalf("expected 1 product, got %d", catalog.Len())
	}
	p, _ := catalog.Get(1)
	if p.Name != "first" {
		t.Fatalf("expected first product to win, got %s", p.Name)
	}
}

func TestCatalog_Withdraw(t *testing.T) {
	catalog := memory.NewCatalog(memory.SeedProducts())

	err := catalog.Withdraw([]domain.CartLine{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 5}})
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	laptop, _ := catalog.Get(1)
	mouse, _ := catalog.Get(2)
	if laptop.Stock != 3 || mouse.Stock != 15 {
		t.Fatalf("unexpected stock after withdraw: laptop=%d mouse=%d", laptop.Stock, mouse.Stock)
	}

	if err := catalog.Withdraw([]domain.CartLine{{ProductID: 99, Quantity: 1}}); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalog_WithdrawIsAllOrNothing(t *testing.T) {
	catalog := memory.NewCatalog(memory.SeedProducts())

	// Первая позиция проходит, вторая нет: ни один остаток не должен измениться.
	err := catalog.Withdraw([]domain.CartLine{
		{ProductID: 2, Quantity: 3},
		{ProductID: 1, Quantity: 6},
		{ProductID: 3, Quantity: 1},
	})

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if stockErr.ProductID != 1 || stockErr.Requested != 6 || stockErr.Available != 5 {
		t.Fatalf("unexpected error details: %+v", stockErr)
	}

	for id, want := range map[int64]int{1: 5, 2: 20, 3: 15} {
		p, _ := catalog.Get(id)
		if p.Stock != want {
			t.Fatalf("product %d: expected stock %d, got %d", id, want, p.Stock)
		}
	}

	if err := catalog.Withdraw([]domain.CartLine{{ProductID: 2, Quantity: 3}, {ProductID: 99, Quantity: 1}}); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	mouse, _ := catalog.Get(2)
	if mouse.Stock != 20 {
		t.Fatalf("stock changed after failed withdraw: %d", mouse.Stock)
	}
}

func TestCatalog_WithdrawSumsRepeatedProduct(t *testing.T) {
	catalog := memory.NewCatalog(memory.SeedProducts())

	err := catalog.Withdraw([]domain.CartLine{{ProductID: 1, Quantity: 3}, {ProductID: 1, Quantity: 3}})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock for 6 laptops, got %v", err)
	}
	laptop, _ := catalog.Get(1)
	if laptop.Stock != 5 {
		t.Fatalf("stock changed after failed withdraw: %d", laptop.Stock)
	}
}
