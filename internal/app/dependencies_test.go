package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestNewDependencies(t *testing.T) {
	deps := NewDependencies(log.WithField("test", "dependencies"))

	require.NotNil(t, deps)
	assert.NotNil(t, deps.OutboxRepo)
	assert.NotNil(t, deps.Shop)
	assert.NotNil(t, deps.ShopMetrics)
	assert.NotNil(t, deps.HTTPMetrics)
	assert.NotNil(t, deps.EventMetrics)
	assert.NotNil(t, deps.Logger)
	assert.Equal(t, 5, deps.Shop.CatalogSize())
}

func TestNewDependencies_NilLogger(t *testing.T) {
	deps := NewDependencies(nil)

	assert.NotNil(t, deps.Logger)
}

func TestDependencies_OrderEnqueuesEvent(t *testing.T) {
	deps := NewDependencies(nil)
	assert.Equal(t, 0, deps.PendingEvents())

	_, err := deps.Shop.AddToCart(2, 1)
	require.NoError(t, err)
	_, err = deps.Shop.PlaceOrder(domain.Customer{Name: "A", Email: "a@x.com"})
	require.NoError(t, err)

	assert.Equal(t, 1, deps.PendingEvents())
}
