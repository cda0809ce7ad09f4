package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"shopify-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}

// memMasters is an in-memory MasterDataStore
type memMasters struct {
	customers map[int64]*models.Customer
	items     []*models.Item
}

func newMemMasters() *memMasters {
	return &memMasters{customers: make(map[int64]*models.Customer)}
}

func (m *memMasters) GetCustomerByShopifyID(_ context.Context, shopifyCustomerID int64) (*models.Customer, error) {
	return m.customers[shopifyCustomerID], nil
}

func (m *memMasters) CreateCustomer(_ context.Context, customer *models.Customer) error {
	customer.ID = int64(len(m.customers) + 1)
	m.customers[customer.ShopifyCustomerID.Int64] = customer
	return nil
}

func (m *memMasters) FindItemCode(_ context.Context, variantID, productID int64, title string) (string, error) {
	for _, item := range m.items {
		if variantID != 0 && item.ShopifyVariantID.Valid && item.ShopifyVariantID.Int64 == variantID {
			return item.ItemCode, nil
		}
	}
	for _, item := range m.items {
		if productID != 0 && item.ShopifyProductID.Valid && item.ShopifyProductID.Int64 == productID {
			return item.ItemCode, nil
		}
	}
	for _, item := range m.items {
		if item.ItemName == title {
			return item.ItemCode, nil
		}
	}
	return "", fmt.Errorf("item not found: variant=%d product=%d title=%q", variantID, productID, title)
}

func (m *memMasters) HasItemForProduct(_ context.Context, productID int64) (bool, error) {
	for _, item := range m.items {
		if item.ShopifyProductID.Valid && item.ShopifyProductID.Int64 == productID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memMasters) CreateItem(_ context.Context, item *models.Item) error {
	item.ID = int64(len(m.items) + 1)
	m.items = append(m.items, item)
	return nil
}

func (m *memMasters) GetTaxAccount(context.Context, string) (string, error) {
	return "", nil
}

func TestResolveCustomerCreatesLazily(t *testing.T) {
	masters := newMemMasters()
	r := NewResolvers(masters, zap.NewNop())

	name, err := r.ResolveCustomer(context.Background(), &models.ShopifyCustomer{
		ID: 7001, FirstName: "Jamie", LastName: "Reyes", Email: "jamie@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Jamie Reyes", name)
	require.Contains(t, masters.customers, int64(7001))

	// second resolution reuses the record
	name, err = r.ResolveCustomer(context.Background(), &models.ShopifyCustomer{ID: 7001, FirstName: "J"})
	require.NoError(t, err)
	assert.Equal(t, "Jamie Reyes", name)
	assert.Len(t, masters.customers, 1)
}

func TestResolveCustomerNamelessFallsBackToPlaceholder(t *testing.T) {
	masters := newMemMasters()
	r := NewResolvers(masters, zap.NewNop())

	name, err := r.ResolveCustomer(context.Background(), &models.ShopifyCustomer{ID: 7002})
	require.NoError(t, err)
	assert.Equal(t, "Shopify Customer 7002", name)
}

func TestResolveCustomerGuest(t *testing.T) {
	r := NewResolvers(newMemMasters(), zap.NewNop())

	name, err := r.ResolveCustomer(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, name)

	name, err = r.ResolveCustomer(context.Background(), &models.ShopifyCustomer{ID: 0, Email: "a@b.c"})
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestEnsureItemsCreatesMissingMasters(t *testing.T) {
	masters := newMemMasters()
	masters.items = append(masters.items, &models.Item{
		ItemCode:         "TSHIRT-M",
		ItemName:         "T-Shirt M",
		ShopifyProductID: nullInt64(30001),
	})
	r := NewResolvers(masters, zap.NewNop())

	lines := []models.ShopifyLineItem{
		{ID: 1, ProductID: 30001, VariantID: 40001, Title: "T-Shirt M", SKU: "TSHIRT-M"},
		{ID: 2, ProductID: 30002, VariantID: 40002, Title: "Blue Mug", SKU: "MUG-BLUE"},
		{ID: 3, ProductID: 30003, Title: "Poster"},
	}
	require.NoError(t, r.EnsureItems(context.Background(), "Main Store", lines))

	require.Len(t, masters.items, 3)
	created := masters.items[1]
	assert.Equal(t, "MUG-BLUE", created.ItemCode)
	assert.Equal(t, "Blue Mug", created.ItemName)
	assert.Equal(t, "Main Store", created.Warehouse)
	assert.Equal(t, "Nos", created.StockUOM)

	// lines without a SKU get a generated code
	assert.Equal(t, "SPF-30003", masters.items[2].ItemCode)
}

func TestResolveItemCodeUsesLineIDWhenProductMissing(t *testing.T) {
	masters := newMemMasters()
	masters.items = append(masters.items, &models.Item{
		ItemCode:         "CUSTOM-1",
		ItemName:         "Custom Line",
		ShopifyProductID: nullInt64(555),
	})
	r := NewResolvers(masters, zap.NewNop())

	code, err := r.ResolveItemCode(context.Background(), &models.ShopifyLineItem{ID: 555, Title: "Custom Line"})
	require.NoError(t, err)
	assert.Equal(t, "CUSTOM-1", code)
}
