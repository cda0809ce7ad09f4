package service

import (
	"context"
	"database/sql"
	"fmt"

	"shopify-sync/internal/models"

	"go.uber.org/zap"
)

// MasterDataStore is the persistence surface the resolvers need.
// *store.Store satisfies it.
type MasterDataStore interface {
	GetCustomerByShopifyID(ctx context.Context, shopifyCustomerID int64) (*models.Customer, error)
	CreateCustomer(ctx context.Context, customer *models.Customer) error
	FindItemCode(ctx context.Context, variantID, productID int64, title string) (string, error)
	HasItemForProduct(ctx context.Context, productID int64) (bool, error)
	CreateItem(ctx context.Context, item *models.Item) error
	GetTaxAccount(ctx context.Context, taxTitle string) (string, error)
}

// CustomerResolver maps a Shopify customer to an internal customer name,
// creating the master record lazily.
type CustomerResolver interface {
	ResolveCustomer(ctx context.Context, c *models.ShopifyCustomer) (string, error)
}

// ItemResolver maps Shopify line items to internal item codes.
type ItemResolver interface {
	EnsureItems(ctx context.Context, warehouse string, items []models.ShopifyLineItem) error
	ResolveItemCode(ctx context.Context, li *models.ShopifyLineItem) (string, error)
}

// TaxAccountResolver maps a Shopify tax title to an internal account head.
type TaxAccountResolver interface {
	ResolveTaxAccount(ctx context.Context, title string) (string, error)
}

// Resolvers implements the three lookup interfaces on top of a
// MasterDataStore.
type Resolvers struct {
	store  MasterDataStore
	logger *zap.Logger
}

// NewResolvers creates master-data resolvers backed by a store
func NewResolvers(store MasterDataStore, logger *zap.Logger) *Resolvers {
	return &Resolvers{store: store, logger: logger}
}

// ResolveCustomer returns the internal customer name for a Shopify
// customer, creating the record when no mapping exists. A nil or
// id-less customer resolves to "" so the caller can fall back to the
// configured default customer.
func (r *Resolvers) ResolveCustomer(ctx context.Context, c *models.ShopifyCustomer) (string, error) {
	if c == nil || c.ID == 0 {
		return "", nil
	}

	existing, err := r.store.GetCustomerByShopifyID(ctx, c.ID)
	if err != nil {
		return "", fmt.Errorf("failed to look up customer %d: %w", c.ID, err)
	}
	if existing != nil {
		return existing.CustomerName, nil
	}

	customer := &models.Customer{
		CustomerName:      c.FullName(),
		ShopifyCustomerID: sql.NullInt64{Int64: c.ID, Valid: true},
		Email:             c.Email,
		Phone:             c.Phone,
	}
	if customer.CustomerName == "" {
		customer.CustomerName = fmt.Sprintf("Shopify Customer %d", c.ID)
	}

	if err := r.store.CreateCustomer(ctx, customer); err != nil {
		return "", fmt.Errorf("failed to create customer %d: %w", c.ID, err)
	}

	r.logger.Info("Created customer from webhook payload",
		zap.Int64("shopify_customer_id", c.ID),
		zap.String("customer_name", customer.CustomerName))

	return customer.CustomerName, nil
}

// EnsureItems lazily creates item masters for line items whose product id
// is not yet mapped. Lines without a product id are left alone; resolution
// later fails for them unless a name match exists.
func (r *Resolvers) EnsureItems(ctx context.Context, warehouse string, items []models.ShopifyLineItem) error {
	for i := range items {
		li := &items[i]
		productID := li.ProductID
		if productID == 0 {
			productID = li.ID
		}
		if productID == 0 {
			continue
		}

		exists, err := r.store.HasItemForProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("failed to check item for product %d: %w", productID, err)
		}
		if exists {
			continue
		}

		item := &models.Item{
			ItemCode:         itemCodeFor(li, productID),
			ItemName:         li.Title,
			ShopifyProductID: sql.NullInt64{Int64: productID, Valid: true},
			StockUOM:         "Nos",
			Warehouse:        warehouse,
		}
		if li.VariantID != 0 {
			item.ShopifyVariantID = sql.NullInt64{Int64: li.VariantID, Valid: true}
		}

		if err := r.store.CreateItem(ctx, item); err != nil {
			return fmt.Errorf("failed to create item for product %d: %w", productID, err)
		}

		r.logger.Info("Created item from webhook payload",
			zap.Int64("shopify_product_id", productID),
			zap.String("item_code", item.ItemCode))
	}
	return nil
}

func itemCodeFor(li *models.ShopifyLineItem, productID int64) string {
	if li.SKU != "" {
		return li.SKU
	}
	return fmt.Sprintf("SPF-%d", productID)
}

// ResolveItemCode resolves a line item to an item code: variant id, then
// product id, then exact title.
func (r *Resolvers) ResolveItemCode(ctx context.Context, li *models.ShopifyLineItem) (string, error) {
	productID := li.ProductID
	if productID == 0 {
		productID = li.ID
	}
	return r.store.FindItemCode(ctx, li.VariantID, productID, li.Title)
}

// ResolveTaxAccount maps a tax title through the configured lookup table.
// An unmapped title is fatal for the order being synced.
func (r *Resolvers) ResolveTaxAccount(ctx context.Context, title string) (string, error) {
	return r.store.GetTaxAccount(ctx, title)
}
