package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shopify-sync/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrItemNotFound is returned when a line item matches no variant id,
// product id, or item name mapping.
var ErrItemNotFound = fmt.Errorf("item not found")

// ErrTaxAccountNotFound is returned when a Shopify tax title has no
// configured account head.
var ErrTaxAccountNotFound = fmt.Errorf("tax account not mapped")

type Store struct {
	db *sqlx.DB
}

// NewStore connects to the database and returns a new store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection, used by tests
func NewStoreWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadSettings reads the single sync-settings row
func (s *Store) LoadSettings(ctx context.Context) (*models.SyncSettings, error) {
	var settings models.SyncSettings
	err := s.db.GetContext(ctx, &settings, "SELECT * FROM sync_settings ORDER BY id LIMIT 1")
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sync settings not configured")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sync settings: %w", err)
	}
	return &settings, nil
}

// GetCustomerByShopifyID retrieves a customer mapped to a Shopify customer id.
// Returns nil without error when no mapping exists.
func (s *Store) GetCustomerByShopifyID(ctx context.Context, shopifyCustomerID int64) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.GetContext(ctx, &customer,
		"SELECT * FROM customers WHERE shopify_customer_id = $1", shopifyCustomerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// CreateCustomer creates a customer master record
func (s *Store) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	query := `
		INSERT INTO customers (customer_name, shopify_customer_id, email, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, customer, query,
		customer.CustomerName, customer.ShopifyCustomerID, customer.Email, customer.Phone)
}

// FindItemCode resolves a line item to an item code: variant id first,
// then product id, then exact name match.
func (s *Store) FindItemCode(ctx context.Context, variantID, productID int64, title string) (string, error) {
	var code string

	if variantID != 0 {
		err := s.db.GetContext(ctx, &code,
			"SELECT item_code FROM items WHERE shopify_variant_id = $1", variantID)
		if err == nil {
			return code, nil
		}
		if err != sql.ErrNoRows {
			return "", err
		}
	}

	if productID != 0 {
		err := s.db.GetContext(ctx, &code,
			"SELECT item_code FROM items WHERE shopify_product_id = $1", productID)
		if err == nil {
			return code, nil
		}
		if err != sql.ErrNoRows {
			return "", err
		}
	}

	err := s.db.GetContext(ctx, &code,
		"SELECT item_code FROM items WHERE item_name = $1", title)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: variant=%d product=%d title=%q", ErrItemNotFound, variantID, productID, title)
	}
	if err != nil {
		return "", err
	}
	return code, nil
}

// HasItemForProduct reports whether any item maps to the Shopify product id
func (s *Store) HasItemForProduct(ctx context.Context, productID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM items WHERE shopify_product_id = $1)", productID)
	return exists, err
}

// CreateItem creates an item master record
func (s *Store) CreateItem(ctx context.Context, item *models.Item) error {
	query := `
		INSERT INTO items (item_code, item_name, shopify_variant_id, shopify_product_id, stock_uom, warehouse)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, item, query,
		item.ItemCode, item.ItemName, item.ShopifyVariantID, item.ShopifyProductID,
		item.StockUOM, item.Warehouse)
}

// GetTaxAccount resolves a Shopify tax title to the configured account head
func (s *Store) GetTaxAccount(ctx context.Context, taxTitle string) (string, error) {
	var account string
	err := s.db.GetContext(ctx, &account,
		"SELECT tax_account FROM tax_mappings WHERE shopify_tax = $1", taxTitle)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %q", ErrTaxAccountNotFound, taxTitle)
	}
	if err != nil {
		return "", err
	}
	return account, nil
}
