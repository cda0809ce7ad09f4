package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Webhook topics handled by the sync pipeline
const (
	TopicOrdersCreate    = "orders/create"
	TopicOrdersUpdated   = "orders/updated"
	TopicOrdersPaid      = "orders/paid"
	TopicOrdersFulfilled = "orders/fulfilled"
	TopicOrdersCancelled = "orders/cancelled"
)

// Financial statuses that trigger invoice creation
const (
	FinancialStatusPaid     = "paid"
	FinancialStatusRefunded = "refunded"
)

// ShopifyOrder is the order payload delivered by Shopify webhooks.
// Monetary fields arrive as JSON strings; decimal.Decimal accepts both
// quoted and bare numbers.
type ShopifyOrder struct {
	ID              int64                 `json:"id"`
	Name            string                `json:"name"`
	Email           string                `json:"email"`
	FinancialStatus string                `json:"financial_status"`
	TaxesIncluded   bool                  `json:"taxes_included"`
	Currency        string                `json:"currency"`
	TotalPrice      decimal.Decimal       `json:"total_price"`
	CreatedAt       time.Time             `json:"created_at"`
	Customer        *ShopifyCustomer      `json:"customer,omitempty"`
	LineItems       []ShopifyLineItem     `json:"line_items"`
	DiscountCodes   []ShopifyDiscountCode `json:"discount_codes"`
	TaxLines        []ShopifyTaxLine      `json:"tax_lines"`
	ShippingLines   []ShopifyShippingLine `json:"shipping_lines"`
	Fulfillments    []ShopifyFulfillment  `json:"fulfillments"`
}

// ShopifyCustomer is the customer block embedded in an order payload.
type ShopifyCustomer struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// FullName joins the first and last name, falling back to the email.
func (c *ShopifyCustomer) FullName() string {
	name := c.FirstName
	if c.LastName != "" {
		if name != "" {
			name += " "
		}
		name += c.LastName
	}
	if name == "" {
		name = c.Email
	}
	return name
}

// ShopifyLineItem is a single order or fulfillment line.
type ShopifyLineItem struct {
	ID        int64           `json:"id"`
	VariantID int64           `json:"variant_id"`
	ProductID int64           `json:"product_id"`
	Title     string          `json:"title"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// ShopifyDiscountCode is a discount applied to the whole order.
type ShopifyDiscountCode struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
	Type   string          `json:"type"`
}

// ShopifyTaxLine is a percentage tax applied to the order or to a
// shipping charge.
type ShopifyTaxLine struct {
	Title string          `json:"title"`
	Price decimal.Decimal `json:"price"`
	Rate  float64         `json:"rate"`
}

// ShopifyShippingLine is a shipping charge with its own nested tax lines.
type ShopifyShippingLine struct {
	Title    string           `json:"title"`
	Price    decimal.Decimal  `json:"price"`
	TaxLines []ShopifyTaxLine `json:"tax_lines"`
}

// ShopifyFulfillment records a (partial) shipment of an order.
type ShopifyFulfillment struct {
	ID        int64             `json:"id"`
	OrderID   int64             `json:"order_id"`
	CreatedAt time.Time         `json:"created_at"`
	LineItems []ShopifyLineItem `json:"line_items"`
}

// DiscountAmount sums all discount code amounts on the order.
func (o *ShopifyOrder) DiscountAmount() decimal.Decimal {
	total := decimal.Zero
	for _, d := range o.DiscountCodes {
		total = total.Add(d.Amount)
	}
	return total
}

// IsPaidOrRefunded reports whether the order should produce an invoice.
func (o *ShopifyOrder) IsPaidOrRefunded() bool {
	return o.FinancialStatus == FinancialStatusPaid || o.FinancialStatus == FinancialStatusRefunded
}
