package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Document states, ERP convention: 0 draft, 1 submitted, 2 cancelled
const (
	DocstatusDraft     = 0
	DocstatusSubmitted = 1
	DocstatusCancelled = 2
)

// Sync log statuses
const (
	SyncStatusQueued  = "Queued"
	SyncStatusSuccess = "Success"
	SyncStatusError   = "Error"
)

// Charge types on a document tax table
const (
	ChargeTypeOnNetTotal = "On Net Total"
	ChargeTypeActual     = "Actual"
)

// Parent types for document charges
const (
	ParentSalesOrder   = "Sales Order"
	ParentSalesInvoice = "Sales Invoice"
)

// Customer is a master record mapped to a Shopify customer.
type Customer struct {
	ID                int64         `db:"id" json:"id"`
	CustomerName      string        `db:"customer_name" json:"customer_name"`
	ShopifyCustomerID sql.NullInt64 `db:"shopify_customer_id" json:"shopify_customer_id,omitempty"`
	Email             string        `db:"email" json:"email"`
	Phone             string        `db:"phone" json:"phone"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
}

// Item is a master record mapped to a Shopify product or variant.
type Item struct {
	ID               int64         `db:"id" json:"id"`
	ItemCode         string        `db:"item_code" json:"item_code"`
	ItemName         string        `db:"item_name" json:"item_name"`
	ShopifyVariantID sql.NullInt64 `db:"shopify_variant_id" json:"shopify_variant_id,omitempty"`
	ShopifyProductID sql.NullInt64 `db:"shopify_product_id" json:"shopify_product_id,omitempty"`
	StockUOM         string        `db:"stock_uom" json:"stock_uom"`
	Warehouse        string        `db:"warehouse" json:"warehouse"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
}

// SalesOrder is the committed order document.
type SalesOrder struct {
	ID                 int64           `db:"id" json:"id"`
	Name               string          `db:"name" json:"name"`
	ShopifyOrderID     int64           `db:"shopify_order_id" json:"shopify_order_id"`
	ShopifyOrderNumber string          `db:"shopify_order_number" json:"shopify_order_number"`
	CustomerName       string          `db:"customer_name" json:"customer_name"`
	Company            string          `db:"company" json:"company"`
	SellingPriceList   string          `db:"selling_price_list" json:"selling_price_list"`
	TransactionDate    time.Time       `db:"transaction_date" json:"transaction_date"`
	DeliveryDate       time.Time       `db:"delivery_date" json:"delivery_date"`
	DiscountAmount     decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	NetTotal           decimal.Decimal `db:"net_total" json:"net_total"`
	TotalTaxes         decimal.Decimal `db:"total_taxes" json:"total_taxes"`
	GrandTotal         decimal.Decimal `db:"grand_total" json:"grand_total"`
	PerBilled          decimal.Decimal `db:"per_billed" json:"per_billed"`
	Docstatus          int             `db:"docstatus" json:"docstatus"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// SalesOrderItem is a line on a Sales Order.
type SalesOrderItem struct {
	ID           int64           `db:"id" json:"id"`
	SalesOrderID int64           `db:"sales_order_id" json:"sales_order_id"`
	ItemCode     string          `db:"item_code" json:"item_code"`
	ItemName     string          `db:"item_name" json:"item_name"`
	Qty          int             `db:"qty" json:"qty"`
	Rate         decimal.Decimal `db:"rate" json:"rate"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	StockUOM     string          `db:"stock_uom" json:"stock_uom"`
	Warehouse    string          `db:"warehouse" json:"warehouse"`
	DeliveryDate time.Time       `db:"delivery_date" json:"delivery_date"`
}

// DocumentCharge is a tax or shipping charge line attached to a
// Sales Order or Sales Invoice.
type DocumentCharge struct {
	ID                  int64           `db:"id" json:"id"`
	ParentType          string          `db:"parent_type" json:"parent_type"`
	ParentID            int64           `db:"parent_id" json:"parent_id"`
	ChargeType          string          `db:"charge_type" json:"charge_type"`
	AccountHead         string          `db:"account_head" json:"account_head"`
	Description         string          `db:"description" json:"description"`
	Rate                decimal.Decimal `db:"rate" json:"rate"`
	TaxAmount           decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	IncludedInPrintRate bool            `db:"included_in_print_rate" json:"included_in_print_rate"`
	CostCenter          string          `db:"cost_center" json:"cost_center"`
}

// SalesInvoice is the billing document, created from a submitted Sales Order.
type SalesInvoice struct {
	ID                 int64           `db:"id" json:"id"`
	Name               string          `db:"name" json:"name"`
	SalesOrderID       int64           `db:"sales_order_id" json:"sales_order_id"`
	ShopifyOrderID     int64           `db:"shopify_order_id" json:"shopify_order_id"`
	ShopifyOrderNumber string          `db:"shopify_order_number" json:"shopify_order_number"`
	CustomerName       string          `db:"customer_name" json:"customer_name"`
	Company            string          `db:"company" json:"company"`
	PostingDate        time.Time       `db:"posting_date" json:"posting_date"`
	IsReturn           bool            `db:"is_return" json:"is_return"`
	ReturnAgainst      sql.NullInt64   `db:"return_against" json:"return_against,omitempty"`
	NetTotal           decimal.Decimal `db:"net_total" json:"net_total"`
	TotalTaxes         decimal.Decimal `db:"total_taxes" json:"total_taxes"`
	GrandTotal         decimal.Decimal `db:"grand_total" json:"grand_total"`
	Docstatus          int             `db:"docstatus" json:"docstatus"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// SalesInvoiceItem is a line on a Sales Invoice. Return invoices carry
// negative quantities.
type SalesInvoiceItem struct {
	ID             int64           `db:"id" json:"id"`
	SalesInvoiceID int64           `db:"sales_invoice_id" json:"sales_invoice_id"`
	ItemCode       string          `db:"item_code" json:"item_code"`
	ItemName       string          `db:"item_name" json:"item_name"`
	Qty            int             `db:"qty" json:"qty"`
	Rate           decimal.Decimal `db:"rate" json:"rate"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	CostCenter     string          `db:"cost_center" json:"cost_center"`
}

// DeliveryNote is the goods-issue document, one per Shopify fulfillment.
type DeliveryNote struct {
	ID                   int64     `db:"id" json:"id"`
	Name                 string    `db:"name" json:"name"`
	SalesOrderID         int64     `db:"sales_order_id" json:"sales_order_id"`
	ShopifyOrderID       int64     `db:"shopify_order_id" json:"shopify_order_id"`
	ShopifyOrderNumber   string    `db:"shopify_order_number" json:"shopify_order_number"`
	ShopifyFulfillmentID int64     `db:"shopify_fulfillment_id" json:"shopify_fulfillment_id"`
	CustomerName         string    `db:"customer_name" json:"customer_name"`
	PostingDate          time.Time `db:"posting_date" json:"posting_date"`
	Docstatus            int       `db:"docstatus" json:"docstatus"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// DeliveryNoteItem is a line on a Delivery Note. Quantities come from the
// fulfillment, not the order.
type DeliveryNoteItem struct {
	ID                     int64           `db:"id" json:"id"`
	DeliveryNoteID         int64           `db:"delivery_note_id" json:"delivery_note_id"`
	ItemCode               string          `db:"item_code" json:"item_code"`
	ItemName               string          `db:"item_name" json:"item_name"`
	Qty                    int             `db:"qty" json:"qty"`
	Rate                   decimal.Decimal `db:"rate" json:"rate"`
	Warehouse              string          `db:"warehouse" json:"warehouse"`
	AllowZeroValuationRate bool            `db:"allow_zero_valuation_rate" json:"allow_zero_valuation_rate"`
}

// PaymentEntry settles a Sales Invoice against the configured cash or
// bank account.
type PaymentEntry struct {
	ID             int64           `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	SalesInvoiceID int64           `db:"sales_invoice_id" json:"sales_invoice_id"`
	PaidAmount     decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	Account        string          `db:"account" json:"account"`
	ReferenceNo    string          `db:"reference_no" json:"reference_no"`
	ReferenceDate  time.Time       `db:"reference_date" json:"reference_date"`
	Docstatus      int             `db:"docstatus" json:"docstatus"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// SyncLog is the append-only audit record, one per processing attempt.
// The raw payload is kept so failed requests can be replayed.
type SyncLog struct {
	ID             string         `db:"id" json:"id"`
	Topic          string         `db:"topic" json:"topic"`
	ShopifyOrderID sql.NullInt64  `db:"shopify_order_id" json:"shopify_order_id,omitempty"`
	Status         string         `db:"status" json:"status"`
	Payload        []byte         `db:"payload" json:"payload"`
	ErrorDetail    sql.NullString `db:"error_detail" json:"error_detail,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// SyncSettings is the single business-configuration row read by the
// orchestrator on every sync.
type SyncSettings struct {
	ID                 int64     `db:"id" json:"id"`
	DefaultCustomer    string    `db:"default_customer" json:"default_customer"`
	Company            string    `db:"company" json:"company"`
	PriceList          string    `db:"price_list" json:"price_list"`
	Warehouse          string    `db:"warehouse" json:"warehouse"`
	CostCenter         string    `db:"cost_center" json:"cost_center"`
	CashBankAccount    string    `db:"cash_bank_account" json:"cash_bank_account"`
	SalesOrderSeries   string    `db:"sales_order_series" json:"sales_order_series"`
	SalesInvoiceSeries string    `db:"sales_invoice_series" json:"sales_invoice_series"`
	DeliveryNoteSeries string    `db:"delivery_note_series" json:"delivery_note_series"`
	PaymentEntrySeries string    `db:"payment_entry_series" json:"payment_entry_series"`
	SyncSalesInvoice   bool      `db:"sync_sales_invoice" json:"sync_sales_invoice"`
	SyncDeliveryNote   bool      `db:"sync_delivery_note" json:"sync_delivery_note"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// TaxMapping maps a Shopify tax title to an internal account head.
type TaxMapping struct {
	ShopifyTax string `db:"shopify_tax" json:"shopify_tax"`
	TaxAccount string `db:"tax_account" json:"tax_account"`
}
