package models

import "time"

// Event types published on the sync-events topic
const (
	EventTypeOrderSynced     = "ORDER_SYNCED"
	EventTypeInvoiceCreated  = "INVOICE_CREATED"
	EventTypeDeliveryCreated = "DELIVERY_CREATED"
	EventTypeOrderCancelled  = "ORDER_CANCELLED"
	EventTypeSyncFailed      = "SYNC_FAILED"
	EventTypeReplayRequested = "REPLAY_REQUESTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderSyncedEvent published when a Sales Order is created and submitted
type OrderSyncedEvent struct {
	BaseEvent
	ShopifyOrderID int64  `json:"shopify_order_id"`
	SalesOrder     string `json:"sales_order"`
	Customer       string `json:"customer"`
	GrandTotal     string `json:"grand_total"`
}

// InvoiceCreatedEvent published when a Sales Invoice (and its Payment
// Entry) is created; IsReturn marks the return invoice on refunds
type InvoiceCreatedEvent struct {
	BaseEvent
	ShopifyOrderID int64  `json:"shopify_order_id"`
	SalesInvoice   string `json:"sales_invoice"`
	IsReturn       bool   `json:"is_return"`
}

// DeliveryCreatedEvent published per Delivery Note
type DeliveryCreatedEvent struct {
	BaseEvent
	ShopifyOrderID       int64  `json:"shopify_order_id"`
	ShopifyFulfillmentID int64  `json:"shopify_fulfillment_id"`
	DeliveryNote         string `json:"delivery_note"`
}

// OrderCancelledEvent published after cancellation processing
type OrderCancelledEvent struct {
	BaseEvent
	ShopifyOrderID int64    `json:"shopify_order_id"`
	Cancelled      []string `json:"cancelled"`
}

// SyncFailedEvent published when a pipeline stage fails
type SyncFailedEvent struct {
	BaseEvent
	ShopifyOrderID int64  `json:"shopify_order_id"`
	SyncLogID      string `json:"sync_log_id"`
	Stage          string `json:"stage"`
	Reason         string `json:"reason"`
}

// ReplayRequestedEvent asks the replay worker to re-run a stored payload
type ReplayRequestedEvent struct {
	BaseEvent
	SyncLogID string `json:"sync_log_id"`
}
