package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_webhooks_received_total",
		Help: "Total number of webhook deliveries received",
	}, []string{"topic"})

	WebhooksRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_webhooks_rejected_total",
		Help: "Total number of webhook deliveries rejected before processing",
	}, []string{"reason"})

	OrdersSyncedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopify_sales_orders_created_total",
		Help: "Total number of sales orders created from Shopify orders",
	})

	InvoicesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopify_sales_invoices_created_total",
		Help: "Total number of sales invoices created",
	})

	PaymentEntriesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopify_payment_entries_created_total",
		Help: "Total number of payment entries created",
	})

	DeliveryNotesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopify_delivery_notes_created_total",
		Help: "Total number of delivery notes created",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopify_orders_cancelled_total",
		Help: "Total number of order cancellations processed",
	})

	SyncStagesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_sync_stages_failed_total",
		Help: "Total number of failed sync pipeline stages",
	}, []string{"stage"})

	SyncStageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopify_sync_stage_latency_seconds",
		Help:    "Latency of sync pipeline stages",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	ReplaysProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopify_replays_processed_total",
		Help: "Total number of replayed sync attempts",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
