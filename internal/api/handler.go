package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"shopify-sync/internal/models"
	"shopify-sync/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	headerShopifyTopic      = "X-Shopify-Topic"
	headerShopifyHMAC       = "X-Shopify-Hmac-Sha256"
	headerShopifyDeliveryID = "X-Shopify-Webhook-Id"

	webhookDedupeTTL = 24 * time.Hour
)

// Dispatcher routes a stored payload through the sync pipeline.
// *service.SyncService satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, topic string, payload []byte, logID string) error
}

// LogStore is the audit-log surface the handlers need.
type LogStore interface {
	CreateSyncLog(ctx context.Context, log *models.SyncLog) error
	GetSyncLog(ctx context.Context, id string) (*models.SyncLog, error)
	ListSyncLogs(ctx context.Context, status string, limit int) ([]models.SyncLog, error)
}

// OrderReader looks up synced documents for the inspection endpoints.
type OrderReader interface {
	GetOpenSalesOrderByShopifyID(ctx context.Context, shopifyOrderID int64) (*models.SalesOrder, error)
	GetSalesOrderItems(ctx context.Context, salesOrderID int64) ([]models.SalesOrderItem, error)
}

// Deduper drops duplicate webhook deliveries. Optional; a nil Deduper
// disables dedupe.
type Deduper interface {
	MarkWebhookSeen(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error)
}

// ReplayRequester hands replay requests to the replay topic.
type ReplayRequester interface {
	PublishReplayRequested(ctx context.Context, event *models.ReplayRequestedEvent) error
}

// Handler contains HTTP handlers
type Handler struct {
	secret     string
	dispatcher Dispatcher
	logs       LogStore
	orders     OrderReader
	dedupe     Deduper
	replays    ReplayRequester
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(secret string, dispatcher Dispatcher, logs LogStore, orders OrderReader, dedupe Deduper, replays ReplayRequester) *Handler {
	return &Handler{
		secret:     secret,
		dispatcher: dispatcher,
		logs:       logs,
		orders:     orders,
		dedupe:     dedupe,
		replays:    replays,
		logger:     util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/shopify", h.handleWebhook)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/sync-logs", h.listSyncLogs)
		v1.GET("/sync-logs/:id", h.getSyncLog)
		v1.POST("/sync-logs/:id/replay", h.replaySyncLog)
		v1.GET("/orders/:shopify_order_id", h.getOrder)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// handleWebhook verifies the delivery, stores the raw payload, then runs
// the pipeline synchronously. Processing failures are recorded on the
// sync log, not returned to Shopify; once the payload is stored the
// response is always 200.
func (h *Handler) handleWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		util.WebhooksRejectedTotal.WithLabelValues("read_body").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	if !verifySignature(h.secret, body, c.GetHeader(headerShopifyHMAC)) {
		util.WebhooksRejectedTotal.WithLabelValues("invalid_signature").Inc()
		h.logger.Warn("Webhook signature validation failed",
			zap.String("topic", c.GetHeader(headerShopifyTopic)))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	topic := c.GetHeader(headerShopifyTopic)
	if topic == "" {
		util.WebhooksRejectedTotal.WithLabelValues("missing_topic").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing " + headerShopifyTopic + " header"})
		return
	}
	util.WebhooksReceivedTotal.WithLabelValues(topic).Inc()

	if deliveryID := c.GetHeader(headerShopifyDeliveryID); deliveryID != "" && h.dedupe != nil {
		first, err := h.dedupe.MarkWebhookSeen(c.Request.Context(), deliveryID, webhookDedupeTTL)
		if err != nil {
			h.logger.Warn("Webhook dedupe unavailable", zap.Error(err))
		} else if !first {
			h.logger.Info("Duplicate webhook delivery dropped",
				zap.String("delivery_id", deliveryID),
				zap.String("topic", topic))
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
	}

	syncLog := &models.SyncLog{
		ID:      uuid.New().String(),
		Topic:   topic,
		Status:  models.SyncStatusQueued,
		Payload: body,
	}
	if err := h.logs.CreateSyncLog(c.Request.Context(), syncLog); err != nil {
		h.logger.Error("Failed to store webhook payload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store payload"})
		return
	}

	if err := h.dispatcher.Dispatch(c.Request.Context(), topic, body, syncLog.ID); err != nil {
		h.logger.Error("Webhook processing failed",
			zap.String("sync_log_id", syncLog.ID),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"sync_log_id": syncLog.ID})
}

func (h *Handler) listSyncLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, err := h.logs.ListSyncLogs(c.Request.Context(), c.Query("status"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sync logs", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sync_logs": logs})
}

func (h *Handler) getSyncLog(c *gin.Context) {
	log, err := h.logs.GetSyncLog(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sync log not found", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, log)
}

// replaySyncLog requests a replay of a stored payload via the replay
// topic. The replay worker picks it up and re-runs the pipeline.
func (h *Handler) replaySyncLog(c *gin.Context) {
	id := c.Param("id")

	log, err := h.logs.GetSyncLog(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sync log not found", "details": err.Error()})
		return
	}

	event := &models.ReplayRequestedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeReplayRequested,
			Timestamp: time.Now(),
		},
		SyncLogID: log.ID,
	}
	if err := h.replays.PublishReplayRequested(c.Request.Context(), event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to request replay", "details": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"sync_log_id": log.ID, "status": "replay requested"})
}

func (h *Handler) getOrder(c *gin.Context) {
	shopifyOrderID, err := strconv.ParseInt(c.Param("shopify_order_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Shopify order ID"})
		return
	}

	order, err := h.orders.GetOpenSalesOrderByShopifyID(c.Request.Context(), shopifyOrderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up order", "details": err.Error()})
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No sales order for Shopify order", "shopify_order_id": shopifyOrderID})
		return
	}

	items, err := h.orders.GetSalesOrderItems(c.Request.Context(), order.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load order items", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order, "items": items})
}

// verifySignature checks the base64 HMAC-SHA256 of the raw body against
// the shared secret in constant time.
func verifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
