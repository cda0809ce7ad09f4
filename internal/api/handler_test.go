package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shopify-sync/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "shhh-test-secret"

type fakeDispatcher struct {
	calls  int
	topic  string
	logID  string
	retErr error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, topic string, _ []byte, logID string) error {
	f.calls++
	f.topic = topic
	f.logID = logID
	return f.retErr
}

type fakeLogStore struct {
	logs map[string]*models.SyncLog
}

func newFakeLogStore() *fakeLogStore {
	return &fakeLogStore{logs: make(map[string]*models.SyncLog)}
}

func (f *fakeLogStore) CreateSyncLog(_ context.Context, log *models.SyncLog) error {
	f.logs[log.ID] = log
	return nil
}

func (f *fakeLogStore) GetSyncLog(_ context.Context, id string) (*models.SyncLog, error) {
	log, ok := f.logs[id]
	if !ok {
		return nil, fmt.Errorf("sync log not found: %s", id)
	}
	return log, nil
}

func (f *fakeLogStore) ListSyncLogs(_ context.Context, status string, _ int) ([]models.SyncLog, error) {
	var out []models.SyncLog
	for _, log := range f.logs {
		if status == "" || log.Status == status {
			out = append(out, *log)
		}
	}
	return out, nil
}

type fakeOrderReader struct {
	order *models.SalesOrder
	items []models.SalesOrderItem
}

func (f *fakeOrderReader) GetOpenSalesOrderByShopifyID(context.Context, int64) (*models.SalesOrder, error) {
	return f.order, nil
}

func (f *fakeOrderReader) GetSalesOrderItems(context.Context, int64) ([]models.SalesOrderItem, error) {
	return f.items, nil
}

type fakeDeduper struct {
	seen map[string]bool
}

func (f *fakeDeduper) MarkWebhookSeen(_ context.Context, deliveryID string, _ time.Duration) (bool, error) {
	if f.seen[deliveryID] {
		return false, nil
	}
	f.seen[deliveryID] = true
	return true, nil
}

type fakeReplayer struct {
	events []*models.ReplayRequestedEvent
}

func (f *fakeReplayer) PublishReplayRequested(_ context.Context, event *models.ReplayRequestedEvent) error {
	f.events = append(f.events, event)
	return nil
}

type handlerFixture struct {
	router     *gin.Engine
	dispatcher *fakeDispatcher
	logs       *fakeLogStore
	orders     *fakeOrderReader
	replays    *fakeReplayer
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &handlerFixture{
		dispatcher: &fakeDispatcher{},
		logs:       newFakeLogStore(),
		orders:     &fakeOrderReader{},
		replays:    &fakeReplayer{},
	}

	h := NewHandler(testSecret, f.dispatcher, f.logs, f.orders, &fakeDeduper{seen: map[string]bool{}}, f.replays)
	f.router = gin.New()
	h.SetupRoutes(f.router)
	return f
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postWebhook(router *gin.Engine, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleWebhookAccepted(t *testing.T) {
	f := newHandlerFixture(t)
	body := []byte(`{"id": 900001, "financial_status": "paid"}`)

	w := postWebhook(f.router, body, map[string]string{
		headerShopifyTopic: models.TopicOrdersCreate,
		headerShopifyHMAC:  sign(testSecret, body),
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sync_log_id")

	assert.Equal(t, 1, f.dispatcher.calls)
	assert.Equal(t, models.TopicOrdersCreate, f.dispatcher.topic)

	// the raw payload is stored before dispatch
	require.Len(t, f.logs.logs, 1)
	stored := f.logs.logs[f.dispatcher.logID]
	require.NotNil(t, stored)
	assert.Equal(t, models.SyncStatusQueued, stored.Status)
	assert.Equal(t, body, stored.Payload)
}

func TestHandleWebhookInvalidSignature(t *testing.T) {
	f := newHandlerFixture(t)
	body := []byte(`{"id": 900001}`)

	w := postWebhook(f.router, body, map[string]string{
		headerShopifyTopic: models.TopicOrdersCreate,
		headerShopifyHMAC:  sign("wrong-secret", body),
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, f.dispatcher.calls)
	assert.Empty(t, f.logs.logs)
}

func TestHandleWebhookMissingSignature(t *testing.T) {
	f := newHandlerFixture(t)
	body := []byte(`{"id": 900001}`)

	w := postWebhook(f.router, body, map[string]string{
		headerShopifyTopic: models.TopicOrdersCreate,
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleWebhookMissingTopic(t *testing.T) {
	f := newHandlerFixture(t)
	body := []byte(`{"id": 900001}`)

	w := postWebhook(f.router, body, map[string]string{
		headerShopifyHMAC: sign(testSecret, body),
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, f.dispatcher.calls)
}

func TestHandleWebhookDuplicateDelivery(t *testing.T) {
	f := newHandlerFixture(t)
	body := []byte(`{"id": 900001}`)
	headers := map[string]string{
		headerShopifyTopic:      models.TopicOrdersCreate,
		headerShopifyHMAC:       sign(testSecret, body),
		headerShopifyDeliveryID: "delivery-abc",
	}

	first := postWebhook(f.router, body, headers)
	assert.Equal(t, http.StatusOK, first.Code)

	second := postWebhook(f.router, body, headers)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), "duplicate")

	assert.Equal(t, 1, f.dispatcher.calls)
	assert.Len(t, f.logs.logs, 1)
}

func TestHandleWebhookDispatchErrorStillAccepted(t *testing.T) {
	f := newHandlerFixture(t)
	f.dispatcher.retErr = fmt.Errorf("parse failure")
	body := []byte(`{not json`)

	w := postWebhook(f.router, body, map[string]string{
		headerShopifyTopic: models.TopicOrdersCreate,
		headerShopifyHMAC:  sign(testSecret, body),
	})

	// payload is stored, so Shopify gets a 200 and no redelivery storm
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, f.logs.logs, 1)
}

func TestReplaySyncLog(t *testing.T) {
	f := newHandlerFixture(t)
	f.logs.logs["log-1"] = &models.SyncLog{
		ID:     "log-1",
		Topic:  models.TopicOrdersCreate,
		Status: models.SyncStatusError,
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync-logs/log-1/replay", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, f.replays.events, 1)
	assert.Equal(t, "log-1", f.replays.events[0].SyncLogID)
	assert.Equal(t, models.EventTypeReplayRequested, f.replays.events[0].EventType)
}

func TestReplaySyncLogNotFound(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync-logs/missing/replay", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, f.replays.events)
}

func TestGetSyncLog(t *testing.T) {
	f := newHandlerFixture(t)
	f.logs.logs["log-1"] = &models.SyncLog{ID: "log-1", Topic: models.TopicOrdersPaid, Status: models.SyncStatusSuccess}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync-logs/log-1", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), models.TopicOrdersPaid)
}

func TestGetOrder(t *testing.T) {
	f := newHandlerFixture(t)
	f.orders.order = &models.SalesOrder{ID: 3, Name: "SO-SPF-00003", ShopifyOrderID: 900001}
	f.orders.items = []models.SalesOrderItem{{ItemCode: "TSHIRT-M", Qty: 2}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/900001", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "SO-SPF-00003")
	assert.Contains(t, w.Body.String(), "TSHIRT-M")
}

func TestGetOrderNotFound(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/900001", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrderInvalidID(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/not-a-number", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id": 1}`)

	assert.True(t, verifySignature(testSecret, body, sign(testSecret, body)))
	assert.False(t, verifySignature(testSecret, body, sign("other", body)))
	assert.False(t, verifySignature(testSecret, body, ""))
	assert.False(t, verifySignature("", body, sign("", body)))
}
