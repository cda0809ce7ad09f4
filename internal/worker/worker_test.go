package worker

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"shopify-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogStore struct {
	logs map[string]*models.SyncLog
}

func newFakeLogStore() *fakeLogStore {
	return &fakeLogStore{logs: make(map[string]*models.SyncLog)}
}

func (f *fakeLogStore) GetSyncLog(_ context.Context, id string) (*models.SyncLog, error) {
	log, ok := f.logs[id]
	if !ok {
		return nil, fmt.Errorf("sync log not found: %s", id)
	}
	return log, nil
}

func (f *fakeLogStore) MarkSyncLogSuccess(_ context.Context, id string) error {
	if log, ok := f.logs[id]; ok && log.Status == models.SyncStatusQueued {
		log.Status = models.SyncStatusSuccess
	}
	return nil
}

func (f *fakeLogStore) MarkSyncLogError(_ context.Context, id, detail string) error {
	if log, ok := f.logs[id]; ok {
		log.Status = models.SyncStatusError
		log.ErrorDetail = sql.NullString{String: detail, Valid: true}
	}
	return nil
}

func (f *fakeLogStore) SetSyncLogOrder(_ context.Context, id string, shopifyOrderID int64) error {
	if log, ok := f.logs[id]; ok {
		log.ShopifyOrderID = sql.NullInt64{Int64: shopifyOrderID, Valid: true}
	}
	return nil
}

func (f *fakeLogStore) RequeueSyncLog(_ context.Context, id string) error {
	if log, ok := f.logs[id]; ok {
		log.Status = models.SyncStatusQueued
		log.ErrorDetail = sql.NullString{}
	}
	return nil
}

// fakeDispatcher records the log status as seen at dispatch time and then
// completes the attempt like the pipeline would
type fakeDispatcher struct {
	logs             *fakeLogStore
	calls            int
	topic            string
	payload          []byte
	statusAtDispatch string
	fail             bool
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, topic string, payload []byte, logID string) error {
	f.calls++
	f.topic = topic
	f.payload = payload
	if log, ok := f.logs.logs[logID]; ok {
		f.statusAtDispatch = log.Status
	}
	if f.fail {
		// stage failures are recorded on the log, not returned
		return f.logs.MarkSyncLogError(ctx, logID, "sales_order: boom")
	}
	return f.logs.MarkSyncLogSuccess(ctx, logID)
}

func TestHandleReplaySuccessClearsError(t *testing.T) {
	logs := newFakeLogStore()
	logs.logs["log-1"] = &models.SyncLog{
		ID:          "log-1",
		Topic:       models.TopicOrdersCreate,
		Status:      models.SyncStatusError,
		Payload:     []byte(`{"id": 900001}`),
		ErrorDetail: sql.NullString{String: "sales_order: item not found", Valid: true},
	}
	dispatcher := &fakeDispatcher{logs: logs}
	w := NewReplayWorker(nil, logs, dispatcher)

	err := w.handleReplay(context.Background(), &models.ReplayRequestedEvent{SyncLogID: "log-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, dispatcher.calls)
	assert.Equal(t, models.TopicOrdersCreate, dispatcher.topic)
	assert.Equal(t, []byte(`{"id": 900001}`), dispatcher.payload)

	// the attempt was requeued before dispatch, so the re-run could
	// transition it to Success
	assert.Equal(t, models.SyncStatusQueued, dispatcher.statusAtDispatch)
	assert.Equal(t, models.SyncStatusSuccess, logs.logs["log-1"].Status)
	assert.False(t, logs.logs["log-1"].ErrorDetail.Valid)
}

func TestHandleReplayFailedRunKeepsError(t *testing.T) {
	logs := newFakeLogStore()
	logs.logs["log-1"] = &models.SyncLog{
		ID:      "log-1",
		Topic:   models.TopicOrdersCreate,
		Status:  models.SyncStatusError,
		Payload: []byte(`{"id": 900001}`),
	}
	dispatcher := &fakeDispatcher{logs: logs, fail: true}
	w := NewReplayWorker(nil, logs, dispatcher)

	err := w.handleReplay(context.Background(), &models.ReplayRequestedEvent{SyncLogID: "log-1"})
	require.NoError(t, err)

	assert.Equal(t, models.SyncStatusError, logs.logs["log-1"].Status)
	assert.Equal(t, "sales_order: boom", logs.logs["log-1"].ErrorDetail.String)
}

func TestHandleReplayUnknownLog(t *testing.T) {
	logs := newFakeLogStore()
	dispatcher := &fakeDispatcher{logs: logs}
	w := NewReplayWorker(nil, logs, dispatcher)

	err := w.handleReplay(context.Background(), &models.ReplayRequestedEvent{SyncLogID: "missing"})
	require.Error(t, err)
	assert.Zero(t, dispatcher.calls)
}
