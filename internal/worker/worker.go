package worker

import (
	"context"
	"fmt"

	"shopify-sync/internal/broker"
	"shopify-sync/internal/models"
	"shopify-sync/internal/service"
	"shopify-sync/internal/util"

	"go.uber.org/zap"
)

// Dispatcher routes a stored payload through the sync pipeline.
// *service.SyncService satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, topic string, payload []byte, logID string) error
}

// ReplayWorker consumes replay requests and re-runs stored webhook
// payloads through the sync pipeline. Replays are triggered externally
// (via the replay endpoint); the worker never retries on its own.
type ReplayWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logs         service.SyncLogStore
	dispatcher   Dispatcher
	logger       *zap.Logger
}

// NewReplayWorker creates a replay worker
func NewReplayWorker(consumer *broker.Consumer, logs service.SyncLogStore, dispatcher Dispatcher) *ReplayWorker {
	w := &ReplayWorker{
		consumer:   consumer,
		logs:       logs,
		dispatcher: dispatcher,
		logger:     util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnReplayRequested(w.handleReplay)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *ReplayWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting replay worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReplayWorker) Stop() error {
	w.logger.Info("Stopping replay worker")
	return w.consumer.Close()
}

func (w *ReplayWorker) handleReplay(ctx context.Context, event *models.ReplayRequestedEvent) error {
	log, err := w.logs.GetSyncLog(ctx, event.SyncLogID)
	if err != nil {
		return fmt.Errorf("failed to load sync log %s: %w", event.SyncLogID, err)
	}

	w.logger.Info("Replaying stored payload",
		zap.String("sync_log_id", log.ID),
		zap.String("topic", log.Topic),
		zap.String("status", log.Status))

	// Reset the attempt so a clean re-run can reach Success; the log
	// keeps Error only when the replay itself fails again.
	if err := w.logs.RequeueSyncLog(ctx, log.ID); err != nil {
		return fmt.Errorf("failed to requeue sync log %s: %w", log.ID, err)
	}

	util.ReplaysProcessedTotal.Inc()
	return w.dispatcher.Dispatch(ctx, log.Topic, log.Payload, log.ID)
}
