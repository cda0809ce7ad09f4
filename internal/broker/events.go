package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"shopify-sync/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher publishes sync outcome events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderSynced publishes OrderSynced event
func (ep *EventPublisher) PublishOrderSynced(ctx context.Context, event *models.OrderSyncedEvent) error {
	key := fmt.Sprintf("order-%d", event.ShopifyOrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishInvoiceCreated publishes InvoiceCreated event
func (ep *EventPublisher) PublishInvoiceCreated(ctx context.Context, event *models.InvoiceCreatedEvent) error {
	key := fmt.Sprintf("order-%d", event.ShopifyOrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishDeliveryCreated publishes DeliveryCreated event
func (ep *EventPublisher) PublishDeliveryCreated(ctx context.Context, event *models.DeliveryCreatedEvent) error {
	key := fmt.Sprintf("order-%d", event.ShopifyOrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishOrderCancelled publishes OrderCancelled event
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	key := fmt.Sprintf("order-%d", event.ShopifyOrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSyncFailed publishes SyncFailed event
func (ep *EventPublisher) PublishSyncFailed(ctx context.Context, event *models.SyncFailedEvent) error {
	key := fmt.Sprintf("order-%d", event.ShopifyOrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// ReplayPublisher requests replays of stored payloads on the replay topic
type ReplayPublisher struct {
	producer *Producer
}

// NewReplayPublisher creates a publisher for the replay topic
func NewReplayPublisher(producer *Producer) *ReplayPublisher {
	return &ReplayPublisher{producer: producer}
}

// PublishReplayRequested publishes ReplayRequested event
func (rp *ReplayPublisher) PublishReplayRequested(ctx context.Context, event *models.ReplayRequestedEvent) error {
	return rp.producer.PublishEvent(ctx, event.SyncLogID, event)
}

// EventHandler routes incoming replay messages
type EventHandler struct {
	onReplayRequested func(context.Context, *models.ReplayRequestedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnReplayRequested registers a handler for ReplayRequested events
func (eh *EventHandler) OnReplayRequested(handler func(context.Context, *models.ReplayRequestedEvent) error) {
	eh.onReplayRequested = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeReplayRequested:
		if eh.onReplayRequested != nil {
			var event models.ReplayRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReplayRequested event: %w", err)
			}
			return eh.onReplayRequested(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
