package service

import (
	"time"

	"shopify-sync/internal/models"

	"github.com/google/uuid"
)

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
