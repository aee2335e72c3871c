package inventory

import (
	"context"
	"log/slog"
	"time"
)

// Event types emitted by the engine.
const (
	EventItemCreated          = "item.created"
	EventItemUpdated          = "item.updated"
	EventItemDeactivated      = "item.deactivated"
	EventWarehouseCreated     = "warehouse.created"
	EventWarehouseDeactivated = "warehouse.deactivated"
	EventReceived             = "inventory.received"
	EventIssued               = "inventory.issued"
	EventTransferred          = "inventory.transferred"
	EventAdjusted             = "inventory.adjusted"
	EventWasteRecorded        = "inventory.waste_recorded"
	EventLowStock             = "inventory.low_stock"
	EventRequisitionCreated   = "requisition.created"
	EventRequisitionSubmitted = "requisition.submitted"
	EventRequisitionApproved  = "requisition.approved"
	EventRequisitionFilled    = "requisition.filled"
	EventRequisitionCancelled = "requisition.cancelled"
	EventCountCreated         = "count.created"
	EventCountUpdated         = "count.updated"
	EventCountCompleted       = "count.completed"
	EventCountPosted          = "count.posted"
	EventValuationSnapshot    = "valuation.snapshot"
)

var transactionEvents = map[TransactionType]string{
	TransactionTypeReceipt:    EventReceived,
	TransactionTypeIssue:      EventIssued,
	TransactionTypeTransfer:   EventTransferred,
	TransactionTypeAdjustment: EventAdjusted,
	TransactionTypeWaste:      EventWasteRecorded,
}

// Event is a notification handed to the external event bus.
type Event struct {
	Type       string    `json:"type"`
	EntityID   string    `json:"entity_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

// EventPublisher delivers notifications to the event bus collaborator.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
}

// notify publishes evt; failures are logged and never surface to the caller.
func (s *Service) notify(ctx context.Context, eventType, entityID string, payload any) {
	if s.events == nil {
		return
	}
	evt := Event{Type: eventType, EntityID: entityID, OccurredAt: s.now(), Payload: payload}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("publish inventory event",
			slog.String("type", eventType),
			slog.String("entity_id", entityID),
			slog.Any("error", err))
	}
}

// JSONBus is a transport that encodes and broadcasts arbitrary values.
type JSONBus interface {
	PublishJSON(ctx context.Context, v any) error
}

type busPublisher struct {
	bus JSONBus
}

// PublishTo adapts a JSON transport to EventPublisher.
func PublishTo(bus JSONBus) EventPublisher {
	return busPublisher{bus: bus}
}

func (p busPublisher) Publish(ctx context.Context, evt Event) error {
	return p.bus.PublishJSON(ctx, evt)
}
