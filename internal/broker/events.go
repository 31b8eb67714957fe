package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Sink accepts a keyed event for delivery
type Sink interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	sink Sink
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(sink Sink) *EventPublisher {
	return &EventPublisher{sink: sink}
}

func orderKey(id int64) string      { return fmt.Sprintf("order-%d", id) }
func listingKey(id int64) string    { return fmt.Sprintf("listing-%d", id) }
func withdrawalKey(id int64) string { return fmt.Sprintf("withdrawal-%d", id) }

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.sink.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.sink.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishPayoutReleased publishes PayoutReleased event
func (ep *EventPublisher) PublishPayoutReleased(ctx context.Context, event *models.PayoutReleasedEvent) error {
	return ep.sink.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishEscrowRefunded publishes EscrowRefunded event
func (ep *EventPublisher) PublishEscrowRefunded(ctx context.Context, event *models.EscrowRefundedEvent) error {
	return ep.sink.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishInspectionSubmitted publishes InspectionSubmitted event
func (ep *EventPublisher) PublishInspectionSubmitted(ctx context.Context, event *models.InspectionSubmittedEvent) error {
	return ep.sink.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishListingModerated publishes ListingSubmitted and ListingModerated events
func (ep *EventPublisher) PublishListingModerated(ctx context.Context, event *models.ListingModeratedEvent) error {
	return ep.sink.PublishEvent(ctx, listingKey(event.ListingID), event)
}

// PublishWithdrawal publishes WithdrawalRequested and WithdrawalProcessed events
func (ep *EventPublisher) PublishWithdrawal(ctx context.Context, event *models.WithdrawalEvent) error {
	return ep.sink.PublishEvent(ctx, withdrawalKey(event.WithdrawalID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderCreated        func(context.Context, *models.OrderCreatedEvent) error
	onOrderStatusChanged  func(context.Context, *models.OrderStatusChangedEvent) error
	onPayoutReleased      func(context.Context, *models.PayoutReleasedEvent) error
	onEscrowRefunded      func(context.Context, *models.EscrowRefundedEvent) error
	onInspectionSubmitted func(context.Context, *models.InspectionSubmittedEvent) error
	onListingModerated    func(context.Context, *models.ListingModeratedEvent) error
	onWithdrawal          func(context.Context, *models.WithdrawalEvent) error
	logger                *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.ComponentLogger("event-handler")}
}

// OnOrderCreated registers a handler for OrderCreated events
func (eh *EventHandler) OnOrderCreated(handler func(context.Context, *models.OrderCreatedEvent) error) {
	eh.onOrderCreated = handler
}

// OnOrderStatusChanged registers a handler for OrderStatusChanged events
func (eh *EventHandler) OnOrderStatusChanged(handler func(context.Context, *models.OrderStatusChangedEvent) error) {
	eh.onOrderStatusChanged = handler
}

// OnPayoutReleased registers a handler for PayoutReleased events
func (eh *EventHandler) OnPayoutReleased(handler func(context.Context, *models.PayoutReleasedEvent) error) {
	eh.onPayoutReleased = handler
}

// OnEscrowRefunded registers a handler for EscrowRefunded events
func (eh *EventHandler) OnEscrowRefunded(handler func(context.Context, *models.EscrowRefundedEvent) error) {
	eh.onEscrowRefunded = handler
}

// OnInspectionSubmitted registers a handler for InspectionSubmitted events
func (eh *EventHandler) OnInspectionSubmitted(handler func(context.Context, *models.InspectionSubmittedEvent) error) {
	eh.onInspectionSubmitted = handler
}

// OnListingModerated registers a handler for both listing submission and moderation events
func (eh *EventHandler) OnListingModerated(handler func(context.Context, *models.ListingModeratedEvent) error) {
	eh.onListingModerated = handler
}

// OnWithdrawal registers a handler for withdrawal request and decision events
func (eh *EventHandler) OnWithdrawal(handler func(context.Context, *models.WithdrawalEvent) error) {
	eh.onWithdrawal = handler
}

// dispatch decodes value into a fresh T and calls fn when registered
func dispatch[T any](ctx context.Context, value []byte, eventType string, fn func(context.Context, *T) error) error {
	if fn == nil {
		return nil
	}
	var event T
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal %s event: %w", eventType, err)
	}
	return fn(ctx, &event)
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID),
	)

	switch baseEvent.EventType {
	case models.EventTypeOrderCreated:
		return dispatch(ctx, msg.Value, baseEvent.EventType, eh.onOrderCreated)
	case models.EventTypeOrderStatusChanged:
		return dispatch(ctx, msg.Value, baseEvent.EventType, eh.onOrderStatusChanged)
	case models.EventTypePayoutReleased:
		return dispatch(ctx, msg.Value, baseEvent.EventType, eh.onPayoutReleased)
	case models.EventTypeEscrowRefunded:
		return dispatch(ctx, msg.Value, baseEvent.EventType, eh.onEscrowRefunded)
	case models.EventTypeInspectionSubmitted:
		return dispatch(ctx, msg.Value, baseEvent.EventType, eh.onInspectionSubmitted)
	case models.EventTypeListingSubmitted, models.EventTypeListingModerated:
		return dispatch(ctx, msg.Value, baseEvent.EventType, eh.onListingModerated)
	case models.EventTypeWithdrawalRequested, models.EventTypeWithdrawalProcessed:
		return dispatch(ctx, msg.Value, baseEvent.EventType, eh.onWithdrawal)
	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
