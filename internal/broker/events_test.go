package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"bike-marketplace/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedEvent struct {
	key   string
	event interface{}
}

type captureSink struct {
	events []capturedEvent
}

func (s *captureSink) PublishEvent(_ context.Context, key string, event interface{}) error {
	s.events = append(s.events, capturedEvent{key, event})
	return nil
}

func base(eventType string) models.BaseEvent {
	return models.BaseEvent{EventID: "evt-" + eventType, EventType: eventType, Timestamp: time.Now().UTC()}
}

func TestPublisherPartitionKeys(t *testing.T) {
	sink := &captureSink{}
	pub := NewEventPublisher(sink)
	ctx := context.Background()

	require.NoError(t, pub.PublishOrderStatusChanged(ctx, &models.OrderStatusChangedEvent{BaseEvent: base(models.EventTypeOrderStatusChanged), OrderID: 12}))
	require.NoError(t, pub.PublishPayoutReleased(ctx, &models.PayoutReleasedEvent{BaseEvent: base(models.EventTypePayoutReleased), OrderID: 12}))
	require.NoError(t, pub.PublishListingModerated(ctx, &models.ListingModeratedEvent{BaseEvent: base(models.EventTypeListingModerated), ListingID: 4}))
	require.NoError(t, pub.PublishWithdrawal(ctx, &models.WithdrawalEvent{BaseEvent: base(models.EventTypeWithdrawalRequested), WithdrawalID: 9}))

	keys := []string{}
	for _, e := range sink.events {
		keys = append(keys, e.key)
	}
	assert.Equal(t, []string{"order-12", "order-12", "listing-4", "withdrawal-9"}, keys)
}

func TestLocalSinkRoutesEvents(t *testing.T) {
	handler := NewEventHandler()

	var listingStatuses []string
	handler.OnListingModerated(func(_ context.Context, e *models.ListingModeratedEvent) error {
		listingStatuses = append(listingStatuses, e.Status)
		return nil
	})

	var refunded int64
	handler.OnEscrowRefunded(func(_ context.Context, e *models.EscrowRefundedEvent) error {
		refunded += e.Amount
		return nil
	})

	pub := NewEventPublisher(NewLocalSink(handler.HandleMessage))
	ctx := context.Background()

	require.NoError(t, pub.PublishListingModerated(ctx, &models.ListingModeratedEvent{
		BaseEvent: base(models.EventTypeListingSubmitted), ListingID: 1, Status: models.ListingStatusPendingApproval,
	}))
	require.NoError(t, pub.PublishListingModerated(ctx, &models.ListingModeratedEvent{
		BaseEvent: base(models.EventTypeListingModerated), ListingID: 1, Status: models.ListingStatusPublished,
	}))
	require.NoError(t, pub.PublishEscrowRefunded(ctx, &models.EscrowRefundedEvent{
		BaseEvent: base(models.EventTypeEscrowRefunded), OrderID: 2, Amount: 5000,
	}))

	// no handler registered
	require.NoError(t, pub.PublishOrderCreated(ctx, &models.OrderCreatedEvent{BaseEvent: base(models.EventTypeOrderCreated), OrderID: 2}))

	assert.Equal(t, []string{models.ListingStatusPendingApproval, models.ListingStatusPublished}, listingStatuses)
	assert.Equal(t, int64(5000), refunded)
}

func TestLocalSinkSwallowsHandlerErrors(t *testing.T) {
	sink := NewLocalSink(func(context.Context, kafka.Message) error {
		return errors.New("boom")
	})
	assert.NoError(t, sink.PublishEvent(context.Background(), "order-1", map[string]string{"event_type": "X"}))
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	err := NewEventHandler().HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)

	err = NewEventHandler().HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"event_type":"SOMETHING_ELSE"}`)})
	assert.NoError(t, err)
}
