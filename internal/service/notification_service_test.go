package service_test

import (
	"context"
	"testing"
	"time"

	"bike-marketplace/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationDeliveredOncePerEvent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now().UTC(),
		},
		OrderID:    7,
		BuyerID:    buyer.UserID,
		SellerID:   seller.UserID,
		FromStatus: models.OrderStatusShipping,
		ToStatus:   models.OrderStatusDelivered,
	}

	require.NoError(t, e.notifications.HandleOrderStatusChanged(ctx, event))
	require.NoError(t, e.notifications.HandleOrderStatusChanged(ctx, event))

	forBuyer, err := e.notifications.List(ctx, buyer, 10)
	require.NoError(t, err)
	require.Len(t, forBuyer, 1)
	assert.Equal(t, "Order #7 is now DELIVERED", forBuyer[0].Message)

	forSeller, err := e.notifications.List(ctx, seller, 10)
	require.NoError(t, err)
	assert.Len(t, forSeller, 1)
}

func TestNotificationMessages(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	base := func(id, typ string) models.BaseEvent {
		return models.BaseEvent{EventID: id, EventType: typ, Timestamp: time.Now().UTC()}
	}

	require.NoError(t, e.notifications.HandleListingModerated(ctx, &models.ListingModeratedEvent{
		BaseEvent: base("evt-l", models.EventTypeListingModerated),
		ListingID: 3,
		SellerID:  seller.UserID,
		Status:    models.ListingStatusRejected,
		Reason:    "Missing photos",
	}))
	require.NoError(t, e.notifications.HandlePayoutReleased(ctx, &models.PayoutReleasedEvent{
		BaseEvent:    base("evt-p", models.EventTypePayoutReleased),
		OrderID:      9,
		SellerID:     seller.UserID,
		SellerAmount: 950,
		PlatformFee:  50,
	}))
	require.NoError(t, e.notifications.HandleEscrowRefunded(ctx, &models.EscrowRefundedEvent{
		BaseEvent: base("evt-r", models.EventTypeEscrowRefunded),
		OrderID:   9,
		BuyerID:   buyer.UserID,
		Amount:    1000,
	}))

	forSeller, err := e.notifications.List(ctx, seller, 10)
	require.NoError(t, err)
	require.Len(t, forSeller, 2)

	messages := []string{forSeller[0].Message, forSeller[1].Message}
	assert.Contains(t, messages, "Listing #3 was rejected: Missing photos")
	assert.Contains(t, messages, "Payout of 950 for order #9 credited to your wallet")

	forBuyer, err := e.notifications.List(ctx, buyer, 10)
	require.NoError(t, err)
	require.Len(t, forBuyer, 1)
	assert.Equal(t, models.EventTypeEscrowRefunded, forBuyer[0].Type)
}
